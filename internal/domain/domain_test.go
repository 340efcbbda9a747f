package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var testTime = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func TestCanTransition_FollowsLCGraph(t *testing.T) {
	allowed := map[[2]LCStatus]bool{
		{LCOpened, LCApproved}:                     true,
		{LCApproved, LCShipped}:                    true,
		{LCShipped, LCDeliveredPending}:            true,
		{LCShipped, LCUnderReview}:                 true,
		{LCDeliveredPending, LCDeliveredConfirmed}: true,
		{LCDeliveredPending, LCUnderReview}:        true,
		{LCDeliveredConfirmed, LCPaid}:             true,
		{LCDeliveredConfirmed, LCUnderReview}:      true,
		{LCUnderReview, LCDeliveredConfirmed}:      true,
		{LCUnderReview, LCCancelled}:               true,
	}

	for from := LCOpened; from <= LCCancelled; from++ {
		for to := LCOpened; to <= LCCancelled; to++ {
			if got := CanTransition(from, to); got != allowed[[2]LCStatus{from, to}] {
				t.Errorf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestLCStatus_TerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []LCStatus{LCPaid, LCCancelled} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
		for to := LCOpened; to <= LCCancelled; to++ {
			if CanTransition(s, to) {
				t.Errorf("expected no transition out of %s, found %s", s, to)
			}
		}
	}
}

func TestLCStatus_TextRoundTrip(t *testing.T) {
	var s LCStatus
	if err := s.UnmarshalText([]byte("delivered_confirmed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != LCDeliveredConfirmed {
		t.Errorf("expected DELIVERED_CONFIRMED, got %s", s)
	}
	if err := s.UnmarshalText([]byte("EXPIRED")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRoleSet_HoldsSeveralRoles(t *testing.T) {
	var set RoleSet
	set = set.With(RoleBank).With(RoleImporter).With(RoleBank)

	if !set.Has(RoleBank) || !set.Has(RoleImporter) || set.Has(RoleAdmin) {
		t.Errorf("unexpected role set %v", set.Names())
	}
	if set.Has(RoleNone) {
		t.Errorf("expected NONE never to be held")
	}
	if role, ok := ParseRole("logistics"); !ok || role != RoleLogistics {
		t.Errorf("expected LOGISTICS, got %s", role)
	}
	if _, ok := ParseRole("none"); ok {
		t.Errorf("expected NONE not to parse as a grantable role")
	}
}

func TestProtocolError_CarriesKindAndField(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Reject("releasePayment", ErrInsufficientAllowance, "allowance", "499", "500"))

	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance in chain")
	}
	if Code(err) != "INSUFFICIENT_ALLOWANCE" {
		t.Errorf("unexpected code %s", Code(err))
	}
	want := "wrapped: releasePayment: insufficient allowance (allowance is 499, requires 500)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	if Code(errors.New("boom")) != "INTERNAL" {
		t.Errorf("expected INTERNAL for unknown errors")
	}
}

func TestEvent_PartitionKey(t *testing.T) {
	lc := NewEvent(EventLCCreated, testTime).With("lc_id", "4").With("product_id", "0")
	product := NewEvent(EventProductCreated, testTime).With("product_id", "0")
	role := NewEvent(EventRoleGranted, testTime).With("account", "0xabc")

	if lc.PartitionKey() != "lc-4" || product.PartitionKey() != "product-0" || role.PartitionKey() != "0xabc" {
		t.Errorf("unexpected keys %q %q %q", lc.PartitionKey(), product.PartitionKey(), role.PartitionKey())
	}
	if lc.ID == "" || lc.ID == product.ID {
		t.Errorf("expected unique event ids")
	}
}
