package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalDeadline is the bank approval SLA measured from LC opening. The
// boundary is inclusive.
const ApprovalDeadline = 3 * 24 * time.Hour

type LCStatus uint8

const (
	LCOpened LCStatus = iota
	LCApproved
	LCShipped
	LCDeliveredPending
	LCDeliveredConfirmed
	LCUnderReview
	LCPaid
	LCCancelled
)

var lcStatusNames = [...]string{
	LCOpened:             "OPENED",
	LCApproved:           "APPROVED",
	LCShipped:            "SHIPPED",
	LCDeliveredPending:   "DELIVERED_PENDING",
	LCDeliveredConfirmed: "DELIVERED_CONFIRMED",
	LCUnderReview:        "UNDER_REVIEW",
	LCPaid:               "PAID",
	LCCancelled:          "CANCELLED",
}

func (s LCStatus) String() string {
	if int(s) < len(lcStatusNames) {
		return lcStatusNames[s]
	}
	return "UNKNOWN"
}

func (s LCStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LCStatus) UnmarshalText(text []byte) error {
	parsed, ok := ParseLCStatus(string(text))
	if !ok {
		return fmt.Errorf("%w: unknown LC status %q", ErrInvalidInput, text)
	}
	*s = parsed
	return nil
}

// ParseLCStatus accepts a status name in any case.
func ParseLCStatus(name string) (LCStatus, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, candidate := range lcStatusNames {
		if candidate == name {
			return LCStatus(i), true
		}
	}
	return 0, false
}

func (s LCStatus) Terminal() bool {
	return s == LCPaid || s == LCCancelled
}

// Disputable reports whether a buyer may raise a dispute from s. All three
// source states collapse into UNDER_REVIEW and the origin is not kept.
func (s LCStatus) Disputable() bool {
	switch s {
	case LCShipped, LCDeliveredPending, LCDeliveredConfirmed:
		return true
	default:
		return false
	}
}

var lcTransitions = map[LCStatus][]LCStatus{
	LCOpened:             {LCApproved},
	LCApproved:           {LCShipped},
	LCShipped:            {LCDeliveredPending, LCUnderReview},
	LCDeliveredPending:   {LCDeliveredConfirmed, LCUnderReview},
	LCDeliveredConfirmed: {LCPaid, LCUnderReview},
	LCUnderReview:        {LCDeliveredConfirmed, LCCancelled},
}

// CanTransition reports whether from -> to is an edge of the LC graph.
func CanTransition(from, to LCStatus) bool {
	for _, next := range lcTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type LetterOfCredit struct {
	ID            uint64          `json:"id"`
	ProductID     uint64          `json:"product_id"`
	Buyer         string          `json:"buyer"`
	Seller        string          `json:"seller"`
	Bank          string          `json:"bank,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        LCStatus        `json:"status"`
	OpenedAt      time.Time       `json:"opened_at"`
	DisputeRaised bool            `json:"dispute_raised"`
	Released      bool            `json:"released"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ApprovalDeadlineAt returns the last instant at which the LC may be approved.
func (lc *LetterOfCredit) ApprovalDeadlineAt() time.Time {
	return lc.OpenedAt.Add(ApprovalDeadline)
}

type Settlement struct {
	LCID      uint64          `json:"lc_id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	SettledAt time.Time       `json:"settled_at"`
}
