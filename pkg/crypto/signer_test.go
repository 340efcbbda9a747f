package crypto

import (
	"errors"
	"testing"
	"time"
)

const (
	secret  = "test-secret-that-is-at-least-32-bytes-long"
	account = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

func TestSigner_IssueAndVerify(t *testing.T) {
	signer, err := NewSigner(secret, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := signer.IssueToken(account, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := signer.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if got != account {
		t.Errorf("expected subject %s, got %s", account, got)
	}
}

func TestSigner_RejectsExpiredToken(t *testing.T) {
	signer, _ := NewSigner(secret, nil)
	issuedAt := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return issuedAt }
	token, _ := signer.IssueToken(account, time.Minute)

	signer.now = func() time.Time { return issuedAt.Add(time.Hour) }
	_, err := signer.VerifyToken(token)

	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSigner_RejectsForeignSignature(t *testing.T) {
	issuerSigner, _ := NewSigner(secret, nil)
	otherSigner, _ := NewSigner("another-secret-that-is-also-32-bytes!!", nil)
	token, _ := otherSigner.IssueToken(account, time.Hour)

	if _, err := issuerSigner.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := issuerSigner.VerifyToken("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestSigner_Validation(t *testing.T) {
	if _, err := NewSigner("short", nil); err == nil {
		t.Errorf("expected error for short secret")
	}
	signer, _ := NewSigner(secret, nil)
	if _, err := signer.IssueToken("alice", time.Hour); err == nil {
		t.Errorf("expected error for malformed account")
	}
}
