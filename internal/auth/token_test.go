package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	s := NewTokenService("test-secret", time.Hour)

	token, err := s.Issue("u1")
	if err != nil {
		t.Fatal(err)
	}
	userID, err := s.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if userID != "u1" {
		t.Fatalf("subject = %q, want u1", userID)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Hour)
	verifier := NewTokenService("secret-b", time.Hour)

	token, err := issuer.Issue("u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := NewTokenService("test-secret", -time.Minute)
	token, err := s.Issue("u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Verify(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestDisabledService(t *testing.T) {
	s := NewTokenService("", time.Hour)
	if s.Enabled() {
		t.Fatal("empty secret must disable the service")
	}
	if _, err := s.Issue("u1"); err == nil {
		t.Fatal("expected issue to fail when disabled")
	}
	if _, err := s.Verify("anything"); err == nil {
		t.Fatal("expected verify to fail when disabled")
	}
}

func TestSessionUserIDNamespace(t *testing.T) {
	if SessionUserID("abc") != "session:abc" {
		t.Fatalf("unexpected session namespace %q", SessionUserID("abc"))
	}
}
