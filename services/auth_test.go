package services

import (
	"strings"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	s := NewAuthService()

	token, err := s.CreateJWT("user-123", "alex@example.com")
	if err != nil {
		t.Fatalf("CreateJWT: %v", err)
	}
	userID, err := s.VerifyJWT(token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("subject = %q, want user-123", userID)
	}
}

func TestVerifyJWTRejectsGarbage(t *testing.T) {
	s := NewAuthService()
	if _, err := s.VerifyJWT("not-a-token"); err == nil {
		t.Fatal("garbage token accepted")
	}
}

func TestMagicLinkIsOneTimeUse(t *testing.T) {
	s := NewAuthService()

	link, err := s.GenerateMagicLink("alex@example.com", "http://localhost:3001")
	if err != nil {
		t.Fatalf("GenerateMagicLink: %v", err)
	}
	idx := strings.Index(link, "token=")
	if idx < 0 {
		t.Fatalf("magic link carries no token: %s", link)
	}
	token := link[idx+len("token="):]

	email, err := s.VerifyMagicLinkToken(token)
	if err != nil {
		t.Fatalf("VerifyMagicLinkToken: %v", err)
	}
	if email != "alex@example.com" {
		t.Errorf("email = %q, want alex@example.com", email)
	}

	if _, err := s.VerifyMagicLinkToken(token); err == nil {
		t.Fatal("token accepted twice")
	}
}

func TestExpiredTokensSweptOnGenerate(t *testing.T) {
	s := NewAuthService()

	s.mu.Lock()
	s.tokens["stale"] = magicToken{
		email:     "old@example.com",
		createdAt: time.Now().Add(-2 * magicLinkTTL),
	}
	s.tokens["fresh"] = magicToken{
		email:     "recent@example.com",
		createdAt: time.Now(),
	}
	s.mu.Unlock()

	if _, err := s.GenerateMagicLink("new@example.com", "http://localhost:3001"); err != nil {
		t.Fatalf("GenerateMagicLink: %v", err)
	}

	s.mu.Lock()
	_, staleKept := s.tokens["stale"]
	_, freshKept := s.tokens["fresh"]
	size := len(s.tokens)
	s.mu.Unlock()

	if staleKept {
		t.Error("expired token survived the sweep")
	}
	if !freshKept {
		t.Error("live token swept")
	}
	if size != 2 {
		t.Errorf("token map holds %d entries, want 2 (fresh + new)", size)
	}
}
