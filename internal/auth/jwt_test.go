package auth

import (
	"testing"
	"time"
)

func TestIssueAndParseSessionTokenRoundTrips(t *testing.T) {
	token, err := IssueSessionToken("secret", "user-1", true, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := ParseSessionToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-1" || !claims.IsAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseSessionTokenRejectsWrongSecret(t *testing.T) {
	token, _ := IssueSessionToken("secret", "user-1", false, time.Hour)
	if _, err := ParseSessionToken("wrong-secret", token); err == nil {
		t.Fatal("expected signature verification failure")
	}
}

func TestParseSessionTokenRejectsExpiredToken(t *testing.T) {
	token, _ := IssueSessionToken("secret", "user-1", false, -time.Minute)
	if _, err := ParseSessionToken("secret", token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
