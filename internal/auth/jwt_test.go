package auth

import "testing"

func TestGenerateAndValidateToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	token, err := issuer.GenerateUserToken("user-123")
	if err != nil {
		t.Fatalf("GenerateUserToken: %v", err)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "user-123")
	}
	if claims.Role != "user" {
		t.Errorf("Role = %q, want %q", claims.Role, "user")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a").GenerateUserToken("user-123")
	if err != nil {
		t.Fatalf("GenerateUserToken: %v", err)
	}

	if _, err := NewTokenIssuer("secret-b").ValidateToken(token); err == nil {
		t.Error("expected validation failure with a different secret")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	if _, err := issuer.ValidateToken("not.a.token"); err == nil {
		t.Error("expected validation failure for malformed token")
	}
}
