package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/remaimber-it/drivetheory/internal/auth"
)

func TestIssueAndVerify(t *testing.T) {
	v := auth.NewVerifier("secret", "drivetheory")
	tok, err := v.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %q", claims.Subject)
	}
}

func TestVerify_Rejects(t *testing.T) {
	v := auth.NewVerifier("secret", "drivetheory")

	expired, _ := v.Issue("user-1", -time.Minute)
	otherIssuer, _ := auth.NewVerifier("secret", "elsewhere").Issue("user-1", time.Hour)
	otherSecret, _ := auth.NewVerifier("nope", "drivetheory").Issue("user-1", time.Hour)
	noSubject, _ := v.Issue("", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1", "iss": "drivetheory"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"expired":      expired,
		"other issuer": otherIssuer,
		"other secret": otherSecret,
		"no subject":   noSubject,
		"alg none":     none,
		"garbage":      "not-a-token",
	} {
		if _, err := v.Verify(tok); !errors.Is(err, auth.ErrUnauthorized) {
			t.Errorf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestMiddleware(t *testing.T) {
	v := auth.NewVerifier("secret", "")
	var seen string
	h := auth.Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.UserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}

	tok, _ := v.Issue("user-7", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || seen != "user-7" {
		t.Errorf("expected user-7 to pass, got %d %q", rec.Code, seen)
	}
}
