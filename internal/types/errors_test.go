package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := NewAppError(ErrCodeNotFoundAd, "ad not found", nil)

	expected := "not_found_ad: ad not found"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	appErr := NewAppError(ErrCodeInternalDB, "failed to lock ad", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the underlying error")
	}

	wrapped := fmt.Errorf("renew: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeInternalDB {
		t.Errorf("extracted Code = %q, want %q", target.Code, ErrCodeInternalDB)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidBody, http.StatusBadRequest},
		{ErrCodeAuthOwnerMissing, http.StatusUnauthorized},
		{ErrCodePermissionNotOwner, http.StatusForbidden},
		{ErrCodeNotFoundAd, http.StatusNotFound},
		{ErrCodeGoneAd, http.StatusGone},
		{ErrCodeConflictInvalidState, http.StatusConflict},
		{ErrCodeUpstreamQueue, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorWithDetailsDoesNotMutate(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeConflictInvalidState, "bad state", nil, map[string]any{"status": "draft"})
	extended := base.WithDetails(map[string]any{"ad_id": "ad-1"})

	if len(base.Details) != 1 {
		t.Errorf("original details mutated: %v", base.Details)
	}
	if extended.Details["status"] != "draft" || extended.Details["ad_id"] != "ad-1" {
		t.Errorf("merged details = %v", extended.Details)
	}
}

func TestSecretStringRedacts(t *testing.T) {
	s := SecretString("postgres://user:pw@host/db")

	if strings.Contains(fmt.Sprintf("%s %v", s, s), "pw@host") {
		t.Error("fmt leaked the raw secret")
	}

	b, err := json.Marshal(struct {
		URL SecretString `json:"url"`
	}{URL: s})
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if strings.Contains(string(b), "pw@host") {
		t.Errorf("JSON leaked the raw secret: %s", b)
	}
	if s.Unmask() != "postgres://user:pw@host/db" {
		t.Error("Unmask should return the raw value")
	}
}
