package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsErrCode(t *testing.T) {
	wrapped := fmt.Errorf("upload: %w", NewFileTooLargeError(10))
	if !IsErrCode(wrapped, ErrCodeFileTooLarge) {
		t.Error("wrapped error lost its code")
	}
	if IsErrCode(wrapped, ErrCodeInternal) {
		t.Error("matched the wrong code")
	}
	if IsErrCode(nil, ErrCodeInternal) {
		t.Error("nil matched")
	}
}

func TestResponseError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrCode
	}{
		{"typed", NewDetectionUnknownError("abc"), http.StatusNotFound, ErrCodeDetectionUnknown},
		{"wrapped", fmt.Errorf("x: %w", NewUserRequiredError()), http.StatusUnauthorized, ErrCodeUserRequired},
		{"plain", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ResponseError(rec, tt.err)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var info ErrorInfo
			if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
				t.Fatal(err)
			}
			if info.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", info.Code, tt.wantCode)
			}
		})
	}
}
