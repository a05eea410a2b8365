package verification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lexiqai/speech-relay/internal/config"
)

func newTestVerifier(url, secret string) *RecaptchaVerifier {
	return NewRecaptchaVerifier(&config.Config{
		RecaptchaSecretKey: secret,
		RecaptchaVerifyURL: url,
		RecaptchaMinScore:  0.5,
	})
}

func siteverify(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
			return
		}
		if r.PostForm.Get("secret") != "s3cret" || r.PostForm.Get("response") != "token" {
			t.Errorf("Unexpected form %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestRecaptchaVerifier(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "human", body: `{"success":true,"score":0.9,"action":"submit_tts"}`},
		{name: "threshold score passes", body: `{"success":true,"score":0.5,"action":"submit_tts"}`},
		{name: "low score", body: `{"success":true,"score":0.3,"action":"submit_tts"}`, wantErr: ErrRejected},
		{name: "failed check", body: `{"success":false,"error-codes":["invalid-input-response"]}`, wantErr: ErrRejected},
		{name: "wrong action", body: `{"success":true,"score":0.9,"action":"login"}`, wantErr: ErrRejected},
		{name: "garbage", body: `<html>`, wantErr: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := siteverify(t, tt.body)
			defer server.Close()

			err := newTestVerifier(server.URL, "s3cret").Verify(context.Background(), "token", "1.2.3.4")
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRecaptchaVerifier_MissingToken(t *testing.T) {
	err := newTestVerifier("http://unused.invalid", "s3cret").Verify(context.Background(), "", "")
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("Expected ErrMissingToken, got %v", err)
	}
}

func TestRecaptchaVerifier_Misconfigured(t *testing.T) {
	err := newTestVerifier("http://unused.invalid", "").Verify(context.Background(), "token", "")
	if !errors.Is(err, ErrMisconfigured) {
		t.Errorf("Expected ErrMisconfigured, got %v", err)
	}
}

func TestRecaptchaVerifier_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := newTestVerifier(server.URL, "s3cret").Verify(context.Background(), "token", "")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(&config.Config{}).(Disabled); !ok {
		t.Error("Expected Disabled verifier when verification is off")
	}
	if _, ok := New(&config.Config{VerificationEnabled: true, RecaptchaSecretKey: "x"}).(*RecaptchaVerifier); !ok {
		t.Error("Expected RecaptchaVerifier when verification is on")
	}
	if err := (Disabled{}).Verify(context.Background(), "", ""); err != nil {
		t.Errorf("Expected Disabled to admit, got %v", err)
	}
}
