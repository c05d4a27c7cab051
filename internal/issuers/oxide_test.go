package issuers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tokex-dev/tokex/internal/config"
	"github.com/tokex-dev/tokex/internal/core"
)

func TestSiloIssuer_Issue(t *testing.T) {
	var confirmedUserCode string
	var confirmAuth string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /device/auth", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing auth form: %v", err)
		}
		if got := r.PostForm.Get("ttl_seconds"); got != "3600" {
			t.Errorf("ttl_seconds = %q, want %q", got, "3600")
		}
		if r.PostForm.Get("client_id") == "" {
			t.Error("device auth request has no client_id")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"device_code": "dev-code-1",
			"user_code":   "USER-CODE",
		})
	})
	mux.HandleFunc("POST /device/confirm", func(w http.ResponseWriter, r *http.Request) {
		confirmAuth = r.Header.Get("Authorization")
		var body struct {
			UserCode string `json:"user_code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		confirmedUserCode = body.UserCode
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /device/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing token form: %v", err)
		}
		if got := r.PostForm.Get("device_code"); got != "dev-code-1" {
			t.Errorf("device_code = %q, want %q", got, "dev-code-1")
		}
		if got := r.PostForm.Get("grant_type"); got != deviceGrantType {
			t.Errorf("grant_type = %q, want %q", got, deviceGrantType)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "oxide-token-abc"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	issuer := NewSiloIssuer([]config.SiloConfig{
		{Silo: srv.URL, Token: config.Secret("root-secret")},
	}, srv.Client())

	artifact, err := issuer.Issue(context.Background(), &core.SiloTokenRequest{
		Silo:     srv.URL,
		Duration: 3600,
	})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if artifact.AccessToken != "oxide-token-abc" {
		t.Errorf("AccessToken = %q, want %q", artifact.AccessToken, "oxide-token-abc")
	}
	if confirmedUserCode != "USER-CODE" {
		t.Errorf("confirmed user_code = %q, want %q", confirmedUserCode, "USER-CODE")
	}
	if confirmAuth != "Bearer root-secret" {
		t.Errorf("confirm Authorization = %q, want root credential", confirmAuth)
	}

	wantExpiry := time.Now().Add(3600 * time.Second)
	if diff := artifact.ExpiresAt.Sub(wantExpiry); diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("ExpiresAt = %v, want ≈ %v", artifact.ExpiresAt, wantExpiry)
	}
	if artifact.Fingerprint == "" {
		t.Error("artifact has no fingerprint")
	}
}

func TestSiloIssuer_UnknownSilo(t *testing.T) {
	issuer := NewSiloIssuer([]config.SiloConfig{
		{Silo: "https://silo.example", Token: config.Secret("root")},
	}, nil)

	_, err := issuer.Issue(context.Background(), &core.SiloTokenRequest{
		Silo:     "https://other.example",
		Duration: 60,
	})
	if kind := core.KindOf(err); kind != core.KindScopeUnavailable {
		t.Errorf("KindOf() = %v, want %v", kind, core.KindScopeUnavailable)
	}
}

func TestSiloIssuer_UpstreamRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /device/auth", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "access_denied",
			"error_description": "root credential revoked",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	issuer := NewSiloIssuer([]config.SiloConfig{
		{Silo: srv.URL, Token: config.Secret("root")},
	}, srv.Client())

	_, err := issuer.Issue(context.Background(), &core.SiloTokenRequest{Silo: srv.URL, Duration: 60})
	if kind := core.KindOf(err); kind != core.KindUpstreamRejected {
		t.Fatalf("KindOf() = %v, want %v", kind, core.KindUpstreamRejected)
	}
	// the upstream's reported reason is carried, the credential is not
	if msg := err.Error(); !strings.Contains(msg, "root credential revoked") {
		t.Errorf("error %q does not carry the upstream reason", msg)
	}
}

func TestUpstreamReason(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "Error Description Preferred",
			body: `{"error": "denied", "error_description": "expired device code"}`,
			want: "expired device code",
		},
		{
			name: "Message Field",
			body: `{"message": "silo not found"}`,
			want: "silo not found",
		},
		{
			name: "Error Field",
			body: `{"error": "invalid_grant"}`,
			want: "invalid_grant",
		},
		{
			name: "Unparseable Body",
			body: `<html>bad gateway</html>`,
			want: "<html>bad gateway</html>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := upstreamReason([]byte(tt.body)); got != tt.want {
				t.Errorf("upstreamReason() = %q, want %q", got, tt.want)
			}
		})
	}
}
