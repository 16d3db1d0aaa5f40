package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/rhuss/dbgate/pkg/api"
	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/auth/bearer"
	"github.com/rhuss/dbgate/pkg/auth/integrated"
	"github.com/rhuss/dbgate/pkg/auth/mixedmode"
)

func TestRejections(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		opts       []requestOption
		wantStatus int
		wantError  string
		challenge  string
	}{
		{
			name:       "no credentials",
			path:       "/databases/db1/docs",
			wantStatus: http.StatusUnauthorized,
			wantError:  integrated.MsgAuthRequired,
			challenge:  "Basic",
		},
		{
			name:       "wrong password",
			path:       "/databases/db1/docs",
			opts:       []requestOption{withBasic("alice", "nope")},
			wantStatus: http.StatusUnauthorized,
			wantError:  integrated.MsgInvalidCredentials,
			challenge:  "Basic",
		},
		{
			name:       "basic user on foreign database",
			path:       "/databases/db2/docs",
			opts:       []requestOption{withBasic("alice", testPassword)},
			wantStatus: http.StatusForbidden,
			wantError:  auth.ForbiddenMessage("db2"),
		},
		{
			name:       "basic user on system database",
			path:       "/admin/stats",
			opts:       []requestOption{withBasic("alice", testPassword)},
			wantStatus: http.StatusForbidden,
			wantError:  auth.ForbiddenMessage("<system>"),
		},
		{
			name:       "unknown api key",
			path:       "/databases/db2/docs",
			opts:       []requestOption{withBearer("sk-unknown")},
			wantStatus: http.StatusUnauthorized,
			wantError:  bearer.MsgInvalidToken,
			challenge:  "Bearer",
		},
		{
			name:       "api key announced but not exchanged",
			path:       "/databases/db2/docs",
			opts:       []requestOption{withHeader(auth.HeaderHasAPIKey, "True")},
			wantStatus: http.StatusPreconditionFailed,
			wantError:  bearer.MsgAPIKeyNotExchanged,
		},
		{
			name:       "bogus single use token wins over valid bearer",
			path:       "/databases/db2/docs",
			opts:       []requestOption{withBearer(testAPIKey), withHeader(auth.HeaderSingleUseToken, "bogus")},
			wantStatus: http.StatusForbidden,
			wantError:  mixedmode.MsgUnknownToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, "GET", tt.path, tt.opts...)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, readBody(t, resp))
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if tt.challenge != "" && !strings.HasPrefix(resp.Header.Get("WWW-Authenticate"), tt.challenge) {
				t.Errorf("WWW-Authenticate = %q, want %s challenge", resp.Header.Get("WWW-Authenticate"), tt.challenge)
			}

			var body api.ErrorResponse
			decodeJSON(t, resp, &body)
			if body.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", body.Error, tt.wantError)
			}
		})
	}
}

func TestCORSPreflightSkipsAuth(t *testing.T) {
	resp := doRequest(t, "OPTIONS", "/databases/db1/docs", withBearer("garbage"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", resp.StatusCode)
	}
}
