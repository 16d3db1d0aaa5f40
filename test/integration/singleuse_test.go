package integration

import (
	"net/http"
	"sync"
	"testing"

	"github.com/rhuss/dbgate/pkg/api"
	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/auth/mixedmode"
)

func TestSingleUseToken_Download(t *testing.T) {
	token := issueToken(t, "db1", withBasic("alice", testPassword))

	// The download carries only the token, as a browser link would.
	resp := doRequest(t, "GET", "/databases/db1/streams/export", withHeader(auth.HeaderSingleUseToken, token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var echo upstreamEcho
	decodeJSON(t, resp, &echo)

	if echo.User != "alice" || echo.AuthType != auth.SnapshotAuthenticationType {
		t.Errorf("upstream identity = %s/%s", echo.User, echo.AuthType)
	}
	if echo.Database != "db1" {
		t.Errorf("upstream database = %q", echo.Database)
	}
}

func TestSingleUseToken_Failures(t *testing.T) {
	reused := issueToken(t, "db1", withBasic("alice", testPassword))
	readBody(t, doRequest(t, "GET", "/databases/db1/docs", withHeader(auth.HeaderSingleUseToken, reused)))

	tests := []struct {
		name    string
		token   string
		path    string
		wantMsg string
	}{
		{"reused", reused, "/databases/db1/docs", mixedmode.MsgUnknownToken},
		{"unknown", "not-a-token", "/databases/db1/docs", mixedmode.MsgUnknownToken},
		{"wrong database", issueToken(t, "db1", withBasic("alice", testPassword)), "/databases/db2/docs", mixedmode.MsgWrongTenant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, "GET", tt.path, withHeader(auth.HeaderSingleUseToken, tt.token))
			if resp.StatusCode != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", resp.StatusCode)
			}
			var body api.ErrorResponse
			decodeJSON(t, resp, &body)
			if body.Error != tt.wantMsg {
				t.Errorf("Error = %q, want %q", body.Error, tt.wantMsg)
			}
		})
	}
}

func TestSingleUseToken_WrongDatabaseConsumesToken(t *testing.T) {
	token := issueToken(t, "db1", withBasic("alice", testPassword))

	readBody(t, doRequest(t, "GET", "/databases/db2/docs", withHeader(auth.HeaderSingleUseToken, token)))

	resp := doRequest(t, "GET", "/databases/db1/docs", withHeader(auth.HeaderSingleUseToken, token))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403 after misuse", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSingleUseToken_IssuedViaJWT(t *testing.T) {
	token := issueToken(t, "db3", withBearer(signJWT(t, "carol", "db3")))

	resp := doRequest(t, "GET", "/databases/db3/docs", withHeader(auth.HeaderSingleUseToken, token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var echo upstreamEcho
	decodeJSON(t, resp, &echo)
	if echo.User != "carol" {
		t.Errorf("upstream user = %q, want carol", echo.User)
	}
}

func TestSingleUseToken_ConcurrentRedemption(t *testing.T) {
	token := issueToken(t, "db1", withBasic("alice", testPassword))

	const racers = 8
	var wg sync.WaitGroup
	statuses := make(chan int, racers)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest("GET", testEnv.BaseURL()+"/databases/db1/docs", nil)
			if err != nil {
				statuses <- 0
				return
			}
			req.Header.Set(auth.HeaderSingleUseToken, token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	ok, forbidden := 0, 0
	for s := range statuses {
		switch s {
		case http.StatusOK:
			ok++
		case http.StatusForbidden:
			forbidden++
		}
	}
	if ok != 1 || forbidden != racers-1 {
		t.Errorf("ok = %d, forbidden = %d, want 1 and %d", ok, forbidden, racers-1)
	}
}
