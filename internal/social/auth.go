package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Credentials are the password-grant client credentials the environment
// collaborator supplies (CLIENT_ID, SECRET, USER_NAME, PASSWORD).
type Credentials struct {
	ClientID string
	Secret   string
	Username string
	Password string
}

// bearerToken is the adapter's internal auth lifecycle state.
// Considered valid if now < ExpiresAt - 60s.
type bearerToken struct {
	token     string
	expiresAt time.Time
}

func (t bearerToken) validAt(now time.Time) bool {
	return t.token != "" && now.Before(t.expiresAt.Add(-60*time.Second))
}

// tokenSource owns the bearer token lifecycle for one adapter instance. Its
// state is protected by a mutex so token refresh contention is per-adapter
// rather than global: adapters are cloned per user/poller.
type tokenSource struct {
	mu    sync.Mutex
	creds Credentials
	host  string // e.g. "reddit.com"
	hc    *http.Client
	tok   bearerToken
}

func newTokenSource(creds Credentials, host string, hc *http.Client) *tokenSource {
	return &tokenSource{creds: creds, host: host, hc: hc}
}

// token returns a currently-valid bearer token, lazily acquiring it or
// running the refresh exchange when within 60s of expiry.
func (ts *tokenSource) token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	if ts.tok.validAt(now) {
		return ts.tok.token, nil
	}

	if ts.tok.token == "" {
		return ts.acquire(ctx, "password", url.Values{
			"username": {ts.creds.Username},
			"password": {ts.creds.Password},
		})
	}
	return ts.acquire(ctx, "refresh_token", url.Values{
		"refresh_token": {ts.tok.token},
	})
}

func (ts *tokenSource) acquire(ctx context.Context, grantType string, extra url.Values) (string, error) {
	q := url.Values{"grant_type": {grantType}}
	for k, v := range extra {
		q[k] = v
	}
	endpoint := fmt.Sprintf("https://www.%s/api/v1/access_token?%s", ts.host, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", authErr(err)
	}
	req.SetBasicAuth(ts.creds.ClientID, ts.creds.Secret)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := ts.hc.Do(req)
	if err != nil {
		return "", authErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", authErr(fmt.Errorf("access_token: unexpected status %s", resp.Status))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", authErr(err)
	}
	if body.AccessToken == "" {
		return "", authErr(fmt.Errorf("access_token: empty token in response"))
	}

	ts.tok = bearerToken{
		token:     body.AccessToken,
		expiresAt: time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	return ts.tok.token, nil
}

// UserAgent is the fixed header every request carries.
const UserAgent = "go:listingbot:v1.0.0 (by curation engine)"

func trimHost(host string) string {
	return strings.TrimSuffix(strings.TrimPrefix(host, "https://"), "/")
}
