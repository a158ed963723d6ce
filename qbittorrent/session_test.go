package qbittorrent

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name    string
		baseURL string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			baseURL: "http://qbittorrent:8080",
		},
		{
			name:    "trailing slash",
			baseURL: "http://qbittorrent:8080/",
		},
		{
			name:    "missing URL",
			baseURL: "",
			wantErr: true,
			errMsg:  "URL is required",
		},
		{
			name:    "unsupported scheme",
			baseURL: "ftp://qbittorrent:21",
			wantErr: true,
			errMsg:  "scheme must be http or https",
		},
		{
			name:    "no host",
			baseURL: "http://",
			wantErr: true,
			errMsg:  "has no host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := NewSession(tt.baseURL, "admin", "secret", logger)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "http://qbittorrent:8080", session.BaseURL())
			assert.False(t, session.LoggedIn())
		})
	}
}

func TestSessionURLs(t *testing.T) {
	tests := []struct {
		baseURL  string
		endpoint string
		ws       string
	}{
		{
			baseURL:  "http://qbittorrent:8080",
			endpoint: "http://qbittorrent:8080/api/v2/torrents/info",
			ws:       "ws://qbittorrent:8080/api/v2/ws",
		},
		{
			baseURL:  "https://seedbox.example.com/qbt/",
			endpoint: "https://seedbox.example.com/qbt/api/v2/torrents/info",
			ws:       "wss://seedbox.example.com/qbt/api/v2/ws",
		},
	}

	for _, tt := range tests {
		t.Run(tt.baseURL, func(t *testing.T) {
			session, err := NewSession(tt.baseURL, "admin", "secret", zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, session.Endpoint("/torrents/info"))
			assert.Equal(t, tt.ws, session.WebSocketURL("/api/v2/ws"))
		})
	}
}

func TestSessionLogin(t *testing.T) {
	fake, srv := newFakeQBittorrent(t)

	session, err := NewSession(srv.URL, "admin", "secret", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, session.Login(context.Background()))
	assert.True(t, session.LoggedIn())
	assert.Equal(t, "SID=sid-1", session.CookieHeader())
	assert.Equal(t, 1, fake.loginCount())
}

func TestSessionLoginBadCredentials(t *testing.T) {
	_, srv := newFakeQBittorrent(t)

	session, err := NewSession(srv.URL, "admin", "wrong", zerolog.Nop())
	require.NoError(t, err)

	err = session.Login(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.False(t, session.LoggedIn())
	assert.Empty(t, session.CookieHeader())
}

func TestSessionLoginRejectedStatus(t *testing.T) {
	fake, srv := newFakeQBittorrent(t)
	fake.loginStatus = http.StatusForbidden

	session, err := NewSession(srv.URL, "admin", "secret", zerolog.Nop())
	require.NoError(t, err)

	err = session.Login(context.Background())

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusForbidden, authErr.StatusCode)
}

func TestSessionLoginServerErrorIsTransient(t *testing.T) {
	fake, srv := newFakeQBittorrent(t)
	fake.loginStatus = http.StatusBadGateway

	session, err := NewSession(srv.URL, "admin", "secret", zerolog.Nop())
	require.NoError(t, err)

	err = session.Login(context.Background())

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	var authErr *AuthError
	assert.False(t, errors.As(err, &authErr))
}

func TestSessionLoginTransportError(t *testing.T) {
	_, srv := newFakeQBittorrent(t)
	srv.Close()

	session, err := NewSession(srv.URL, "admin", "secret", zerolog.Nop())
	require.NoError(t, err)

	err = session.Login(context.Background())

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "login", transportErr.Op)
}

func TestSessionSendsCookieWithCustomHTTPClient(t *testing.T) {
	fake, srv := newFakeQBittorrent(t)
	fake.torrents = []map[string]any{
		{"hash": "aaa", "name": "Movie", "save_path": "/dl", "content_path": "/dl/Movie"},
	}

	custom := &http.Client{}
	session, err := NewSession(srv.URL, "admin", "secret", zerolog.Nop(), WithHTTPClient(custom))
	require.NoError(t, err)

	entries, err := NewClient(session, zerolog.Nop()).ListEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Nil(t, custom.Jar)
	assert.Equal(t, 1, fake.loginCount())
}

func TestEnsureAuthenticatedRetriesOnce(t *testing.T) {
	session, err := NewSession("http://qbittorrent:8080", "admin", "secret", zerolog.Nop())
	require.NoError(t, err)

	// Pretend we are logged in so no network login happens before fn.
	session.loggedIn = true

	calls := 0
	err = session.EnsureAuthenticated(context.Background(), "noop", func(ctx context.Context) error {
		calls++
		return errors.New("not an auth failure")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-auth errors must not trigger a retry")
}

func TestEnsureAuthenticatedSkipsReloginWhenRefreshed(t *testing.T) {
	fake, srv := newFakeQBittorrent(t)

	session, err := NewSession(srv.URL, "admin", "secret", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, session.Login(context.Background()))

	calls := 0
	err = session.EnsureAuthenticated(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			// Another caller refreshes the session while this request is in flight.
			require.NoError(t, session.Login(ctx))
			return &APIError{StatusCode: http.StatusForbidden}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, fake.loginCount(), "stale failure must not cause a third login")
}

func TestConcurrentReloginIsCoalesced(t *testing.T) {
	fake, srv := newFakeQBittorrent(t)
	fake.torrents = []map[string]any{{"hash": "a", "name": "A"}}

	session, err := NewSession(srv.URL, "admin", "secret", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, session.Login(context.Background()))

	client := NewClient(session, zerolog.Nop())
	fake.invalidate()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.ListEntries(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, fake.loginCount(), "initial login plus exactly one re-login")
}
