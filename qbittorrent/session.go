package qbittorrent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const apiPrefix = "/api/v2"

// loginFailedBody is what qBittorrent answers (with status 200) when the
// credentials are wrong.
const loginFailedBody = "Fails."

// Session owns the qBittorrent login cookie. It is the only place that
// mutates authentication state; everything else goes through
// EnsureAuthenticated.
type Session struct {
	baseURL    *url.URL
	username   string
	password   string
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger

	mu         sync.RWMutex
	cookies    []*http.Cookie
	loggedIn   bool
	generation uint64

	logins singleflight.Group
}

// NewSession creates a session for the qBittorrent instance at baseURL.
// It does not log in; call Login or let EnsureAuthenticated do it lazily.
func NewSession(baseURL, username, password string, logger zerolog.Logger, opts ...Option) (*Session, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: URL is required", ErrInvalidConfig)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %v", ErrInvalidConfig, baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: URL scheme must be http or https, got %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: URL %q has no host", ErrInvalidConfig, baseURL)
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Session{
		baseURL:    u,
		username:   username,
		password:   password,
		userAgent:  options.userAgent,
		httpClient: options.buildHTTPClient(),
		logger:     logger.With().Str("component", "session").Logger(),
	}, nil
}

// Login authenticates against qBittorrent. Concurrent callers share a single
// login request.
func (s *Session) Login(ctx context.Context) error {
	_, err, shared := s.logins.Do("login", func() (any, error) {
		return nil, s.login(ctx)
	})
	if shared {
		s.logger.Debug().Msg("Joined in-flight login")
	}
	return err
}

func (s *Session) login(ctx context.Context) error {
	form := url.Values{
		"username": {s.username},
		"password": {s.password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint("/auth/login"), strings.NewReader(form.Encode()))
	if err != nil {
		return &TransportError{Op: "login", Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.decorate(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "login", Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "login", Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	text := strings.TrimSpace(string(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Body: text}
		if apiErr.IsUnauthorized() {
			return &AuthError{Op: "login", StatusCode: resp.StatusCode, Err: apiErr}
		}
		return &TransportError{Op: "login", Err: apiErr}
	}
	if text == loginFailedBody {
		return &AuthError{Op: "login", StatusCode: resp.StatusCode, Err: ErrBadCredentials}
	}

	s.mu.Lock()
	s.cookies = resp.Cookies()
	s.loggedIn = true
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.logger.Debug().Uint64("generation", gen).Int("cookies", len(resp.Cookies())).Msg("Logged in to qBittorrent")
	return nil
}

// EnsureAuthenticated runs fn with a valid session. If fn fails with a
// 401/403 response the session logs in again and fn is retried exactly once;
// a second authorization failure is returned as *AuthError.
func (s *Session) EnsureAuthenticated(ctx context.Context, op string, fn func(context.Context) error) error {
	if !s.LoggedIn() {
		if err := s.Login(ctx); err != nil {
			return err
		}
	}

	gen := s.currentGeneration()
	err := fn(ctx)
	if !IsUnauthorized(err) {
		return err
	}

	s.logger.Warn().Str("op", op).Err(err).Msg("Session rejected, logging in again")
	if err := s.relogin(ctx, gen); err != nil {
		return err
	}

	err = fn(ctx)
	if IsUnauthorized(err) {
		return &AuthError{Op: op, StatusCode: statusOf(err), Err: err}
	}
	return err
}

// relogin logs in again unless another caller already refreshed the session
// since gen was observed. The check runs inside the flight so a caller that
// arrives just after a login completed does not start another one.
func (s *Session) relogin(ctx context.Context, gen uint64) error {
	_, err, _ := s.logins.Do("login", func() (any, error) {
		if s.currentGeneration() != gen {
			s.logger.Debug().Msg("Session already refreshed by another caller")
			return nil, nil
		}
		return nil, s.login(ctx)
	})
	return err
}

// Do sends req with the session cookie attached.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	s.decorate(req)
	return s.httpClient.Do(req)
}

func (s *Session) decorate(req *http.Request) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Referer", s.baseURL.String())

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

// CookieHeader returns the session cookies formatted as a Cookie header value.
func (s *Session) CookieHeader() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parts := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// LoggedIn reports whether a login has succeeded.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

func (s *Session) currentGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Endpoint returns the absolute URL of a WebAPI v2 path such as "/torrents/info".
func (s *Session) Endpoint(path string) string {
	return s.baseURL.String() + apiPrefix + path
}

// WebSocketURL returns the push-channel URL for path, swapping http(s) for ws(s).
func (s *Session) WebSocketURL(path string) string {
	u := *s.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// BaseURL returns the configured qBittorrent address.
func (s *Session) BaseURL() string {
	return s.baseURL.String()
}

func statusOf(err error) int {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.StatusCode
	}
	return 0
}
