package qbittorrent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"
)

// Client is the typed qBittorrent WebAPI client used by the reconciler.
// Every call goes through the Session so an expired cookie is refreshed once.
type Client struct {
	session *Session
	logger  zerolog.Logger
}

// NewClient creates a new qBittorrent client on top of session
func NewClient(session *Session, logger zerolog.Logger) *Client {
	return &Client{
		session: session,
		logger:  logger.With().Str("component", "qbittorrent").Logger(),
	}
}

// Session returns the session the client authenticates with
func (c *Client) Session() *Session {
	return c.session
}

// ListEntries retrieves all torrents from qBittorrent. It never returns a
// partial list.
func (c *Client) ListEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	err := c.session.EnsureAuthenticated(ctx, "list torrents", func(ctx context.Context) error {
		body, err := c.doRequest(ctx, "list torrents", http.MethodGet, "/torrents/info", nil)
		if err != nil {
			return err
		}

		var torrents []qbt.Torrent
		if err := json.Unmarshal(body, &torrents); err != nil {
			return &TransportError{Op: "list torrents", Err: fmt.Errorf("failed to decode response: %w", err)}
		}

		entries = make([]Entry, 0, len(torrents))
		for _, t := range torrents {
			entries = append(entries, newEntry(t))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Msgf("Retrieved %d torrents from qBittorrent", len(entries))
	return entries, nil
}

// DeleteEntry removes a torrent. It reports whether qBittorrent acknowledged
// the deletion; a non-2xx answer is returned as *DeletionRejectedError.
func (c *Client) DeleteEntry(ctx context.Context, hash string, deleteFiles bool) (bool, error) {
	form := url.Values{
		"hashes":      {hash},
		"deleteFiles": {strconv.FormatBool(deleteFiles)},
	}

	err := c.session.EnsureAuthenticated(ctx, "delete torrent", func(ctx context.Context) error {
		_, err := c.doRequest(ctx, "delete torrent", http.MethodPost, "/torrents/delete", form)
		return err
	})
	if err == nil {
		c.logger.Debug().Str("hash", hash).Bool("delete_files", deleteFiles).Msg("Torrent deleted")
		return true, nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false, err
	}
	if apiErr, ok := asAPIError(err); ok {
		return false, &DeletionRejectedError{Hash: hash, StatusCode: apiErr.StatusCode, Body: apiErr.Body}
	}
	return false, err
}

// doRequest performs a WebAPI request. Non-2xx answers come back as
// *TransportError wrapping *APIError so callers can still detect 401/403.
func (c *Client) doRequest(ctx context.Context, op, method, path string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.session.Endpoint(path), reqBody)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Op: op, Err: &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(body)),
		}}
	}

	return body, nil
}
