package qbittorrent

import (
	"context"
	"fmt"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"
)

// Probe checks connectivity with the upstream go-qbittorrent client. It is
// independent of Session so a connection test does not share cookies or
// retry logic with the daemon.
type Probe struct {
	client *qbt.Client
	host   string
	logger zerolog.Logger
}

// NewProbe creates a probe and tests the connection by logging in
func NewProbe(ctx context.Context, url, username, password string, skipVerify bool, timeout time.Duration, logger zerolog.Logger) (*Probe, error) {
	client := qbt.NewClient(qbt.Config{
		Host:          url,
		Username:      username,
		Password:      password,
		TLSSkipVerify: skipVerify,
		Timeout:       int(timeout.Seconds()),
	})

	if err := client.LoginCtx(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to qBittorrent: %w", err)
	}

	return &Probe{
		client: client,
		host:   url,
		logger: logger,
	}, nil
}

// Entries retrieves all torrents from qBittorrent
func (p *Probe) Entries(ctx context.Context) ([]Entry, error) {
	torrents, err := p.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get torrents: %w", err)
	}

	p.logger.Debug().Str("host", p.host).Msgf("Retrieved %d torrents from qBittorrent", len(torrents))

	entries := make([]Entry, 0, len(torrents))
	for _, t := range torrents {
		entries = append(entries, newEntry(t))
	}
	return entries, nil
}
