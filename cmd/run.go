package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/qbit-dedup/metrics"
	"github.com/s0up4200/qbit-dedup/orchestrator"
	"github.com/s0up4200/qbit-dedup/qbittorrent"
	"github.com/s0up4200/qbit-dedup/trigger"
)

var loginRetryInterval = 5 * time.Second

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch qBittorrent and remove duplicate torrents",
	Long: `Run the deduplication daemon until interrupted.

A reconciliation pass runs at startup and then whenever the trigger fires:
every check interval when the torrent list changed, or shortly after
qBittorrent reports a new torrent when the push channel is enabled.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, protect, err := groupPolicy()
	if err != nil {
		return err
	}

	session, err := newSession()
	if err != nil {
		return err
	}

	logger.Info().
		Str("url", cfg.QBittorrent.URL).
		Bool("dry_run", cfg.Safety.DryRun).
		Bool("delete_files", cfg.Safety.DeleteFiles).
		Str("group_by", policy.Name()).
		Bool("websocket", cfg.Trigger.UseWebsocket).
		Str("version", version).
		Msg("Starting qbit-dedup")

	if cfg.Safety.DryRun {
		logger.Warn().Msg("[DRY RUN] No torrents will be deleted")
	}

	if err := waitForLogin(ctx, session); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client := qbittorrent.NewClient(session, logger)
	orch := orchestrator.New(client, orchestrator.Options{
		DryRun:      cfg.Safety.DryRun,
		DeleteFiles: cfg.Safety.DeleteFiles,
		Policy:      policy,
		Protect:     protect,
		DeleteRate:  cfg.Safety.DeleteRate,
	}, logger)

	trig := newTrigger(session)
	queue := trigger.NewQueue()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return trig.Run(gctx, queue)
	})
	g.Go(func() error {
		return orch.Run(gctx, queue.C())
	})
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			if err := metrics.Serve(gctx, cfg.Metrics.Listen, reg, logger); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info().Msg("Shutting down")
	return err
}

// newTrigger picks the push channel or polling according to configuration
func newTrigger(session *qbittorrent.Session) trigger.Trigger {
	if !cfg.Trigger.UseWebsocket {
		return trigger.NewPollingTrigger(cfg.Trigger.CheckInterval(), logger)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.QBittorrent.Timeout(),
	}
	if cfg.QBittorrent.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return trigger.NewEventTrigger(
		session.WebSocketURL(trigger.PushPath),
		session,
		cfg.Trigger.CheckInterval(),
		logger,
		trigger.WithDialer(dialer),
		trigger.WithHandshakeTimeout(cfg.QBittorrent.Timeout()),
	)
}

// waitForLogin logs in, retrying while qBittorrent is unreachable. Rejected
// credentials are returned immediately.
func waitForLogin(ctx context.Context, session *qbittorrent.Session) error {
	for {
		err := session.Login(ctx)
		if err == nil {
			logger.Info().Str("url", session.BaseURL()).Msg("Logged in to qBittorrent")
			return nil
		}

		var transportErr *qbittorrent.TransportError
		if !errors.As(err, &transportErr) {
			return fmt.Errorf("failed to log in to qBittorrent: %w", err)
		}

		logger.Warn().Err(err).Dur("retry_in", loginRetryInterval).Msg("qBittorrent unreachable, retrying login")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(loginRetryInterval):
		}
	}
}
