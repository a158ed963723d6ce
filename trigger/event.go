package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/s0up4200/qbit-dedup/metrics"
	"github.com/s0up4200/qbit-dedup/qbittorrent"
)

const (
	// PushPath is where qBittorrent serves its push channel
	PushPath = "/api/v2/ws"

	defaultSettleDelay      = 3 * time.Second
	defaultBackoff          = 10 * time.Second
	defaultHandshakeTimeout = 15 * time.Second
	defaultPongWait         = 60 * time.Second
	writeWait               = 10 * time.Second

	messageTorrentAdded = "torrentAdded"
	maxErrorBody        = 512
)

// Authenticator runs requests against qBittorrent with a valid session and
// exposes the session cookie for the websocket handshake.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context, op string, fn func(context.Context) error) error
	CookieHeader() string
}

type EventOption func(*EventTrigger)

func WithSettleDelay(d time.Duration) EventOption {
	return func(t *EventTrigger) {
		t.settleDelay = d
	}
}

func WithBackoff(d time.Duration) EventOption {
	return func(t *EventTrigger) {
		t.backoff = d
	}
}

func WithHandshakeTimeout(d time.Duration) EventOption {
	return func(t *EventTrigger) {
		t.handshakeTimeout = d
	}
}

// WithKeepalive sets how long the channel may stay silent before it is
// considered dead. Pings are sent at nine tenths of that interval.
func WithKeepalive(pongWait time.Duration) EventOption {
	return func(t *EventTrigger) {
		t.pongWait = pongWait
	}
}

// WithDialer replaces the websocket dialer, e.g. to relax TLS verification
func WithDialer(d *websocket.Dialer) EventOption {
	return func(t *EventTrigger) {
		t.dialer = d
	}
}

// EventTrigger listens on qBittorrent's push channel and fires after new
// torrents settle. If the channel cannot be opened at all it polls instead.
type EventTrigger struct {
	stateHolder

	url              string
	auth             Authenticator
	dialer           *websocket.Dialer
	fallback         *PollingTrigger
	settleDelay      time.Duration
	backoff          time.Duration
	handshakeTimeout time.Duration
	pongWait         time.Duration
	logger           zerolog.Logger
}

type pushMessage struct {
	Type        string `json:"type"`
	TorrentName string `json:"torrentName"`
}

func NewEventTrigger(url string, auth Authenticator, pollInterval time.Duration, logger zerolog.Logger, opts ...EventOption) *EventTrigger {
	t := &EventTrigger{
		url:              url,
		auth:             auth,
		dialer:           websocket.DefaultDialer,
		settleDelay:      defaultSettleDelay,
		backoff:          defaultBackoff,
		handshakeTimeout: defaultHandshakeTimeout,
		pongWait:         defaultPongWait,
		logger:           logger.With().Str("trigger", "event").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.fallback = NewPollingTrigger(pollInterval, logger)
	return t
}

// Run blocks until ctx is cancelled
func (t *EventTrigger) Run(ctx context.Context, q *Queue) error {
	defer t.setState(StateIdle)

	t.setState(StateConnecting)
	conn, err := t.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		metrics.ChannelErrorsTotal.Inc()
		t.setState(StateFallback)
		t.logger.Warn().Err(err).Str("url", t.url).Msg("Push channel unavailable, falling back to polling")
		return t.fallback.poll(ctx, q, Fire{Source: SourceStartup, Reason: "initial reconciliation (fallback)"})
	}

	for conn != nil {
		t.setState(StateConnected)
		t.logger.Info().Str("url", t.url).Msg("Push channel connected")
		q.Fire(Fire{Source: SourceConnect, Reason: "push channel connected"})

		err := t.listen(ctx, conn, q)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		metrics.ChannelErrorsTotal.Inc()
		t.logger.Warn().Err(err).Dur("backoff", t.backoff).Msg("Push channel lost, reconnecting")
		conn = t.reconnect(ctx)
	}
	return nil
}

// reconnect retries with a fixed backoff and returns nil once ctx is done
func (t *EventTrigger) reconnect(ctx context.Context) *websocket.Conn {
	for {
		t.setState(StateReconnecting)
		timer := time.NewTimer(t.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		t.setState(StateConnecting)
		conn, err := t.connect(ctx)
		if err == nil {
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}
		metrics.ChannelErrorsTotal.Inc()
		t.logger.Warn().Err(err).Dur("backoff", t.backoff).Msg("Reconnect failed")
	}
}

func (t *EventTrigger) connect(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := t.auth.EnsureAuthenticated(ctx, "open push channel", func(ctx context.Context) error {
		header := http.Header{}
		if cookie := t.auth.CookieHeader(); cookie != "" {
			header.Set("Cookie", cookie)
		}

		dialCtx, cancel := context.WithTimeout(ctx, t.handshakeTimeout)
		defer cancel()

		c, resp, err := t.dialer.DialContext(dialCtx, t.url, header)
		if err != nil {
			if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				_ = resp.Body.Close()
				return &ChannelError{Endpoint: t.url, Err: &qbittorrent.APIError{
					StatusCode: resp.StatusCode,
					Message:    "websocket handshake rejected",
					Body:       string(body),
				}}
			}
			return &ChannelError{Endpoint: t.url, Err: err}
		}
		conn = c
		return nil
	})
	return conn, err
}

// listen reads messages until the connection fails or ctx is cancelled
func (t *EventTrigger) listen(ctx context.Context, conn *websocket.Conn, q *Queue) error {
	done := make(chan struct{})
	defer close(done)

	msgs := make(chan pushMessage)
	errc := make(chan error, 1)

	_ = conn.SetReadDeadline(time.Now().Add(t.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errc <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(t.pongWait))

			var msg pushMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.logger.Debug().Err(err).Msg("Ignoring malformed push message")
				continue
			}

			select {
			case msgs <- msg:
			case <-done:
				return
			}
		}
	}()

	var (
		settle  *time.Timer
		settleC <-chan time.Time
		pending string
	)
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	ping := time.NewTicker(t.pongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ctx.Err()

		case err := <-errc:
			return &ChannelError{Endpoint: t.url, Err: err}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return &ChannelError{Endpoint: t.url, Err: err}
			}

		case msg := <-msgs:
			if msg.Type != messageTorrentAdded {
				t.logger.Trace().Str("type", msg.Type).Msg("Ignoring push message")
				continue
			}
			t.logger.Debug().Str("torrent", msg.TorrentName).Msg("Torrent added")
			pending = msg.TorrentName
			if settle == nil {
				settle = time.NewTimer(t.settleDelay)
				settleC = settle.C
			} else {
				settle.Reset(t.settleDelay)
			}

		case <-settleC:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.Fire(Fire{Source: SourceEvent, Reason: "torrent added: " + pending})
		}
	}
}
