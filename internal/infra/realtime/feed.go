// Package realtime implements port.ChangeFeed on top of Supabase Realtime
// (Phoenix channels over WebSocket). Each Watch holds one socket joined to
// one postgres_changes topic and turns every change event into a signal.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/infra/resilience"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var _ port.ChangeFeed = (*Feed)(nil)

const (
	eventJoin     = "phx_join"
	eventReply    = "phx_reply"
	eventError    = "phx_error"
	eventClose    = "phx_close"
	eventChanges  = "postgres_changes"
	eventBeat     = "heartbeat"
	topicPhoenix  = "phoenix"
	protocolVsn   = "1.0.0"
	joinTimeout   = 10 * time.Second
	writeTimeout  = 5 * time.Second
	replyStatusOK = "ok"
)

// message is one Phoenix channel frame.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// TokenSource supplies the access token of the signed-in principal.
type TokenSource interface {
	AccessToken() string
}

// Feed dials one socket per watched collection.
type Feed struct {
	wsURL     string
	apiKey    string
	tokens    TokenSource
	heartbeat time.Duration
	retry     resilience.Config
	dialer    *websocket.Dialer
	logger    *zap.Logger
	ref       atomic.Uint64
}

// NewFeed builds a feed for the project at baseURL (http or https). Lost
// sockets are re-dialed with retry until the watch context ends.
func NewFeed(baseURL, apiKey string, heartbeat time.Duration, retry resilience.Config, logger *zap.Logger) (*Feed, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported realtime scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {apiKey}, "vsn": {protocolVsn}}.Encode()

	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &Feed{
		wsURL:     u.String(),
		apiKey:    apiKey,
		heartbeat: heartbeat,
		retry:     retry,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
	}, nil
}

// WithTokens joins channels with the principal's access token, so row level
// security scopes the changes. Without it the API key is sent.
func (f *Feed) WithTokens(src TokenSource) *Feed {
	f.tokens = src
	return f
}

func (f *Feed) accessToken() string {
	if f.tokens != nil {
		if tok := f.tokens.AccessToken(); tok != "" {
			return tok
		}
	}
	return f.apiKey
}

// Watch joins the owner's topic for collection. The first dial happens
// synchronously so an unreachable server is reported to the caller.
func (f *Feed) Watch(ctx context.Context, ownerID string, collection domain.Collection) (<-chan struct{}, error) {
	conn, err := f.connect(ctx, ownerID, collection)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "realtime/" + string(collection), Err: err}
	}

	ch := make(chan struct{}, 1)
	go f.run(ctx, conn, ownerID, collection, ch)
	return ch, nil
}

func (f *Feed) run(ctx context.Context, conn *websocket.Conn, ownerID string, collection domain.Collection, ch chan struct{}) {
	defer close(ch)

	log := f.logger.With(zap.String("collection", string(collection)))
	for {
		err := f.serve(ctx, conn, topicFor(ownerID, collection), ch)
		if ctx.Err() != nil {
			return
		}
		log.Warn("realtime: socket lost, reconnecting", zap.Error(err))

		err = resilience.RetryWithBackoff(ctx, f.retry, func() error {
			c, err := f.connect(ctx, ownerID, collection)
			if err != nil {
				log.Debug("realtime: reconnect attempt failed", zap.Error(err))
				return err
			}
			conn = c
			return nil
		})
		if err != nil {
			if ctx.Err() == nil {
				log.Error("realtime: giving up on socket", zap.Error(err))
			}
			return
		}
		// Changes may have happened while disconnected.
		signal(ch)
	}
}

// serve pumps heartbeats and reads events until the socket fails or ctx ends.
// It always closes conn.
func (f *Feed) serve(ctx context.Context, conn *websocket.Conn, topic string, ch chan struct{}) error {
	readErr := make(chan error, 1)
	go func() { readErr <- f.readLoop(conn, topic, ch) }()

	ticker := time.NewTicker(f.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			conn.Close()
			<-readErr
			return ctx.Err()
		case err := <-readErr:
			conn.Close()
			return err
		case <-ticker.C:
			if err := f.write(conn, topicPhoenix, eventBeat, struct{}{}); err != nil {
				conn.Close()
				<-readErr
				return err
			}
		}
	}
}

func (f *Feed) readLoop(conn *websocket.Conn, topic string, ch chan struct{}) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(3 * f.heartbeat))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Topic != topic {
			continue
		}
		switch msg.Event {
		case eventChanges:
			signal(ch)
		case eventError, eventClose:
			return fmt.Errorf("channel %s: %s", topic, msg.Event)
		}
	}
}

// connect dials and joins, waiting for the join reply.
func (f *Feed) connect(ctx context.Context, ownerID string, collection domain.Collection) (*websocket.Conn, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			conn.Close()
		}
	}()

	topic := topicFor(ownerID, collection)
	filter := "user_id=eq." + ownerID
	join := map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{{
				"event":  "*",
				"schema": "public",
				"table":  string(collection),
				"filter": filter,
			}},
		},
		"access_token": f.accessToken(),
	}
	ref, err := f.writeRef(conn, topic, eventJoin, join)
	if err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(joinTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("await join reply: %w", err)
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Event != eventReply || msg.Ref != ref {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return nil, fmt.Errorf("decode join reply: %w", err)
		}
		if reply.Status != replyStatusOK {
			return nil, errors.New("join rejected: " + string(reply.Response))
		}
		break
	}

	success = true
	return conn, nil
}

func (f *Feed) write(conn *websocket.Conn, topic, event string, payload any) error {
	_, err := f.writeRef(conn, topic, event, payload)
	return err
}

func (f *Feed) writeRef(conn *websocket.Conn, topic, event string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	ref := strconv.FormatUint(f.ref.Add(1), 10)
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ref, conn.WriteJSON(message{Topic: topic, Event: event, Payload: body, Ref: ref})
}

func topicFor(ownerID string, collection domain.Collection) string {
	return "realtime:public:" + string(collection) + ":user_id=eq." + ownerID
}

// signal performs a coalescing, non-blocking send.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
