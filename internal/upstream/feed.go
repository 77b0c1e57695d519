package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quantgate/pkg/types"
)

const (
	feedPingInterval     = 30 * time.Second
	feedReadTimeout      = 75 * time.Second
	feedWriteTimeout     = 10 * time.Second
	feedMaxReconnectWait = 30 * time.Second
	feedDialTimeout      = 10 * time.Second
)

// feedCommand is one control message sent to the vendor quote feed.
type feedCommand struct {
	Op     string `json:"op"`
	Symbol string `json:"symbol,omitempty"`
	Adjust string `json:"adjust_type,omitempty"`
}

// feedMessage is one inbound message from the vendor quote feed.
type feedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// feed keeps one websocket to the vendor's quote push endpoint. It tracks
// every registration so a reconnect replays them, and it delivers frames to
// the sink from the run goroutine only.
type feed struct {
	url    string
	token  string
	logger zerolog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	mu       sync.Mutex
	tracked  map[string]types.AdjustMode
	firehose bool
}

func newFeed(url, token string, logger zerolog.Logger) *feed {
	return &feed{
		url:     url,
		token:   token,
		logger:  logger.With().Str("component", "quote_feed").Logger(),
		tracked: make(map[string]types.AdjustMode),
	}
}

// run dials and reads until ctx ends, reconnecting with capped backoff.
// The backoff resets after every successful connect.
func (f *feed) run(ctx context.Context, sink FrameSink) {
	if f.url == "" {
		f.logger.Warn().Msg("no ws endpoint configured, quote feed disabled")
		return
	}

	wait := time.Second
	for {
		start := time.Now()
		err := f.connectAndRead(ctx, sink)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > feedMaxReconnectWait {
			wait = time.Second
		}
		f.logger.Warn().Err(err).Dur("retry_in", wait).Msg("quote feed disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
		if wait > feedMaxReconnectWait {
			wait = feedMaxReconnectWait
		}
	}
}

func (f *feed) connectAndRead(ctx context.Context, sink FrameSink) error {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: feedDialTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	f.setConn(conn)
	defer func() {
		f.setConn(nil)
		conn.Close()
	}()

	f.logger.Info().Str("url", f.url).Msg("quote feed connected")
	if err := f.replayRegistrations(); err != nil {
		return err
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go f.pingLoop(pingCtx, conn)

	for {
		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.handleMessage(raw, sink)
	}
}

// pingLoop keeps the connection alive and is also the shutdown path: when
// ctx ends it closes the socket, which unblocks the read loop.
func (f *feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			f.connMu.Unlock()
			conn.Close()
			return
		case <-ticker.C:
			if err := f.writeIfConnected(feedCommand{Op: "ping"}); err != nil {
				f.logger.Warn().Err(err).Msg("feed ping failed")
				conn.Close()
				return
			}
		}
	}
}

func (f *feed) handleMessage(raw []byte, sink FrameSink) {
	var msg feedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logger.Warn().Err(err).Msg("malformed feed message")
		return
	}
	switch msg.Type {
	case "quote":
		var frame types.TickFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			f.logger.Warn().Err(err).Msg("malformed quote frame")
			return
		}
		sink.OnFrame(frame)
	case "pong":
	case "error":
		f.logger.Warn().Str("detail", string(msg.Data)).Msg("feed reported error")
	default:
		f.logger.Debug().Str("type", msg.Type).Msg("ignoring feed message")
	}
}

// subscribe tracks the symbol and pushes the registration when connected.
// While offline the registration is only recorded; the next connect replays
// it, so the subscription heals without caller involvement.
func (f *feed) subscribe(symbol string, adjust types.AdjustMode) error {
	f.mu.Lock()
	f.tracked[symbol] = adjust
	f.mu.Unlock()
	return f.writeIfConnected(feedCommand{Op: "subscribe", Symbol: symbol, Adjust: string(adjust)})
}

func (f *feed) subscribeAll() error {
	f.mu.Lock()
	f.firehose = true
	f.mu.Unlock()
	return f.writeIfConnected(feedCommand{Op: "subscribe_all"})
}

func (f *feed) unsubscribe(symbol string) error {
	if symbol == "*" {
		f.mu.Lock()
		f.firehose = false
		f.mu.Unlock()
		return f.writeIfConnected(feedCommand{Op: "unsubscribe_all"})
	}
	f.mu.Lock()
	delete(f.tracked, symbol)
	f.mu.Unlock()
	return f.writeIfConnected(feedCommand{Op: "unsubscribe", Symbol: symbol})
}

func (f *feed) replayRegistrations() error {
	f.mu.Lock()
	cmds := make([]feedCommand, 0, len(f.tracked)+1)
	for symbol, adjust := range f.tracked {
		cmds = append(cmds, feedCommand{Op: "subscribe", Symbol: symbol, Adjust: string(adjust)})
	}
	if f.firehose {
		cmds = append(cmds, feedCommand{Op: "subscribe_all"})
	}
	f.mu.Unlock()

	for _, cmd := range cmds {
		if err := f.writeIfConnected(cmd); err != nil {
			return fmt.Errorf("replay registrations: %w", err)
		}
	}
	if len(cmds) > 0 {
		f.logger.Info().Int("count", len(cmds)).Msg("replayed quote registrations")
	}
	return nil
}

func (f *feed) setConn(conn *websocket.Conn) {
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
}

// writeIfConnected serializes writers. A nil conn is not an error; the
// registration maps are the source of truth and reconnect replays them.
func (f *feed) writeIfConnected(cmd feedCommand) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return nil
	}
	f.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	if err := f.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("feed write %s: %w", cmd.Op, err)
	}
	return nil
}
