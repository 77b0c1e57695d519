package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quantgate/internal/apperr"
	"quantgate/internal/stream"
	"quantgate/pkg/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4096
)

// Access control is the bearer token, not the Origin header; browser
// clients pass the token as ?token=.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsFrame is every frame the socket sends: connected, quote, pong, error.
type wsFrame struct {
	Type           string           `json:"type"`
	SubscriptionID string           `json:"subscription_id,omitempty"`
	Symbols        []string         `json:"symbols,omitempty"`
	Data           *types.TickFrame `json:"data,omitempty"`
	Code           string           `json:"code,omitempty"`
	Message        string           `json:"message,omitempty"`
	Timestamp      int64            `json:"timestamp,omitempty"`
}

// handleQuoteSocket streams one subscription's frames over a WebSocket.
// The socket is a window onto the subscription, not its owner: closing the
// socket leaves the subscription running (the idle sweeper reaps it),
// while deleting the subscription closes the socket with a normal close.
func (s *Server) handleQuoteSocket(c *gin.Context) {
	id := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	cursor, err := s.manager.Stream(id)
	if err != nil {
		s.writeFrame(conn, wsFrame{
			Type:    "error",
			Code:    apperr.CodeOf(err).String(),
			Message: apperr.MessageOf(err),
		})
		s.closeConn(conn, websocket.ClosePolicyViolation, "subscription not found")
		return
	}
	defer cursor.Close()

	info, _ := s.manager.Describe(id)
	if err := s.writeFrame(conn, wsFrame{
		Type:           "connected",
		SubscriptionID: id,
		Symbols:        info.Symbols,
		Timestamp:      time.Now().UnixMilli(),
	}); err != nil {
		return
	}

	s.metrics.ActiveStreamClients.Inc()
	defer s.metrics.ActiveStreamClients.Dec()
	s.logger.Info().Str("subscription_id", id).Msg("stream client attached")
	defer s.logger.Info().Str("subscription_id", id).Msg("stream client detached")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pings := make(chan struct{}, 4)
	go s.readLoop(cancel, conn, id, pings)

	frames := make(chan types.TickFrame)
	cursorErr := make(chan error, 1)
	go func() {
		for {
			frame, err := cursor.Next(ctx)
			if err != nil {
				cursorErr <- err
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pings:
			if err := s.writeFrame(conn, wsFrame{Type: "pong", Timestamp: time.Now().UnixMilli()}); err != nil {
				return
			}
		case frame := <-frames:
			if err := s.writeFrame(conn, wsFrame{Type: "quote", SubscriptionID: id, Data: &frame}); err != nil {
				return
			}
		case err := <-cursorErr:
			switch {
			case errors.Is(err, stream.ErrClosed):
				s.closeConn(conn, websocket.CloseNormalClosure, "subscription closed")
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			default:
				s.writeFrame(conn, wsFrame{
					Type:    "error",
					Code:    apperr.CodeOf(err).String(),
					Message: apperr.MessageOf(err),
				})
				s.closeConn(conn, websocket.CloseInternalServerErr, "internal error")
			}
			return
		}
	}
}

// readLoop drains client messages. A {"type":"ping"} refreshes the idle
// clock and earns a pong; anything unparseable is ignored. Any read error,
// including a client close, cancels the writer.
func (s *Server) readLoop(cancel context.CancelFunc, conn *websocket.Conn, id string, pings chan<- struct{}) {
	defer cancel()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		if msg.Type == "ping" {
			s.manager.Touch(id)
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame wsFrame) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.Debug().Err(err).Str("type", frame.Type).Msg("websocket write failed")
		return err
	}
	return nil
}

func (s *Server) closeConn(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(wsWriteTimeout)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && err != websocket.ErrCloseSent {
		s.logger.Debug().Err(err).Msg("websocket close write failed")
	}
}
