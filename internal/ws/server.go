package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/relay-service/internal/auth"
	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/hub"
	"github.com/fathima-sithara/relay-service/internal/metric"
	"github.com/fathima-sithara/relay-service/internal/relay"
)

type Options struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteDeadline   time.Duration
	MaxMessageSize  int64
	SendBuffer      int
	RateLimitPerSec int
}

// socket is the part of *websocket.Conn the pumps use.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Server runs one read loop and one write loop per websocket. Events from a
// connection are handled in arrival order by its read loop; frames to it are
// written only by its write loop.
type Server struct {
	hub   *hub.Hub
	relay *relay.Relay
	opts  Options
	log   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(h *hub.Hub, r *relay.Relay, opts Options, log *zap.SugaredLogger) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PongWait <= opts.PingInterval {
		opts.PongWait = 2 * opts.PingInterval
	}
	if opts.WriteDeadline <= 0 {
		opts.WriteDeadline = 10 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{hub: h, relay: r, opts: opts, log: log, ctx: ctx, cancel: cancel}
}

// Handle is the websocket.New callback. The identity was put in the locals
// by the auth middleware before the upgrade.
func (s *Server) Handle(c *websocket.Conn) {
	id, ok := auth.IdentityFrom(c.Locals(auth.LocalsKey))
	if !ok {
		s.log.Warnw("websocket without identity, closing")
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"),
			time.Now().Add(time.Second))
		_ = c.Close()
		return
	}
	s.serve(c, id)
}

func (s *Server) serve(sock socket, id auth.Identity) {
	conn := hub.NewConn(uuid.NewString(), id.UserID, s.opts.SendBuffer)
	sess := relay.Session{User: id, Ref: s.hub.Ref(conn)}

	s.hub.Add(conn)
	if err := s.relay.Connect(s.ctx, sess); err != nil {
		s.log.Errorw("connect failed", "user_id", id.UserID, "conn_id", conn.ID, "error", err)
		s.hub.Remove(conn)
		conn.Close()
		_ = sock.Close()
		return
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		s.writePump(sock, conn)
	}()

	stop := make(chan struct{})
	go func() {
		select {
		case <-s.ctx.Done():
			_ = sock.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(time.Second))
			_ = sock.Close()
		case <-stop:
		}
	}()

	s.readPump(sock, sess)
	close(stop)

	// Shutdown may already have cancelled s.ctx.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.relay.Disconnect(ctx, sess); err != nil {
		s.log.Errorw("disconnect failed", "user_id", id.UserID, "conn_id", conn.ID, "error", err)
	}
	s.hub.Remove(conn)
	conn.Close()
	<-written
}

func (s *Server) readPump(sock socket, sess relay.Session) {
	sock.SetReadLimit(s.opts.MaxMessageSize)
	_ = sock.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	var limiter *rate.Limiter
	if s.opts.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimitPerSec), s.opts.RateLimitPerSec)
	}

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugw("websocket read ended", "conn_id", sess.Ref.ConnID, "error", err)
			}
			return
		}
		_ = sock.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		if limiter != nil && !limiter.Allow() {
			metric.EventsRateLimited.Inc()
			continue
		}

		var env hub.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			s.log.Debugw("malformed frame", "conn_id", sess.Ref.ConnID)
			continue
		}
		label := env.Type
		if !domain.IsInbound(label) {
			label = "unknown"
		}
		metric.EventsReceived.WithLabelValues(label).Inc()

		_ = s.relay.Handle(s.ctx, sess, env.Type, env.Payload)
	}
}

func (s *Server) writePump(sock socket, conn *hub.Conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = sock.Close()
	}()

	for {
		select {
		case frame, ok := <-conn.Send():
			_ = sock.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline))
			if !ok {
				_ = sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = sock.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline))
			if err := sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Shutdown closes every open socket. Handlers finish their disconnect
// work on their own.
func (s *Server) Shutdown() {
	s.cancel()
}
