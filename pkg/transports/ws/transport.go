package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/interviewer/pkg/errorsx"
	"github.com/harunnryd/interviewer/pkg/logging"
	"github.com/harunnryd/interviewer/pkg/transports"
)

type Config struct {
	ServerAddr     string        `mapstructure:"server_addr"`
	EventsPath     string        `mapstructure:"events_path"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowAnyOrigin bool          `mapstructure:"allow_any_origin"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.EventsPath == "" {
		c.EventsPath = "/events"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Transport serves a single participant over a websocket. A newer connection
// replaces the previous one.
type Transport struct {
	cfg      Config
	server   *http.Server
	upgrader websocket.Upgrader
	recvCh   chan transports.Message
	log      *slog.Logger

	mu   sync.Mutex
	sess *session

	draining atomic.Bool
	stopOnce sync.Once
}

func New(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		recvCh: make(chan transports.Message, 256),
		log:    logging.NewComponentLogger(nil, "ws_transport"),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "ws" }

func (t *Transport) Recv() <-chan transports.Message { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	addr := t.cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return map[string]any{"events_url": "ws://" + addr + t.cfg.EventsPath}
}

// Handler returns the HTTP routes of the transport.
func (t *Transport) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Get(t.cfg.EventsPath, t.ServeHTTP)
	return r
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("ws_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.stopOnce.Do(func() {
		t.draining.Store(true)
		if t.server != nil {
			_ = t.server.Close()
		}
		t.mu.Lock()
		sess := t.sess
		t.sess = nil
		close(t.recvCh)
		t.mu.Unlock()
		if sess != nil {
			_ = sess.close()
		}
	})
	return nil
}

// Publish sends a payload to the connected participant as a text frame.
func (t *Transport) Publish(_ context.Context, payload []byte) error {
	t.mu.Lock()
	sess := t.sess
	t.mu.Unlock()
	if sess == nil {
		return errorsx.New(errorsx.ReasonTransportNotConnected, "no participant connected")
	}
	return sess.enqueue(payload)
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := t.attach(conn)
	defer t.detach(sess)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !t.draining.Load() {
				t.log.Info("ws_read_ended", "conn_id", sess.id, "error", err.Error())
			}
			return
		}
		var msg transports.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.log.Warn("ws_message_invalid", "conn_id", sess.id, "error", err.Error())
			continue
		}
		switch msg.Type {
		case transports.MessageTranscript, transports.MessageSpeechStarted,
			transports.MessageSpeechEnded, transports.MessageHangup:
			t.deliver(msg)
		default:
			t.log.Warn("ws_message_unknown", "conn_id", sess.id, "type", msg.Type)
		}
	}
}

func (t *Transport) deliver(msg transports.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draining.Load() {
		return
	}
	select {
	case t.recvCh <- msg:
	default:
		t.log.Warn("ws_message_dropped", "type", msg.Type, "reason", "receive buffer full")
	}
}

func (t *Transport) attach(conn *websocket.Conn) *session {
	sess := &session{
		id:      uuid.NewString(),
		conn:    conn,
		sendCh:  make(chan []byte, 64),
		done:    make(chan struct{}),
		timeout: t.cfg.WriteTimeout,
	}
	t.mu.Lock()
	old := t.sess
	t.sess = sess
	t.mu.Unlock()
	if old != nil {
		_ = old.close()
		t.log.Info("ws_participant_replaced", "old_conn_id", old.id, "conn_id", sess.id)
	}
	go sess.loop()
	t.log.Info("ws_participant_connected", "conn_id", sess.id)
	return sess
}

func (t *Transport) detach(sess *session) {
	t.mu.Lock()
	if t.sess == sess {
		t.sess = nil
	}
	t.mu.Unlock()
	_ = sess.close()
	t.log.Info("ws_participant_disconnected", "conn_id", sess.id)
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		return true
	}
	for _, allowed := range t.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(strings.TrimSpace(allowed), "/"), origin) {
			return true
		}
	}
	return false
}

type session struct {
	id        string
	conn      *websocket.Conn
	sendCh    chan []byte
	done      chan struct{}
	timeout   time.Duration
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

func (s *session) enqueue(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errorsx.New(errorsx.ReasonTransportNotConnected, "participant %s disconnected", s.id)
	}
	select {
	case s.sendCh <- append([]byte(nil), payload...):
		return nil
	default:
		return errorsx.Wrap(fmt.Errorf("send queue full for %s", s.id), errorsx.ReasonTransportSend)
	}
}

func (s *session) loop() {
	defer close(s.done)
	for msg := range s.sendCh {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// close flushes queued frames, bounded by the write timeout, then sends a
// normal close frame and closes the socket.
func (s *session) close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.sendCh)
	}
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		flushed := true
		select {
		case <-s.done:
		case <-time.After(s.timeout):
			flushed = false
		}
		if flushed {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "interview ended")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.timeout))
		}
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
