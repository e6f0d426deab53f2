// Package stream рассылает события сессии подключённым websocket-клиентам.
// Publish никогда не блокируется: медленный клиент теряет сообщения.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"multimodal/pkg/config"
	"multimodal/pkg/metrics"
)

// EventState первое сообщение после подключения
const EventState = "state"

// Envelope конверт события
type Envelope struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Config параметры потока
type Config struct {
	ClientBuffer int
	WriteTimeout time.Duration
	PingInterval time.Duration
	// ReadTimeout сколько ждём pong или сообщение от клиента; 0 - без ограничения
	ReadTimeout time.Duration
	ReadLimit   int64
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		ClientBuffer: 256,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		ReadLimit:    4096,
	}
}

// FromConfig переносит настройки из общего конфига
func FromConfig(cfg config.StreamConfig) Config {
	out := DefaultConfig()
	if cfg.ClientBuffer > 0 {
		out.ClientBuffer = cfg.ClientBuffer
	}
	if cfg.WriteTimeout > 0 {
		out.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.PingInterval > 0 {
		out.PingInterval = cfg.PingInterval
	}
	if cfg.ReadTimeout > 0 {
		out.ReadTimeout = cfg.ReadTimeout
	}
	if out.ReadTimeout <= out.PingInterval {
		out.ReadTimeout = 2 * out.PingInterval
	}
	return out
}

type client struct {
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub websocket-рассыльщик
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	log      *slog.Logger
	initial  func() any

	seq     atomic.Uint64
	dropped atomic.Uint64

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// Option настраивает Hub
type Option func(*Hub)

// WithMetrics подключает метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger задаёт логгер
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithInitialState задаёт состояние, отправляемое новому клиенту
func WithInitialState(fn func() any) Option {
	return func(h *Hub) { h.initial = fn }
}

// WithCheckOrigin задаёт проверку Origin для upgrade
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub создаёт рассыльщик
func NewHub(cfg Config, opts ...Option) *Hub {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	h := &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4 * 1024,
			WriteBufferSize:   16 * 1024,
			EnableCompression: true,
			CheckOrigin:       func(r *http.Request) bool { return true },
		},
		log:     slog.Default(),
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) encode(kind string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type: kind,
		Seq:  h.seq.Add(1),
		Time: time.Now().UTC(),
		Data: raw,
	})
}

// Publish рассылает событие всем клиентам
func (h *Hub) Publish(kind string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed || len(h.clients) == 0 {
		return
	}

	msg, err := h.encode(kind, data)
	if err != nil {
		h.log.Error("failed to encode stream event", "type", kind, "error", err)
		return
	}

	for c := range h.clients {
		select {
		case c.out <- msg:
		default:
			h.dropped.Add(1)
			h.metrics.RecordStreamDrop()
		}
	}
}

// Clients число подключённых клиентов
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped число потерянных сообщений
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) register() *client {
	c := &client{
		out:  make(chan []byte, h.cfg.ClientBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.clients[c] = struct{}{}
	h.metrics.StreamClientDelta(1)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.metrics.StreamClientDelta(-1)
	}
	h.mu.Unlock()
	c.close()
}

// ServeHTTP поднимает websocket и держит соединение до отключения клиента
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := h.register()
	if c == nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		return
	}
	defer h.unregister(c)

	if h.initial != nil {
		if msg, err := h.encode(EventState, h.initial()); err == nil {
			select {
			case c.out <- msg:
			default:
			}
		}
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		h.writeLoop(conn, c)
	}()

	// читаем только для обработки close/pong; молчащий клиент отключается по дедлайну
	if h.cfg.ReadLimit > 0 {
		conn.SetReadLimit(h.cfg.ReadLimit)
	}
	h.extendRead(conn)
	conn.SetPongHandler(func(string) error {
		h.extendRead(conn)
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		h.extendRead(conn)
	}

	c.close()
	<-writeDone
}

func (h *Hub) extendRead(conn *websocket.Conn) {
	if h.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *client) {
	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		t := time.NewTicker(h.cfg.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case msg := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close()
				return
			}
		case <-ping:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// Close отключает всех клиентов; новые подключения отклоняются
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		h.metrics.StreamClientDelta(-1)
		c.close()
	}
}
