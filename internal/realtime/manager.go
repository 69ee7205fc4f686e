package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"vidsync/internal/infrastructure"
	"vidsync/pkg/contracts/events"
)

// State is the logical state of the connection
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
)

// Handler receives update envelopes for one topic
type Handler func(msg events.Envelope)

// StateChange describes a connection state transition
type StateChange struct {
	State     State     `json:"state"`
	Transport Transport `json:"transport"`
	At        time.Time `json:"at"`
}

// StateHandler receives connection state transitions
type StateHandler func(change StateChange)

// ConnectionSnapshot is a read-only view of the connection
type ConnectionSnapshot struct {
	URL               string     `json:"url"`
	State             State      `json:"state"`
	Transport         Transport  `json:"transport"`
	Subscriptions     []Topic    `json:"subscriptions"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
	LastHeartbeatAt   *time.Time `json:"last_heartbeat_at,omitempty"`
	ConnectedAt       *time.Time `json:"connected_at,omitempty"`
	MessagesReceived  int64      `json:"messages_received"`
	MessagesDropped   int64      `json:"messages_dropped"`
}

type handlerEntry struct {
	id uint64
	fn Handler
}

type stateHandlerEntry struct {
	id uint64
	fn StateHandler
}

// timerSlot holds at most one armed timer. A callback runs only if the
// slot was neither re-armed nor stopped after it was scheduled.
type timerSlot struct {
	timer Timer
	seq   uint64
}

func (s *timerSlot) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
}

func (s *timerSlot) armed() bool {
	return s.timer != nil
}

// Manager owns one logical live channel to the server. It prefers a duplex
// socket, degrades to polling when the socket is unavailable, reconnects
// with exponential backoff and replays subscriptions after every connect.
type Manager struct {
	cfg        Config
	dialer     Dialer
	clock      Clock
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	backoff    Backoff
	random     func() float64

	mu            sync.Mutex
	active        bool
	state         State
	lastTransport Transport
	current       channel
	subs          []*Subscription
	attempts      int
	lastHeartbeat *time.Time
	connectedAt   *time.Time
	received      int64
	dropped       int64

	dialing    bool
	dialGen    uint64
	dialCancel context.CancelFunc

	reconnectTimer timerSlot
	graceTimer     timerSlot
	heartbeatTimer timerSlot

	handlerSeq    uint64
	handlers      map[string][]handlerEntry
	stateHandlers []stateHandlerEntry
	pending       []StateChange

	dispatch *dispatcher
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock sets the clock used for every timer
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithDialer sets the duplex dialer
func WithDialer(dialer Dialer) Option {
	return func(m *Manager) {
		if dialer != nil {
			m.dialer = dialer
		}
	}
}

// WithHTTPClient sets the client used for polling
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithMetrics sets the metrics instruments
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithTracerProvider sets the tracer provider for poll spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithRandom sets the jitter source; f must return values in [0,1)
func WithRandom(f func() float64) Option {
	return func(m *Manager) {
		m.random = f
	}
}

// New creates a disconnected manager. An invalid configuration returns a
// configuration error.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:           cfg,
		clock:         SystemClock{},
		logger:        infrastructure.GetLogger(),
		httpClient:    &http.Client{Timeout: cfg.HandshakeTimeout},
		state:         StateDisconnected,
		lastTransport: TransportDuplex,
		handlers:      make(map[string][]handlerEntry),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.With(slog.String("component", "realtime.manager"))
	if m.dialer == nil {
		m.dialer = &GorillaDialer{HandshakeTimeout: cfg.HandshakeTimeout, ReadLimit: maxMessageSize}
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	if m.metrics == nil {
		metrics, err := NewMetrics(otel.Meter(meterName))
		if err != nil {
			m.logger.Warn("Realtime metrics unavailable", slog.String("error", err.Error()))
		}
		m.metrics = metrics
	}
	m.backoff = NewBackoff(cfg.BaseBackoff, cfg.MaxBackoff)
	m.backoff.random = m.random
	m.dispatch = &dispatcher{logger: m.logger}

	return m, nil
}

// Connect starts the duplex connection. It is a no-op while connecting,
// connected or degraded. While waiting for a scheduled reconnect it dials
// immediately.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.active && (m.state != StateDisconnected || m.dialing) {
		return
	}
	if !m.active {
		m.active = true
		m.logger.Info("Connecting", slog.String("url", m.cfg.URL))
		m.armGraceLocked()
	}
	m.dialLocked()
}

// Disconnect closes the active transport, stops every timer and clears
// the subscriptions. Handlers stay registered. It is idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.unlockAndNotify()

	wasActive := m.active
	m.active = false

	m.dialGen++
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.dialing = false

	m.reconnectTimer.stop()
	m.graceTimer.stop()
	m.heartbeatTimer.stop()

	if m.current != nil {
		if err := m.current.Close(); err != nil {
			m.logger.Debug("Transport close failed", slog.String("error", err.Error()))
		}
		m.current = nil
	}

	m.subs = nil
	m.attempts = 0
	m.connectedAt = nil
	m.setStateLocked(StateDisconnected)

	if wasActive {
		m.logger.Info("Disconnected")
	}
}

// Subscribe registers topic. An identical topic returns the existing
// handle; the same name with different params replaces the params.
// Transport failures are not returned: the subscription is replayed on
// the next connect.
func (m *Manager) Subscribe(topic Topic) (Subscription, error) {
	if err := topic.validate(); err != nil {
		return Subscription{}, configurationError("subscribe", err)
	}
	topic = topic.clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		if sub.Topic.Name != topic.Name {
			continue
		}
		if sub.Topic.Equal(topic) {
			return Subscription{ID: sub.ID, Topic: sub.Topic.clone()}, nil
		}
		sub.Topic = topic
		m.sendSubscribeLocked(topic)
		return Subscription{ID: sub.ID, Topic: topic.clone()}, nil
	}

	sub := &Subscription{ID: uuid.New().String(), Topic: topic}
	m.subs = append(m.subs, sub)
	m.sendSubscribeLocked(topic)
	return Subscription{ID: sub.ID, Topic: topic.clone()}, nil
}

// Unsubscribe removes the subscription. Unknown handles are ignored.
func (m *Manager) Unsubscribe(sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.subs {
		if s.ID != sub.ID {
			continue
		}
		m.subs = append(m.subs[:i], m.subs[i+1:]...)
		if m.current != nil {
			if err := m.current.Unsubscribe(s.Topic); err != nil {
				m.logger.Warn("Unsubscribe not sent",
					slog.String("topic", s.Topic.Name),
					slog.String("error", err.Error()))
			}
		}
		return
	}
}

// OnMessage registers handler for updates on topic. Handlers never run
// concurrently and see each topic's updates in arrival order. The returned
// func removes the handler.
func (m *Manager) OnMessage(topic string, handler Handler) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlerSeq++
	id := m.handlerSeq
	m.handlers[topic] = append(m.handlers[topic], handlerEntry{id: id, fn: handler})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		entries := m.handlers[topic]
		for i, e := range entries {
			if e.id == id {
				m.handlers[topic] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OnStateChange registers handler for connection state transitions. The
// returned func removes the handler.
func (m *Manager) OnStateChange(handler StateHandler) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlerSeq++
	id := m.handlerSeq
	m.stateHandlers = append(m.stateHandlers, stateHandlerEntry{id: id, fn: handler})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, e := range m.stateHandlers {
			if e.id == id {
				m.stateHandlers = append(m.stateHandlers[:i:i], m.stateHandlers[i+1:]...)
				return
			}
		}
	}
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the connection state
func (m *Manager) Snapshot() ConnectionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := ConnectionSnapshot{
		URL:               m.cfg.URL,
		State:             m.state,
		Transport:         m.transportLocked(),
		Subscriptions:     make([]Topic, 0, len(m.subs)),
		ReconnectAttempts: m.attempts,
		MessagesReceived:  m.received,
		MessagesDropped:   m.dropped,
	}
	for _, sub := range m.subs {
		snap.Subscriptions = append(snap.Subscriptions, sub.Topic.clone())
	}
	if m.lastHeartbeat != nil {
		t := *m.lastHeartbeat
		snap.LastHeartbeatAt = &t
	}
	if m.connectedAt != nil {
		t := *m.connectedAt
		snap.ConnectedAt = &t
	}
	return snap
}

// dialLocked starts an asynchronous duplex handshake
func (m *Manager) dialLocked() {
	if m.dialing {
		return
	}
	if _, ok := m.current.(*duplexTransport); ok {
		return
	}
	m.reconnectTimer.stop()

	m.dialing = true
	m.dialGen++
	gen := m.dialGen
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	m.dialCancel = cancel

	if m.state != StateDegraded {
		m.setStateLocked(StateConnecting)
	}
	go m.dial(ctx, gen)
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	conn, err := m.dialer.Dial(ctx, m.cfg.URL, m.cfg.Header)
	m.metrics.RecordConnectAttempt(context.Background(), err == nil)

	m.mu.Lock()
	defer m.unlockAndNotify()

	if gen != m.dialGen || !m.active {
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.dialCancel()
	m.dialCancel = nil
	m.dialing = false

	if err != nil {
		m.logger.Warn("Duplex connection failed",
			slog.String("url", m.cfg.URL),
			slog.Int("attempt", m.attempts+1),
			slog.String("error", transportError("dial", err).Error()))
		m.scheduleReconnectLocked()
		return
	}
	m.establishLocked(conn)
}

// establishLocked makes conn the active transport and replays subscriptions
func (m *Manager) establishLocked(conn Connection) {
	d := newDuplexTransport(conn)

	if m.current != nil {
		m.logger.Info("Duplex connection recovered, stopping polling")
		m.current.Close()
	}
	m.current = d
	m.attempts = 0
	now := m.clock.Now()
	m.connectedAt = &now
	m.graceTimer.stop()

	for _, sub := range m.subs {
		if err := d.Subscribe(sub.Topic); err != nil {
			m.logger.Warn("Subscription replay interrupted",
				slog.String("topic", sub.Topic.Name),
				slog.String("error", err.Error()))
			break
		}
	}

	m.armHeartbeatLocked()
	m.setStateLocked(StateConnected)
	m.logger.Info("Duplex connection established",
		slog.String("remote_addr", conn.RemoteAddr()),
		slog.Int("subscriptions", len(m.subs)))

	go d.readLoop(
		func(frame []byte) { m.handleFrame(d, frame) },
		func(err error) { m.handleDuplexClose(d, err) },
	)
}

// handleDuplexClose reacts to the socket closing or failing
func (m *Manager) handleDuplexClose(d *duplexTransport, err error) {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.current != d {
		return
	}
	m.current = nil
	d.Close()
	m.heartbeatTimer.stop()
	m.connectedAt = nil

	m.logger.Warn("Duplex connection lost", slog.String("error", transportError("read", err).Error()))
	m.setStateLocked(StateDisconnected)
	m.armGraceLocked()
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the reconnect timer with the next backoff delay
func (m *Manager) scheduleReconnectLocked() {
	if !m.active || m.reconnectTimer.armed() {
		return
	}
	m.attempts++
	delay := m.backoff.Next(m.attempts)
	m.metrics.RecordReconnectDelay(context.Background(), m.attempts, delay)
	m.logger.Info("Reconnect scheduled",
		slog.Int("attempt", m.attempts),
		slog.Duration("delay", delay))

	if m.state != StateDegraded {
		m.setStateLocked(StateDisconnected)
	}
	m.armLocked(&m.reconnectTimer, delay, m.dialLocked)
}

// armGraceLocked starts the window after which polling takes over
func (m *Manager) armGraceLocked() {
	if m.graceTimer.armed() || m.current != nil {
		return
	}
	m.armLocked(&m.graceTimer, m.cfg.DuplexGrace, m.startPollingLocked)
}

// startPollingLocked switches to the polling transport unless a transport is already active
func (m *Manager) startPollingLocked() {
	if !m.active || m.current != nil {
		return
	}

	var p *poller
	p = newPoller(m,
		func(env events.Envelope) { m.receive(p, env) },
		func() { m.recordDropped(p) })
	for _, sub := range m.subs {
		p.Subscribe(sub.Topic)
	}
	m.current = p

	m.logger.Warn("Duplex unavailable, falling back to polling",
		slog.Duration("grace", m.cfg.DuplexGrace),
		slog.Duration("interval", m.cfg.PollingInterval))
	m.setStateLocked(StateDegraded)
	p.start()
}

func (m *Manager) armHeartbeatLocked() {
	m.armLocked(&m.heartbeatTimer, m.cfg.HeartbeatInterval, m.heartbeatLocked)
}

// heartbeatLocked pings over the active transport and re-arms itself
func (m *Manager) heartbeatLocked() {
	hb, ok := m.current.(heartbeater)
	if !ok {
		return
	}
	if err := hb.Ping(m.clock.Now()); err != nil {
		m.logger.Debug("Heartbeat not sent", slog.String("error", err.Error()))
	} else {
		m.metrics.RecordHeartbeat(context.Background())
	}
	m.armHeartbeatLocked()
}

// armLocked schedules f to run with m.mu held after d
func (m *Manager) armLocked(slot *timerSlot, d time.Duration, f func()) {
	slot.stop()
	seq := slot.seq
	slot.timer = m.clock.AfterFunc(d, func() {
		m.mu.Lock()
		defer m.unlockAndNotify()
		if slot.seq != seq {
			return
		}
		slot.timer = nil
		f()
	})
}

func (m *Manager) sendSubscribeLocked(topic Topic) {
	if m.current == nil {
		return
	}
	if err := m.current.Subscribe(topic); err != nil {
		m.logger.Warn("Subscribe not sent, will replay on reconnect",
			slog.String("topic", topic.Name),
			slog.String("error", err.Error()))
	}
}

// handleFrame parses a socket frame; malformed frames are dropped
func (m *Manager) handleFrame(src channel, frame []byte) {
	env, err := events.ParseEnvelope(frame)
	if err != nil {
		m.recordDropped(src)
		m.logger.Warn("Dropping malformed message",
			slog.String("transport", string(src.Kind())),
			slog.Int("size", len(frame)),
			slog.String("error", protocolError("parse", err).Error()))
		return
	}
	m.receive(src, env)
}

// recordDropped counts a malformed message from src in the snapshot and
// the protocol error metric
func (m *Manager) recordDropped(src channel) {
	m.mu.Lock()
	if m.current == src {
		m.dropped++
	}
	m.mu.Unlock()
	m.metrics.RecordProtocolError(context.Background(), src.Kind())
}

// receive routes an envelope from src to the topic's handlers
func (m *Manager) receive(src channel, env events.Envelope) {
	m.mu.Lock()
	if m.current != src {
		m.mu.Unlock()
		return
	}

	switch env.Type {
	case events.MessageTypePong:
		now := m.clock.Now()
		m.lastHeartbeat = &now
		m.mu.Unlock()
		return
	case events.MessageTypeError:
		m.mu.Unlock()
		m.logger.Warn("Server reported error",
			slog.String("topic", env.Topic),
			slog.String("message", env.Message))
		return
	}

	m.received++
	entries := m.handlers[env.Topic]
	fns := make([]func(), 0, len(entries))
	for _, e := range entries {
		h := e.fn
		fns = append(fns, func() { h(env) })
	}
	m.mu.Unlock()

	m.metrics.RecordMessage(context.Background(), src.Kind(), env.Topic)
	m.dispatch.run(fns...)
}

// transportLocked returns the active transport, or duplex when none is active
func (m *Manager) transportLocked() Transport {
	if m.current != nil {
		return m.current.Kind()
	}
	return TransportDuplex
}

// setStateLocked records a transition for delivery once m.mu is released
func (m *Manager) setStateLocked(state State) {
	transport := m.transportLocked()
	if m.state == state && m.lastTransport == transport {
		return
	}
	m.state = state
	m.lastTransport = transport
	m.pending = append(m.pending, StateChange{State: state, Transport: transport, At: m.clock.Now()})
	m.metrics.RecordStateChange(context.Background(), state, transport)
}

// unlockAndNotify releases m.mu and delivers queued state changes
func (m *Manager) unlockAndNotify() {
	changes := m.pending
	m.pending = nil
	var fns []func()
	for _, change := range changes {
		for _, e := range m.stateHandlers {
			h, c := e.fn, change
			fns = append(fns, func() { h(c) })
		}
	}
	m.mu.Unlock()

	m.dispatch.run(fns...)
}
