package widgets

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidsync/internal/realtime"
	"vidsync/pkg/contracts/events"
)

// ErrAlreadyStarted is returned when Start is called on a running widget
var ErrAlreadyStarted = errors.New("widget already started")

// Source is the part of realtime.Manager a widget consumes
type Source interface {
	Subscribe(topic realtime.Topic) (realtime.Subscription, error)
	Unsubscribe(sub realtime.Subscription)
	OnMessage(topic string, handler realtime.Handler) (remove func())
	OnStateChange(handler realtime.StateHandler) (remove func())
	State() realtime.State
}

// Status is the bookkeeping every widget exposes next to its data
type Status struct {
	Widget     string     `json:"widget"`
	Topic      string     `json:"topic"`
	Connection Indicator  `json:"connection"`
	Updates    int64      `json:"updates"`
	Rejected   int64      `json:"rejected"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// base holds the subscription lifecycle shared by all widgets. Handlers
// run on the manager's dispatch path, one at a time.
type base struct {
	name   string
	source Source
	logger *slog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	topic      realtime.Topic
	indicator  Indicator
	sub        realtime.Subscription
	removes    []func()
	running    bool
	updates    int64
	rejected   int64
	lastUpdate *time.Time
}

func (b *base) init(name string, source Source, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	b.name = name
	b.source = source
	b.logger = logger.With(slog.String("component", "widgets."+name))
	b.now = time.Now
	b.indicator = IndicatorOffline
}

// start registers handlers before subscribing so that no update is missed
func (b *base) start(topic realtime.Topic, onUpdate func(events.Envelope) error) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.running = true
	b.topic = topic
	b.indicator = IndicatorFor(b.source.State())
	b.mu.Unlock()

	removeMsg := b.source.OnMessage(topic.Name, func(env events.Envelope) {
		b.handle(env, onUpdate)
	})
	removeState := b.source.OnStateChange(func(change realtime.StateChange) {
		b.mu.Lock()
		if b.running {
			b.indicator = IndicatorFor(change.State)
		}
		b.mu.Unlock()
	})

	sub, err := b.source.Subscribe(topic)
	if err != nil {
		removeMsg()
		removeState()
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		return err
	}

	b.mu.Lock()
	b.sub = sub
	b.removes = []func(){removeMsg, removeState}
	b.mu.Unlock()

	b.logger.Info("Widget started", slog.String("topic", topic.Name))
	return nil
}

// resubscribe swaps the topic params, replacing the live subscription
// when the widget is running
func (b *base) resubscribe(topic realtime.Topic) error {
	b.mu.Lock()
	running := b.running
	if !running {
		b.topic = topic
	}
	b.mu.Unlock()
	if !running {
		return nil
	}

	sub, err := b.source.Subscribe(topic)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.topic = topic
	b.sub = sub
	b.mu.Unlock()
	return nil
}

// Stop unsubscribes and removes the widget's handlers
func (b *base) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	sub := b.sub
	removes := b.removes
	b.removes = nil
	b.sub = realtime.Subscription{}
	b.indicator = IndicatorOffline
	b.mu.Unlock()

	for _, remove := range removes {
		remove()
	}
	b.source.Unsubscribe(sub)
	b.logger.Info("Widget stopped")
}

// Status returns the widget bookkeeping
func (b *base) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Status{
		Widget:     b.name,
		Topic:      b.topic.Name,
		Connection: b.indicator,
		Updates:    b.updates,
		Rejected:   b.rejected,
	}
	if b.lastUpdate != nil {
		t := *b.lastUpdate
		st.LastUpdate = &t
	}
	return st
}

// Connection returns the current connection indicator
func (b *base) Connection() Indicator {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.indicator
}

func (b *base) handle(env events.Envelope, onUpdate func(events.Envelope) error) {
	if err := onUpdate(env); err != nil {
		b.mu.Lock()
		b.rejected++
		b.mu.Unlock()
		b.logger.Warn("Update rejected",
			slog.String("topic", env.Topic),
			slog.String("error", err.Error()))
		return
	}

	now := b.now()
	b.mu.Lock()
	b.updates++
	b.lastUpdate = &now
	b.mu.Unlock()
}
