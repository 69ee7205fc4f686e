package widgets

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidsync/internal/realtime"
	"vidsync/pkg/contracts/events"
)

type fakeSource struct {
	mu            sync.Mutex
	state         realtime.State
	subscribed    []realtime.Topic
	unsubscribed  []realtime.Subscription
	handlers      map[string][]realtime.Handler
	stateHandlers []realtime.StateHandler
	failSubscribe bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		state:    realtime.StateDisconnected,
		handlers: make(map[string][]realtime.Handler),
	}
}

func (f *fakeSource) Subscribe(topic realtime.Topic) (realtime.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubscribe {
		return realtime.Subscription{}, errors.New("subscribe rejected")
	}
	f.subscribed = append(f.subscribed, topic)
	return realtime.Subscription{ID: topic.Name, Topic: topic}, nil
}

func (f *fakeSource) Unsubscribe(sub realtime.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, sub)
}

func (f *fakeSource) OnMessage(topic string, handler realtime.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = append(f.handlers[topic], handler)
	idx := len(f.handlers[topic]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[topic][idx] = nil
	}
}

func (f *fakeSource) OnStateChange(handler realtime.StateHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateHandlers = append(f.stateHandlers, handler)
	idx := len(f.stateHandlers) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stateHandlers[idx] = nil
	}
}

func (f *fakeSource) State() realtime.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) setState(state realtime.State) {
	f.mu.Lock()
	f.state = state
	handlers := append([]realtime.StateHandler(nil), f.stateHandlers...)
	f.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(realtime.StateChange{State: state, At: time.Now()})
		}
	}
}

func (f *fakeSource) handlerCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.handlers[topic] {
		if h != nil {
			n++
		}
	}
	return n
}

func (f *fakeSource) push(t *testing.T, topic string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	f.pushRaw(topic, data)
}

func (f *fakeSource) pushRaw(topic string, data json.RawMessage) {
	f.mu.Lock()
	handlers := append([]realtime.Handler(nil), f.handlers[topic]...)
	f.mu.Unlock()

	env := events.NewUpdate(topic, data, time.Now())
	for _, h := range handlers {
		if h != nil {
			h(env)
		}
	}
}

type recordingRenderer struct {
	calls [][]events.Series
	err   error
}

func (r *recordingRenderer) RenderSeries(series []events.Series) error {
	r.calls = append(r.calls, series)
	return r.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (n *recordingNotifier) Notify(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *recordingNotifier) levels() []NotificationLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotificationLevel, 0, len(n.notes))
	for _, note := range n.notes {
		out = append(out, note.Level)
	}
	return out
}
