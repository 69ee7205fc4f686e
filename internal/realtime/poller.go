package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"vidsync/pkg/contracts/events"
)

// maxConcurrentFetches bounds the fan-out of one polling cycle
const maxConcurrentFetches = 8

var errNotJSON = errors.New("response body is not JSON")

// poller is the degraded transport: one GET per topic every interval,
// each body wrapped in the same update envelope the socket delivers.
type poller struct {
	cfg     Config
	base    string
	client  *http.Client
	clock   Clock
	tracer  trace.Tracer
	metrics *Metrics
	logger  *slog.Logger
	deliver func(events.Envelope)
	drop    func()

	mu      sync.Mutex
	targets []Topic
	timer   Timer
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// newPoller creates a stopped poller. deliver receives every body; drop is
// called for each malformed one.
func newPoller(m *Manager, deliver func(events.Envelope), drop func()) *poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &poller{
		cfg:     m.cfg,
		base:    m.cfg.pollBase(),
		client:  m.httpClient,
		clock:   m.clock,
		tracer:  m.tracer,
		metrics: m.metrics,
		logger:  m.logger.With(slog.String("transport", string(TransportPolling))),
		deliver: deliver,
		drop:    drop,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *poller) Kind() Transport {
	return TransportPolling
}

// Subscribe adds or replaces the polling target for topic.Name
func (p *poller) Subscribe(topic Topic) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.targets {
		if p.targets[i].Name == topic.Name {
			p.targets[i] = topic.clone()
			return nil
		}
	}
	p.targets = append(p.targets, topic.clone())
	return nil
}

// Unsubscribe removes the polling target for topic.Name
func (p *poller) Unsubscribe(topic Topic) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.targets {
		if p.targets[i].Name == topic.Name {
			p.targets = append(p.targets[:i], p.targets[i+1:]...)
			return nil
		}
	}
	return nil
}

// Close stops the polling loop and cancels in-flight fetches
func (p *poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	p.cancel()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return nil
}

// start runs the first cycle immediately
func (p *poller) start() {
	go p.cycle()
}

// cycle fetches every target and schedules the next cycle once all
// fetches have finished
func (p *poller) cycle() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	targets := make([]Topic, len(p.targets))
	copy(targets, p.targets)
	ctx := p.ctx
	p.mu.Unlock()

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentFetches)
	for _, topic := range targets {
		g.Go(func() error {
			return p.fetch(ctx, topic)
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		p.logger.Warn("Poll cycle incomplete", slog.String("error", err.Error()))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.timer = p.clock.AfterFunc(p.cfg.PollingInterval, p.cycle)
	}
}

// fetch polls one topic and delivers the body as an update
func (p *poller) fetch(ctx context.Context, topic Topic) (err error) {
	ctx, span := p.tracer.Start(ctx, "realtime.poll",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("topic", topic.Name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		p.metrics.RecordPollFetch(context.Background(), topic.Name, err == nil)
		span.End()
	}()

	target := p.base + p.cfg.endpoint(topic.Name)
	if q := topic.Query(); q != "" {
		target += "?" + q
	}
	span.SetAttributes(attribute.String("http.url", target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return transportError("poll "+topic.Name, err)
	}
	for k, vs := range p.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return transportError("poll "+topic.Name, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return transportError("poll "+topic.Name, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageSize))
	if err != nil {
		return transportError("poll "+topic.Name, err)
	}
	if !json.Valid(body) {
		if p.drop != nil {
			p.drop()
		}
		return protocolError("poll "+topic.Name, errNotJSON)
	}

	if ctx.Err() != nil {
		return nil
	}
	p.deliver(events.NewUpdate(topic.Name, body, p.clock.Now()))
	return nil
}
