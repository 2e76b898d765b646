package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alex-galey/dokku-deployer/internal/shared/metrics"
	"github.com/alex-galey/dokku-deployer/pkg/config"
)

// Topic is a live channel observers subscribe to, one per job category.
type Topic string

const (
	TopicAppCreated     Topic = "APP_CREATED"
	TopicAppRebuilt     Topic = "APP_REBUILT"
	TopicDatabaseLinked Topic = "DATABASE_LINKED"
)

var knownTopics = map[Topic]bool{
	TopicAppCreated:     true,
	TopicAppRebuilt:     true,
	TopicDatabaseLinked: true,
}

func ParseTopic(s string) (Topic, bool) {
	t := Topic(s)
	return t, knownTopics[t]
}

// Log stream kinds carried by LogPayload.Type.
const (
	TypeStdout         = "stdout"
	TypeStderr         = "stderr"
	TypeEndSuccess     = "end:success"
	TypeEndFailure     = "end:failure"
	TypeAlreadyLinked  = "link:already_linked"
	TypeDatabaseAbsent = "link:not_found"
)

// LogPayload is the payload of every event published by jobs.
type LogPayload struct {
	ReferenceID string `json:"reference_id"`
	JobID       string `json:"job_id,omitempty"`
	Message     string `json:"message"`
	Type        string `json:"type"`
}

type Event struct {
	Topic       Topic     `json:"topic"`
	Payload     any       `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

var (
	ErrBusNotRunning = errors.New("event bus is not running")
)

// Publisher is the narrow side of the bus handed to jobs.
type Publisher interface {
	Publish(topic Topic, payload any)
}

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

type subscriber struct {
	topic Topic
	ch    chan Event
}

// Bus is an in-process publish/subscribe dispatcher without persistence or replay.
// A single goroutine owns the subscriber set; subscribers that fall behind lose
// events instead of blocking publishers.
type Bus struct {
	logger  *slog.Logger
	metrics metrics.Collector
	buffer  int

	state     atomic.Int32
	clients   map[Topic]map[*subscriber]struct{}
	register  chan *subscriber
	unreg     chan *subscriber
	broadcast chan Event
	quit      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

func NewBus(cfg config.EventsConfig, logger *slog.Logger, collector metrics.Collector) *Bus {
	buffer := cfg.SubscriberBuffer
	if buffer <= 0 {
		buffer = 256
	}
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &Bus{
		logger:    logger,
		metrics:   collector,
		buffer:    buffer,
		clients:   make(map[Topic]map[*subscriber]struct{}),
		register:  make(chan *subscriber),
		unreg:     make(chan *subscriber),
		broadcast: make(chan Event, 1024),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (b *Bus) Start() {
	if !b.state.CompareAndSwap(stateNew, stateRunning) {
		return
	}
	go b.run()
	b.logger.Debug("Event bus started")
}

// Stop closes every subscription and waits for the dispatcher to exit.
func (b *Bus) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() {
		wasRunning := b.state.Swap(stateStopped) == stateRunning
		close(b.quit)
		if !wasRunning {
			close(b.done)
		}
	})
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case sub := <-b.register:
			if _, ok := b.clients[sub.topic]; !ok {
				b.clients[sub.topic] = make(map[*subscriber]struct{})
			}
			b.clients[sub.topic][sub] = struct{}{}
		case sub := <-b.unreg:
			if clients, ok := b.clients[sub.topic]; ok {
				if _, present := clients[sub]; present {
					delete(clients, sub)
					close(sub.ch)
				}
				if len(clients) == 0 {
					delete(b.clients, sub.topic)
				}
			}
		case ev := <-b.broadcast:
			b.dispatch(ev)
		case <-b.quit:
			for _, clients := range b.clients {
				for sub := range clients {
					close(sub.ch)
				}
			}
			b.clients = map[Topic]map[*subscriber]struct{}{}
			return
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	for sub := range b.clients[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
			b.metrics.RecordEventDropped(string(ev.Topic))
			b.logger.Warn("Dropping event for slow subscriber", "topic", ev.Topic)
		}
	}
}

// Publish hands payload to the dispatcher. Events published while the bus is
// not running are discarded.
func (b *Bus) Publish(topic Topic, payload any) {
	if b.state.Load() != stateRunning {
		b.logger.Debug("Event bus not running, discarding event", "topic", topic)
		return
	}
	ev := Event{Topic: topic, Payload: payload, PublishedAt: time.Now().UTC()}
	select {
	case b.broadcast <- ev:
	case <-b.quit:
	}
}

// Subscription delivers events of one topic until closed.
type Subscription struct {
	C   <-chan Event
	bus *Bus
	sub *subscriber
}

func (b *Bus) Subscribe(topic Topic) (*Subscription, error) {
	if b.state.Load() != stateRunning {
		return nil, ErrBusNotRunning
	}
	sub := &subscriber{topic: topic, ch: make(chan Event, b.buffer)}
	select {
	case b.register <- sub:
	case <-b.quit:
		return nil, ErrBusNotRunning
	}
	return &Subscription{C: sub.ch, bus: b, sub: sub}, nil
}

// Close unsubscribes; C is closed once the dispatcher processed the request.
func (s *Subscription) Close() {
	select {
	case s.bus.unreg <- s.sub:
	case <-s.bus.quit:
	}
}
