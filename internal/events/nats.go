package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

const subscriptionBuffer = 64

func connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	nc, err := nats.Connect(url, append([]nats.Option{nats.Name(name)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher wraps each event in an Envelope and publishes it on the
// event's topic.
type NATSPublisher struct {
	conn *nats.Conn
	now  func() time.Time
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := connect(url, "chanbot")
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc, now: time.Now}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", topic, err)
	}
	env, err := json.Marshal(Envelope{Topic: topic, At: p.now().Unix(), Data: data})
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := p.conn.Publish(topic, env); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending events before closing the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.FlushTimeout(2 * time.Second)
	p.conn.Close()
	return err
}

// NATSSubscriber reconnects forever; extra options such as disconnect or
// reconnect handlers are applied after the defaults.
type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "chanbot-watch", append([]nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe starts delivering envelopes published on topic, which may use
// NATS wildcards such as TopicAll. The subscription is registered on the
// server before Subscribe returns.
func (s *NATSSubscriber) Subscribe(topic string) (*Subscription, error) {
	ch := make(chan Envelope, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch}

	ns, err := s.conn.Subscribe(topic, sub.deliver)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	if err := s.conn.Flush(); err != nil {
		_ = ns.Unsubscribe()
		return nil, fmt.Errorf("flushing subscription to %s: %w", topic, err)
	}
	sub.ns = ns
	return sub, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}

// Subscription is a live stream of envelopes. C is closed by Stop.
type Subscription struct {
	C <-chan Envelope

	ch      chan Envelope
	ns      *nats.Subscription
	mu      sync.Mutex
	stopped bool
	dropped atomic.Int64
}

// deliver never blocks the NATS dispatcher: undecodable payloads and
// envelopes that find the buffer full are counted and discarded.
func (s *Subscription) deliver(msg *nats.Msg) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil || env.Topic == "" {
		s.dropped.Add(1)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.ch <- env:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many messages were discarded so far.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Stop unsubscribes, discards anything still buffered and closes C. It is
// safe to call more than once.
func (s *Subscription) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.ns != nil {
		_ = s.ns.Unsubscribe()
	}
	for len(s.ch) > 0 {
		<-s.ch
	}
	close(s.ch)
}
