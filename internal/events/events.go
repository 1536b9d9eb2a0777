// Package events publishes action records so other services can follow
// the ledger without polling the store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "engine.actions"

// Publisher announces action records.
type Publisher interface {
	Publish(ctx context.Context, rec model.ActionRecord) error
	Close()
}

// Subject returns the subject a record of kind is published on.
func Subject(prefix string, kind model.ActionKind) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + string(kind)
}

// NATSPublisher publishes JSON-encoded records on <prefix>.<kind>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to the server at url.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("gmx-engine"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

// Publish sends rec. The context only guards against publishing after
// cancellation; NATS publishes are buffered and do not block.
func (p *NATSPublisher) Publish(ctx context.Context, rec model.ActionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.conn.Publish(Subject(p.prefix, rec.Kind), data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	_ = p.conn.Drain()
}

// Handler receives decoded records.
type Handler func(subject string, rec model.ActionRecord)

// Subscriber follows every action subject under a prefix.
type Subscriber struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// Subscribe connects to url and calls h for each record published under
// prefix. Messages that fail to decode are dropped.
func Subscribe(url, prefix string, h Handler) (*Subscriber, error) {
	conn, err := nats.Connect(url, nats.Name("gmx-engine-watch"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	sub, err := conn.Subscribe(Subject(prefix, "*"), func(msg *nats.Msg) {
		var rec model.ActionRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			return
		}
		h(msg.Subject, rec)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Subject(prefix, "*"), err)
	}
	return &Subscriber{conn: conn, sub: sub}, nil
}

// Close unsubscribes and closes the connection.
func (s *Subscriber) Close() {
	_ = s.sub.Unsubscribe()
	s.conn.Close()
}

// Recorder keeps published records in memory. It backs tests and runs
// without a broker.
type Recorder struct {
	mu      sync.Mutex
	prefix  string
	records []model.ActionRecord
	subs    []string
}

// NewRecorder returns an empty recorder.
func NewRecorder(prefix string) *Recorder {
	return &Recorder{prefix: prefix}
}

// Publish appends rec.
func (r *Recorder) Publish(ctx context.Context, rec model.ActionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	r.subs = append(r.subs, Subject(r.prefix, rec.Kind))
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() {}

// Records returns a copy of the published records in order.
func (r *Recorder) Records() []model.ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ActionRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Subjects returns the subjects records were published on, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.subs))
	copy(out, r.subs)
	return out
}
