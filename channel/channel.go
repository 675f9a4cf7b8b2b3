package channel

import (
	"context"
	"sync"

	"github.com/lakebed/duckbridge/errors"
)

// Envelope kinds carried over ports and the worker's default paths.
const (
	KindBridgeInit  = "bridge-init"
	KindBridgeReady = "bridge-ready"
	KindRPCRequest  = "rpc-request"
	KindRPCResponse = "rpc-response"
)

// Message is the control envelope and RPC frame carrier. Port is set only
// on bridge-init envelopes, where it transfers one endpoint of a fresh
// pair to the worker.
type Message struct {
	Kind    string
	Port    *Port
	Payload any
}

// Port is one endpoint of an exclusively-owned, ordered, bidirectional
// pair. Messages posted before the receiving side starts are queued, not
// dropped. A port is intended for a single receiving goroutine; closing
// either endpoint invalidates the whole pair.
type Port struct {
	in        *queue
	out       *queue
	pair      *pairState
	started   chan struct{}
	startOnce sync.Once
}

type pairState struct {
	closeOnce sync.Once
	a, b      *queue
}

// NewPair creates a cross-wired pair of endpoints.
func NewPair() (*Port, *Port) {
	qa := newQueue()
	qb := newQueue()
	pair := &pairState{a: qa, b: qb}
	left := &Port{in: qa, out: qb, pair: pair, started: make(chan struct{})}
	right := &Port{in: qb, out: qa, pair: pair, started: make(chan struct{})}
	return left, right
}

// Start enables delivery on this endpoint. Recv blocks until Start has
// been called; Post does not require it.
func (p *Port) Start() {
	p.startOnce.Do(func() { close(p.started) })
}

// Post enqueues a message for the peer endpoint in FIFO order.
func (p *Port) Post(m Message) error {
	return p.out.push(m)
}

// Recv returns the next queued message, waiting until one arrives, the
// context is done, or the pair is closed. Messages queued before close
// are still delivered.
func (p *Port) Recv(ctx context.Context) (Message, error) {
	select {
	case <-p.started:
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
	return p.in.pop(ctx)
}

// Close invalidates both endpoints of the pair. Idempotent.
func (p *Port) Close() error {
	p.pair.closeOnce.Do(func() {
		p.pair.a.close()
		p.pair.b.close()
	})
	return nil
}

// queue is an unbounded FIFO with a single consumer.
type queue struct {
	mu     sync.Mutex
	items  []Message
	ready  chan struct{}
	closed bool
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(m Message) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.Closed("port")
	}
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *queue) pop(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return m, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Message{}, errors.Closed("port")
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
