// Package direct implements the in-process "direct:<name>" transport: a
// named registry of buffered channels connecting an OUTPUT route's listener
// directly to an INPUT route's dispatcher without going through the broker
// or a real socket.
package direct

import (
	"context"
	"fmt"
	"sync"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/transport"
)

// Registry holds the named in-process endpoints. One Registry is shared for
// the whole process; routes dial and listen against the same instance.
type Registry struct {
	mu        sync.Mutex
	endpoints map[string]chan []byte
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]chan []byte)}
}

func (r *Registry) channelFor(name string) chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.endpoints[name]
	if !ok {
		ch = make(chan []byte, 64)
		r.endpoints[name] = ch
	}
	return ch
}

// Dial returns a Sender that pushes payloads onto the named endpoint's channel.
func (r *Registry) Dial(name string) (transport.Sender, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: direct endpoint name must not be empty", domain.ErrConfiguration)
	}
	return &sender{ch: r.channelFor(name)}, nil
}

// Listen returns a Listener that receives payloads pushed onto the named
// endpoint's channel.
func (r *Registry) Listen(name string) (transport.Listener, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: direct endpoint name must not be empty", domain.ErrConfiguration)
	}
	return &listener{ch: r.channelFor(name)}, nil
}

type sender struct {
	ch chan []byte
}

// Send pushes payload onto the channel, or returns an error if the consumer
// side is not draining it fast enough within the caller's context.
func (s *sender) Send(ctx context.Context, payload []byte) error {
	select {
	case s.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sender) Close() error { return nil }

type listener struct {
	ch chan []byte
}

// Accept blocks until a payload is pushed or ctx is cancelled.
func (l *listener) Accept(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-l.ch:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *listener) Close() error { return nil }
