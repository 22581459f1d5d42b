// Package transport defines the endpoint abstraction the dispatcher and the
// output listener send to and receive from, and resolves destination URIs
// to a concrete implementation (netty:, direct:, kafka:).
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Sender delivers one payload to a destination endpoint, honouring the
// caller's timeout via ctx.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Listener yields raw FIX buffers received from an inbound endpoint, one at
// a time, until ctx is cancelled.
type Listener interface {
	Accept(ctx context.Context) ([]byte, error)
	Close() error
}

// KafkaSenderFactory builds a Sender that republishes to the named topic,
// supplied by the broker package so transport has no direct kafka-go
// dependency of its own.
type KafkaSenderFactory func(topic string) (Sender, error)

// NettyDialer dials a netty:tcp://host:port URI.
type NettyDialer func(uri string, params map[string]string) (Sender, error)

// DirectDialer resolves a direct:<name> URI to the named in-process endpoint.
type DirectDialer func(name string) (Sender, error)

// Resolver turns a destination URI into a Sender, caching connections by URI
// so repeated sends to the same destination reuse the same transport. One
// Resolver is shared across every INPUT route's dispatcher, each running on
// its own goroutine, so cache access is mutex-guarded.
type Resolver struct {
	netty  NettyDialer
	direct DirectDialer
	kafka  KafkaSenderFactory

	mu    sync.Mutex
	cache map[string]Sender
}

// NewResolver builds a Resolver wired to the three supported schemes.
func NewResolver(netty NettyDialer, direct DirectDialer, kafka KafkaSenderFactory) *Resolver {
	return &Resolver{netty: netty, direct: direct, kafka: kafka, cache: make(map[string]Sender)}
}

// Resolve returns the Sender for uri (with endpointParameters already
// encoded as a query string by the caller), dialing and caching it on first use.
func (r *Resolver) Resolve(uri string) (Sender, error) {
	r.mu.Lock()
	if cached, ok := r.cache[uri]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	sender, err := r.dial(uri)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[uri]; ok {
		_ = sender.Close()
		return cached, nil
	}
	r.cache[uri] = sender
	return sender, nil
}

func (r *Resolver) dial(rawURI string) (Sender, error) {
	switch {
	case strings.HasPrefix(rawURI, "netty:"):
		target, params, err := splitNettyURI(rawURI)
		if err != nil {
			return nil, err
		}
		if r.netty == nil {
			return nil, fmt.Errorf("netty transport not configured")
		}
		return r.netty(target, params)
	case strings.HasPrefix(rawURI, "direct:"):
		if r.direct == nil {
			return nil, fmt.Errorf("direct transport not configured")
		}
		return r.direct(strings.TrimPrefix(rawURI, "direct:"))
	case strings.HasPrefix(rawURI, "kafka:"):
		if r.kafka == nil {
			return nil, fmt.Errorf("kafka transport not configured")
		}
		topic, _, err := splitKafkaURI(rawURI)
		if err != nil {
			return nil, err
		}
		return r.kafka(topic)
	default:
		return nil, fmt.Errorf("unsupported destination scheme: %s", rawURI)
	}
}

// Close closes every cached sender, for use during supervisor shutdown.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sender := range r.cache {
		_ = sender.Close()
	}
}

// BuildTargetURI concatenates uri with endpointParameters as a query string,
// per the endpoint's configured default parameters.
func BuildTargetURI(uri string, params map[string]string) string {
	if len(params) == 0 {
		return uri
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + values.Encode()
}

func splitNettyURI(uri string) (target string, params map[string]string, err error) {
	rest := strings.TrimPrefix(uri, "netty:")
	target, query := splitQuery(rest)
	params, err = parseQuery(query)
	return target, params, err
}

func splitKafkaURI(uri string) (topic string, params map[string]string, err error) {
	rest := strings.TrimPrefix(uri, "kafka:")
	topic, query := splitQuery(rest)
	params, err = parseQuery(query)
	return topic, params, err
}

func splitQuery(s string) (base, query string) {
	if idx := strings.IndexByte(s, '?'); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

func parseQuery(query string) (map[string]string, error) {
	if query == "" {
		return map[string]string{}, nil
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint parameters: %w", err)
	}
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params, nil
}
