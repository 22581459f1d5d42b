package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/transport"
)

type recordingSender struct {
	mu       sync.Mutex
	attempts []time.Time
	fail     func(attempt int) error
}

func (s *recordingSender) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	s.attempts = append(s.attempts, time.Now())
	attempt := len(s.attempts)
	s.mu.Unlock()
	if s.fail != nil {
		return s.fail(attempt)
	}
	return nil
}

func (s *recordingSender) Close() error { return nil }

func (s *recordingSender) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

type recordingDeadLetter struct {
	mu    sync.Mutex
	count int
	topic string
	env   *domain.Envelope
}

func (d *recordingDeadLetter) PublishDeadLetter(ctx context.Context, topic string, env *domain.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	d.topic = topic
	d.env = env
	return nil
}

func newTestEnvelope(msgType string) *domain.Envelope {
	return &domain.Envelope{MsgType: msgType, RawMessage: []byte("8=FIX.4.4\x0135=" + msgType + "\x01")}
}

func TestDispatch_SuccessNoDeadLetter(t *testing.T) {
	sender := &recordingSender{}
	resolver := transport.NewResolver(nil, func(name string) (transport.Sender, error) { return sender, nil }, nil)
	dl := &recordingDeadLetter{}
	d := NewDispatcher(resolver, dl, nil)

	route := &domain.Route{RouteID: "R1", DestinationConfigs: []domain.DestinationConfig{
		{URI: "direct:exec", MaxRetries: 2, RetryDelayMS: 1},
	}}

	err := d.Dispatch(context.Background(), route, newTestEnvelope("D"))
	require.NoError(t, err)
	assert.Equal(t, 1, sender.attemptCount())
	assert.Equal(t, 0, dl.count)
}

func TestDispatch_RetryThenDeadLetter(t *testing.T) {
	sender := &recordingSender{fail: func(attempt int) error { return errors.New("connection refused") }}
	resolver := transport.NewResolver(nil, func(name string) (transport.Sender, error) { return sender, nil }, nil)
	dl := &recordingDeadLetter{}
	d := NewDispatcher(resolver, dl, nil)

	route := &domain.Route{RouteID: "R1", DestinationConfigs: []domain.DestinationConfig{
		{URI: "direct:exec", MaxRetries: 2, RetryDelayMS: 10},
	}}

	err := d.Dispatch(context.Background(), route, newTestEnvelope("D"))
	require.NoError(t, err) // stopOnException is false, so Dispatch itself does not error
	assert.Equal(t, 3, sender.attemptCount())
	assert.Equal(t, 1, dl.count)
}

func TestDispatch_NonNetworkErrorSkipsRetry(t *testing.T) {
	sender := &recordingSender{fail: func(attempt int) error { return errors.New("invalid message format") }}
	resolver := transport.NewResolver(nil, func(name string) (transport.Sender, error) { return sender, nil }, nil)
	dl := &recordingDeadLetter{}
	d := NewDispatcher(resolver, dl, nil)

	route := &domain.Route{RouteID: "R1", DestinationConfigs: []domain.DestinationConfig{
		{URI: "direct:exec", MaxRetries: 5, RetryDelayMS: 1},
	}}

	err := d.Dispatch(context.Background(), route, newTestEnvelope("D"))
	require.NoError(t, err)
	assert.Equal(t, 1, sender.attemptCount())
	assert.Equal(t, 1, dl.count)
}

func TestDispatch_StopOnExceptionAbortsRemainingDestinations(t *testing.T) {
	failing := &recordingSender{fail: func(attempt int) error { return errors.New("connection refused") }}
	second := &recordingSender{}

	calls := 0
	resolver := transport.NewResolver(nil, func(name string) (transport.Sender, error) {
		calls++
		if calls == 1 {
			return failing, nil
		}
		return second, nil
	}, nil)
	dl := &recordingDeadLetter{}
	d := NewDispatcher(resolver, dl, nil)

	route := &domain.Route{RouteID: "R1", DestinationConfigs: []domain.DestinationConfig{
		{URI: "direct:exec1", MaxRetries: 0, RetryDelayMS: 1, StopOnException: true},
		{URI: "direct:exec2", MaxRetries: 0, RetryDelayMS: 1},
	}}

	err := d.Dispatch(context.Background(), route, newTestEnvelope("D"))
	require.Error(t, err)
	assert.Equal(t, 0, second.attemptCount())
}

func TestDispatch_ContinuesWhenStopOnExceptionFalse(t *testing.T) {
	failing := &recordingSender{fail: func(attempt int) error { return errors.New("connection refused") }}
	second := &recordingSender{}

	calls := 0
	resolver := transport.NewResolver(nil, func(name string) (transport.Sender, error) {
		calls++
		if calls == 1 {
			return failing, nil
		}
		return second, nil
	}, nil)
	dl := &recordingDeadLetter{}
	d := NewDispatcher(resolver, dl, nil)

	route := &domain.Route{RouteID: "R1", DestinationConfigs: []domain.DestinationConfig{
		{URI: "direct:exec1", MaxRetries: 0, RetryDelayMS: 1, StopOnException: false},
		{URI: "direct:exec2", MaxRetries: 0, RetryDelayMS: 1},
	}}

	err := d.Dispatch(context.Background(), route, newTestEnvelope("D"))
	require.NoError(t, err)
	assert.Equal(t, 1, second.attemptCount())
}

func TestDispatch_TypeFilterSkipsDestinationSilently(t *testing.T) {
	d0 := &recordingSender{}
	d1 := &recordingSender{}
	// Senders are handed out by endpoint name: the filtered-out destination
	// is never resolved, so call order would not identify it.
	resolver := transport.NewResolver(nil, func(name string) (transport.Sender, error) {
		if name == "exec0" {
			return d0, nil
		}
		return d1, nil
	}, nil)
	dl := &recordingDeadLetter{}
	d := NewDispatcher(resolver, dl, nil)

	route := &domain.Route{RouteID: "R1", DestinationConfigs: []domain.DestinationConfig{
		{URI: "direct:exec0", MsgTypes: []string{"8"}},
		{URI: "direct:exec1", MsgTypes: []string{"*"}},
	}}

	err := d.Dispatch(context.Background(), route, newTestEnvelope("D"))
	require.NoError(t, err)
	assert.Equal(t, 0, d0.attemptCount())
	assert.Equal(t, 1, d1.attemptCount())
}

func TestDispatch_RetryBoundNeverExceedsMaxRetriesPlusOne(t *testing.T) {
	sender := &recordingSender{fail: func(attempt int) error { return errors.New("timeout") }}
	resolver := transport.NewResolver(nil, func(name string) (transport.Sender, error) { return sender, nil }, nil)
	d := NewDispatcher(resolver, &recordingDeadLetter{}, nil)

	route := &domain.Route{RouteID: "R1", DestinationConfigs: []domain.DestinationConfig{
		{URI: "direct:exec", MaxRetries: 2, RetryDelayMS: 1},
	}}

	_ = d.Dispatch(context.Background(), route, newTestEnvelope("D"))
	assert.Equal(t, 3, sender.attemptCount())
}

func TestDispatch_RetryDelayIsHonoured(t *testing.T) {
	sender := &recordingSender{fail: func(attempt int) error { return errors.New("connection refused") }}
	resolver := transport.NewResolver(nil, func(name string) (transport.Sender, error) { return sender, nil }, nil)
	d := NewDispatcher(resolver, &recordingDeadLetter{}, nil)

	route := &domain.Route{RouteID: "R1", DestinationConfigs: []domain.DestinationConfig{
		{URI: "direct:exec", MaxRetries: 2, RetryDelayMS: 15},
	}}

	_ = d.Dispatch(context.Background(), route, newTestEnvelope("D"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.attempts, 3)
	gap := sender.attempts[1].Sub(sender.attempts[0])
	assert.GreaterOrEqual(t, gap.Milliseconds(), int64(10))
}
