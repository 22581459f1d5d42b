package domain

import "time"

// Direction is the flow direction of a route.
type Direction string

const (
	DirectionInput  Direction = "INPUT"
	DirectionOutput Direction = "OUTPUT"
)

// PartitionStrategy selects how an OUTPUT route assigns a broker key or
// partition to an outgoing record.
type PartitionStrategy string

const (
	PartitionNone PartitionStrategy = "NONE"
	PartitionKey  PartitionStrategy = "KEY"
	PartitionExpr PartitionStrategy = "EXPR"
)

// DefaultDeadLetterTopic is used when neither a route nor a destination
// names one explicitly.
const DefaultDeadLetterTopic = "fix-dead-letter"

// DestinationConfig describes one downstream endpoint a route dispatches to.
type DestinationConfig struct {
	URI             string            `json:"uri"`
	MaxRetries      int               `json:"maxRetries"`
	RetryDelayMS    int               `json:"retryDelay"`
	TimeoutMS       int               `json:"timeout"`
	DeadLetterTopic string            `json:"deadLetterTopic,omitempty"`
	EndpointParams  map[string]string `json:"endpointParameters,omitempty"`

	// ParallelProcessing is accepted for configuration compatibility with the
	// source format. It is never read by the dispatcher: destinations are
	// always sent to sequentially, in declared order.
	ParallelProcessing bool `json:"parallelProcessing,omitempty"`

	StopOnException bool     `json:"stopOnException"`
	MsgTypes         []string `json:"msgTypes,omitempty"`
}

// AcceptsMsgType reports whether this destination should receive an envelope
// of the given message type: empty or containing "*" means all.
func (d *DestinationConfig) AcceptsMsgType(msgType string) bool {
	if len(d.MsgTypes) == 0 {
		return true
	}
	for _, t := range d.MsgTypes {
		if t == "*" || t == msgType {
			return true
		}
	}
	return false
}

// EffectiveMaxRetries returns MaxRetries or its default of 3 when unset.
func (d *DestinationConfig) EffectiveMaxRetries() int {
	if d.MaxRetries > 0 {
		return d.MaxRetries
	}
	return 3
}

// EffectiveRetryDelay returns RetryDelayMS as a Duration, defaulting to 1s.
func (d *DestinationConfig) EffectiveRetryDelay() time.Duration {
	if d.RetryDelayMS > 0 {
		return time.Duration(d.RetryDelayMS) * time.Millisecond
	}
	return 1000 * time.Millisecond
}

// EffectiveTimeout returns TimeoutMS as a Duration, defaulting to 5s.
func (d *DestinationConfig) EffectiveTimeout() time.Duration {
	if d.TimeoutMS > 0 {
		return time.Duration(d.TimeoutMS) * time.Millisecond
	}
	return 5000 * time.Millisecond
}

// EffectiveDeadLetterTopic returns DeadLetterTopic, or the per-route default
// dead-letter-<routeId>-<endpointSlug> form when unset.
func (d *DestinationConfig) EffectiveDeadLetterTopic(routeID, endpointSlug string) string {
	if d.DeadLetterTopic != "" {
		return d.DeadLetterTopic
	}
	return "dead-letter-" + routeID + "-" + endpointSlug
}

// Route is an immutable-after-load mapping from an input source to one or
// more output destinations.
type Route struct {
	RouteID      string    `json:"routeId"`
	Direction    Direction `json:"type"`
	SenderCompID string    `json:"senderCompId"`
	TargetCompID string    `json:"targetCompId"`

	InputTopic  string `json:"inputTopic,omitempty"`
	OutputTopic string `json:"outputTopic,omitempty"`

	DestinationConfigs []DestinationConfig `json:"destinationConfigs"`

	MaxRedeliveries  int    `json:"maxRedeliveries,omitempty"`
	RedeliveryDelay  int    `json:"redeliveryDelay,omitempty"`
	DeadLetterTopic  string `json:"deadLetterTopic,omitempty"`

	PartitionStrategy  PartitionStrategy `json:"partitionStrategy,omitempty"`
	PartitionExpression string           `json:"partitionExpression,omitempty"`

	// ListenerURIs names the OUTPUT-direction endpoints this route listens
	// on (netty:tcp://..., direct:<name>). Unused for INPUT routes.
	ListenerURIs []string `json:"listenerUris,omitempty"`
}

// NormalisedID returns RouteID lowercased with characters unsuitable for a
// Kafka consumer-group id stripped to underscores, for the
// fix-router-<normalisedRouteId> group naming.
func (r *Route) NormalisedID() string {
	out := make([]byte, 0, len(r.RouteID))
	for _, c := range []byte(r.RouteID) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c-'A'+'a')
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// ConsumerGroupID returns the consumer-group id this route's INPUT consumer
// should use.
func (r *Route) ConsumerGroupID() string {
	return "fix-router-" + r.NormalisedID()
}
