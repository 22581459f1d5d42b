package domain

import "strings"

// RoutingConfig is the parsed form of the routing document: a collection of
// routes plus global error-handling defaults and a default destination
// template. Loaded once; read-only for the remainder of the process.
type RoutingConfig struct {
	Routes []Route `json:"routes"`

	DefaultMaxRedeliveries int                `json:"defaultMaxRedeliveries,omitempty"`
	DefaultRedeliveryDelay int                `json:"defaultRedeliveryDelay,omitempty"`
	DefaultDeadLetterTopic string             `json:"defaultDeadLetterTopic,omitempty"`
	DefaultDestination     *DestinationConfig `json:"defaultDestination,omitempty"`
}

const (
	defaultMaxRedeliveries = 1
	defaultRedeliveryDelayMS = 500
)

// ApplyGlobalDefaults fills every route's and destination's unset
// error-handling fields from the configuration's global defaults.
func (c *RoutingConfig) ApplyGlobalDefaults() {
	maxRedel := c.DefaultMaxRedeliveries
	if maxRedel == 0 {
		maxRedel = defaultMaxRedeliveries
	}
	redelDelay := c.DefaultRedeliveryDelay
	if redelDelay == 0 {
		redelDelay = defaultRedeliveryDelayMS
	}
	deadLetter := c.DefaultDeadLetterTopic
	if deadLetter == "" {
		deadLetter = DefaultDeadLetterTopic
	}

	for i := range c.Routes {
		r := &c.Routes[i]
		if r.MaxRedeliveries == 0 {
			r.MaxRedeliveries = maxRedel
		}
		if r.RedeliveryDelay == 0 {
			r.RedeliveryDelay = redelDelay
		}
		if r.DeadLetterTopic == "" {
			r.DeadLetterTopic = deadLetter
		}
		for j := range r.DestinationConfigs {
			d := &r.DestinationConfigs[j]
			if c.DefaultDestination != nil {
				applyDestinationDefaults(d, c.DefaultDestination)
			}
		}
	}
}

func applyDestinationDefaults(d, defaults *DestinationConfig) {
	if d.MaxRetries == 0 {
		d.MaxRetries = defaults.MaxRetries
	}
	if d.RetryDelayMS == 0 {
		d.RetryDelayMS = defaults.RetryDelayMS
	}
	if d.TimeoutMS == 0 {
		d.TimeoutMS = defaults.TimeoutMS
	}
}

// AllRoutes returns every loaded route in document order, for the
// introspection surface.
func (c *RoutingConfig) AllRoutes() []*Route {
	out := make([]*Route, 0, len(c.Routes))
	for i := range c.Routes {
		out = append(out, &c.Routes[i])
	}
	return out
}

// RouteByID returns the route with the given id, or nil.
func (c *RoutingConfig) RouteByID(routeID string) *Route {
	for i := range c.Routes {
		if c.Routes[i].RouteID == routeID {
			return &c.Routes[i]
		}
	}
	return nil
}

// RoutesByDirection returns every route matching direction, in document order.
func (c *RoutingConfig) RoutesByDirection(direction Direction) []*Route {
	var out []*Route
	for i := range c.Routes {
		if c.Routes[i].Direction == direction {
			out = append(out, &c.Routes[i])
		}
	}
	return out
}

// RouteBySenderTarget implements the legacy destination-resolution fall-back
// match by sender/target pair and direction when a
// record carries no routeId. Returns nil when zero or more than one route
// matches, since an ambiguous match must not be guessed.
func (c *RoutingConfig) RouteBySenderTarget(sender, target string, direction Direction) *Route {
	var match *Route
	for i := range c.Routes {
		r := &c.Routes[i]
		if r.Direction == direction && r.SenderCompID == sender && r.TargetCompID == target {
			if match != nil {
				return nil
			}
			match = r
		}
	}
	return match
}

// FindMatchingRoutes returns every route, of either direction, whose
// sender/target pair matches (case-insensitive), in document order. Unlike
// RouteBySenderTarget (the single-route legacy dispatch fall-back) this
// never collapses an ambiguous match to nil: the introspection surface
// wants the full list, the way findMatchingRoutes does in the router this
// gateway was distilled from.
func (c *RoutingConfig) FindMatchingRoutes(sender, target string) []*Route {
	var out []*Route
	for i := range c.Routes {
		r := &c.Routes[i]
		if strings.EqualFold(r.SenderCompID, sender) && strings.EqualFold(r.TargetCompID, target) {
			out = append(out, r)
		}
	}
	return out
}

// DestinationsFor returns every destination URI of every route matching
// sender/target, flattened in route-then-destination order.
func (c *RoutingConfig) DestinationsFor(sender, target string) []string {
	var out []string
	for _, r := range c.FindMatchingRoutes(sender, target) {
		for _, d := range r.DestinationConfigs {
			out = append(out, d.URI)
		}
	}
	return out
}
