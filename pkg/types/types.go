// Package types holds the wire and domain value types shared across
// porthouse packages: the broker routing fingerprint, module descriptors,
// the RPC envelope, and the scheduler/tracker/router domain objects from
// the data model.
package types

import "time"

// ExchangeKind is the AMQP exchange type used for a declared exchange.
type ExchangeKind string

const (
	ExchangeTopic  ExchangeKind = "topic"
	ExchangeFanout ExchangeKind = "fanout"
	ExchangeDirect ExchangeKind = "direct"
)

// ExchangeDeclaration describes one exchange a launcher asserts at start.
type ExchangeDeclaration struct {
	Name       string
	Kind       ExchangeKind
	Durable    bool
	AutoDelete bool
}

// ModuleDescriptor is one entry of a launch spec's `modules:` list.
type ModuleDescriptor struct {
	Name      string                 // display name, defaults to Class
	Class     string                 // launcher registry key, e.g. "rotator.Rotator"
	Prefix    string                 // routing prefix, may be stacked with the launcher's prefix
	Params    map[string]ParamValue  // literal or GLOBAL: references
	Debug     bool
}

// ParamValue is a typed module-descriptor parameter. Value holds the raw
// YAML scalar (string/int/float/bool) or the "GLOBAL:<name>" sentinel
// string before resolution; Type optionally forces a cast.
type ParamValue struct {
	Value any
	Type  string // "", "string", "integer", "float", "boolean"
}

// RPCRequest is the JSON body published alongside the reply_to/correlation_id
// headers attached to an RPC call.
type RPCRequest struct {
	Body map[string]any
}

// RPCResponse is either a payload map or {error: "..."}; Error takes
// precedence when both are set by a handler's wrapper.
type RPCResponse struct {
	Payload map[string]any
	Error   string
}

// TaskStatus is the scheduler task lifecycle state.
type TaskStatus string

const (
	TaskNotScheduled TaskStatus = "NOT_SCHEDULED"
	TaskScheduled    TaskStatus = "SCHEDULED"
	TaskOngoing      TaskStatus = "ONGOING"
	TaskExecuted     TaskStatus = "EXECUTED"
	TaskCancelled    TaskStatus = "CANCELLED"
)

// Task is a single scheduled contact.
type Task struct {
	TaskName         string
	ProcessName      string
	StartTime        time.Time
	EndTime          time.Time
	Rotators         map[string]struct{}
	Status           TaskStatus
	AutoScheduled    bool
	ProcessOverrides map[string]any
}

// Tracker discriminates the kind of target a Process tracks.
type Tracker string

const (
	TrackerOrbit Tracker = "orbit"
	TrackerGNSS  Tracker = "gnss"
	TrackerOther Tracker = "other"
)

// Process is a recurring-task template a scheduler expands into Tasks.
type Process struct {
	ProcessName     string
	Priority        int
	Enabled         bool
	Rotators        map[string]struct{}
	Tracker         Tracker
	Target          string
	PreAOSTime      time.Duration
	MinElevation    float64
	MinMaxElevation float64
	SunMaxElevation *float64 // nil = no sun constraint
	ObjSunlit       *bool    // nil = no sunlit constraint
	MinDuration     time.Duration
	MaxDuration     time.Duration // zero = unbounded
	DailyWindows    []TimeWindow
	DateRanges      []DateRange
}

// TimeWindow is a "HH:MM:SS|HH:MM:SS" daily window, in groundstation local
// wall-clock terms but compared against a task's UTC clock time of day.
type TimeWindow struct {
	Start, End time.Duration // offset since midnight
}

// DateRange is a "YYYY-MM-DD|YYYY-MM-DD" inclusive calendar range.
type DateRange struct {
	Start, End time.Time
}

// PassStatus mirrors Task status vocabulary loosely; passes are read-only
// predictions, not scheduled entities, but carry a status for consumers
// that promote a pass into a task.
type PassStatus string

const (
	PassPredicted PassStatus = "PREDICTED"
)

// Pass is one predicted AOS/max/LOS event triple.
type Pass struct {
	ObjectName   string
	Groundstation string
	Status       PassStatus
	TAOS         time.Time
	AzAOS, ElAOS float64
	TMax         time.Time
	AzMax, ElMax float64
	TLOS         time.Time
	AzLOS, ElLOS float64
}

// Valid reports whether a pass clears its process' peak-elevation floor
// and has a sane (forward) duration.
func (p Pass) Valid(minMaxElevation float64) bool {
	return p.ElMax >= minMaxElevation && p.TLOS.After(p.TAOS)
}

// EndpointKind enumerates the packet router's endpoint catalog.
type EndpointKind string

const (
	EndpointBrokerIn    EndpointKind = "broker-in"
	EndpointBrokerOut   EndpointKind = "broker-out"
	EndpointSubscriber  EndpointKind = "subscriber-socket"
	EndpointPublisher   EndpointKind = "publisher-socket"
	EndpointUDPIn       EndpointKind = "udp-in"
	EndpointUDPOut      EndpointKind = "udp-out"
	EndpointTCP         EndpointKind = "tcp"
)

// EndpointDirection constrains which side of a route an endpoint may sit on.
type EndpointDirection string

const (
	DirIn   EndpointDirection = "in"
	DirOut  EndpointDirection = "out"
	DirBidi EndpointDirection = "bidi"
)

// EndpointSpec is the declarative configuration for one router endpoint.
type EndpointSpec struct {
	Name         string
	Kind         EndpointKind
	Direction    EndpointDirection
	Address      string // bind/connect target, or broker exchange name
	RoutingKey   string // for broker endpoints
	Topic        string // subscriber-socket topic filter
	Multipart    bool
	SourceTag    string
	SatelliteTag string
	Metadata     map[string]any
	Persistent   bool
}
