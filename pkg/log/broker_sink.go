package log

import (
	"encoding/json"
	"strings"
	"time"
)

// Publisher is the minimal broker capability the bridge sink needs. It is
// defined here, not imported from pkg/broker, so pkg/log has no dependency
// on the broker wiring; pkg/broker's client satisfies it structurally.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// BrokerSink is an io.Writer that turns each zerolog record into the
// {module, level, created, message} JSON record spec 4.B requires on the
// "log" exchange, routing key = lowercase level name. It never returns an
// error to the caller: a broker publish failure here must not interrupt
// the logging pipeline, mirroring create_log_handlers' AMQP handler in the
// original BaseModule, which drops records rather than raising.
type BrokerSink struct {
	Module string
	pub    Publisher
}

// NewBrokerSink wires a sink to a live publisher. Modules install this once
// their broker channel is up; before that, log records simply don't reach
// the exchange, same as the original's lazy AMQP handler attachment.
func NewBrokerSink(module string, pub Publisher) *BrokerSink {
	return &BrokerSink{Module: module, pub: pub}
}

type record struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// Write implements io.Writer over zerolog's JSON-encoded line format. It
// does a best-effort re-parse of the level/message fields zerolog already
// produced rather than re-deriving them, and republishes as the wire shape
// spec 4.B names.
func (s *BrokerSink) Write(p []byte) (int, error) {
	if s == nil || s.pub == nil {
		return len(p), nil
	}

	var rec record
	if err := json.Unmarshal(p, &rec); err != nil {
		return len(p), nil
	}
	if rec.Level == "" {
		rec.Level = "info"
	}

	out := struct {
		Module  string `json:"module"`
		Level   string `json:"level"`
		Created string `json:"created"`
		Message string `json:"message"`
	}{
		Module:  s.Module,
		Level:   rec.Level,
		Created: time.Now().UTC().Format(time.RFC3339Nano),
		Message: rec.Message,
	}

	body, err := json.Marshal(out)
	if err != nil {
		return len(p), nil
	}

	// Errors are swallowed by design: a closed channel must not raise into
	// the logging pipeline.
	_ = s.pub.Publish("log", strings.ToLower(rec.Level), body)
	return len(p), nil
}
