package router

import (
	"encoding/hex"
	"encoding/json"
	"time"
)

// Formatter converts between an endpoint's wire representation and the
// router's internal frame (a decoded JSON-like map), matching the
// original's "module.func" formatter string convention: one function
// decodes inbound raw bytes, the other encodes outbound frames.
type Formatter interface {
	Decode(raw []byte) (map[string]any, error)
	Encode(frame map[string]any) ([]byte, error)
}

// jsonFormatter is the router's default when an endpoint configures none,
// matching route_frame()'s json.loads/json.dumps fallback.
type jsonFormatter struct{}

func (jsonFormatter) Decode(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (jsonFormatter) Encode(frame map[string]any) ([]byte, error) {
	return json.Marshal(frame)
}

// rawHexFormatter wraps/unwraps an opaque byte payload as a timestamped
// hex string, grounded on router_formatter_raw.py's raw_to_json/json_to_raw.
type rawHexFormatter struct{}

func (rawHexFormatter) Decode(raw []byte) (map[string]any, error) {
	return map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"data":      hex.EncodeToString(raw),
	}, nil
}

func (rawHexFormatter) Encode(frame map[string]any) ([]byte, error) {
	s, _ := frame["data"].(string)
	return hex.DecodeString(s)
}

// JSONFormatter and RawFormatter are the two built-in formatters endpoint
// configs may name; "raw" and "json" are the only formatter identifiers
// this package resolves out of the box.
var (
	JSONFormatter Formatter = jsonFormatter{}
	RawFormatter  Formatter = rawHexFormatter{}
)

func resolveFormatter(name string) Formatter {
	switch name {
	case "raw":
		return RawFormatter
	default:
		return JSONFormatter
	}
}
