package roundtrip

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Participants report progress as marker lines on stdout (native) or in the
// browser console log. The drivers normalize both sources into the same Event
// values, so the runner never needs to know which environment produced them.
const (
	markerPrefix       = "interop-harness: "
	markerReady        = markerPrefix + "ready"
	markerConnected    = markerPrefix + "connected"
	markerResultPrefix = markerPrefix + "result "
)

// EventKind classifies a parsed marker line.
type EventKind int

const (
	// EventReady means the participant finished setup: a listener has
	// published its rendezvous record, a dialer has built its host.
	EventReady EventKind = iota
	// EventConnected means the dialer's connection to the listener is
	// established, security handshake and muxer negotiation included.
	EventConnected
	// EventResult carries the dialer's final verdict for the round trip.
	EventResult
)

// Event is one normalized progress report from a participant.
type Event struct {
	Kind   EventKind
	Result Result
}

// Result is the dialer's account of the probe exchange.
type Result struct {
	OK        bool            `json:"ok"`
	Category  FailureCategory `json:"category,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMS float64         `json:"latencyMs"`
}

// ReadyMarker returns the line a participant prints when it is ready.
func ReadyMarker() string { return markerReady }

// ConnectedMarker returns the line a dialer prints once connected.
func ConnectedMarker() string { return markerConnected }

// ResultMarker returns the line a dialer prints as its final report.
func ResultMarker(result Result) string {
	data, _ := json.Marshal(result)
	return markerResultPrefix + string(data)
}

// ParseLine recognizes a marker line and returns its Event. Non-marker output
// (ordinary participant logging) returns ok=false.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == markerReady:
		return Event{Kind: EventReady}, true
	case line == markerConnected:
		return Event{Kind: EventConnected}, true
	case strings.HasPrefix(line, markerResultPrefix):
		var result Result
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, markerResultPrefix)), &result); err != nil {
			result = Result{OK: false, Category: CategoryInfra,
				Error: fmt.Sprintf("malformed result marker: %s", err)}
		}
		return Event{Kind: EventResult, Result: result}, true
	}
	return Event{}, false
}
