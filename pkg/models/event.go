package models

import (
	"fmt"
	"time"
)

// SourceKind identifies the feed an event came from.
type SourceKind string

const (
	SourceSessionLog SourceKind = "SESSION_LOG"
	SourceNetwork    SourceKind = "NETWORK"
)

// Event kinds produced by the normalizer.
const (
	KindCommandInput = "command-input"
	KindLoginFailed  = "login-failed"
	KindLoginSuccess = "login-success"
	KindSession      = "session"
	KindTCPSyn       = "tcp-syn"
	KindHighRate     = "high-rate"
	KindPayload      = "payload"
	KindPacket       = "packet"
)

// Unknown is the placeholder for missing identity fields.
const Unknown = "unknown"

// Event is a normalized sensor record.
type Event struct {
	Source SourceKind `json:"source"`

	// Timestamp is always set. TimestampText keeps the upstream value
	// verbatim ("unknown" when absent) and is used for identity.
	Timestamp     time.Time `json:"timestamp"`
	TimestampText string    `json:"-"`

	SourceIdentity string `json:"src_ip"`
	SessionID      string `json:"session,omitempty"`
	Kind           string `json:"kind"`
	UpstreamID     string `json:"eventid,omitempty"`

	// Payload holds the command text for session events and the raw
	// payload excerpt for network events.
	Payload  string `json:"payload,omitempty"`
	DstPorts []int  `json:"dst_ports,omitempty"`
	Flags    string `json:"flags,omitempty"`

	// RecordID discriminates network records sharing a timestamp.
	RecordID string `json:"record_id,omitempty"`

	Raw map[string]interface{} `json:"-"`
}

// HasPorts reports whether the event carries destination ports.
func (e *Event) HasPorts() bool {
	return e != nil && len(e.DstPorts) > 0
}

// PortStrings returns the destination ports as strings.
func (e *Event) PortStrings() []string {
	if e == nil || len(e.DstPorts) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.DstPorts))
	for _, p := range e.DstPorts {
		out = append(out, fmt.Sprintf("%d", p))
	}
	return out
}
