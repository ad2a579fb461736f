package transform

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"honeywatch/pkg/models"
)

// Upstream event ids emitted by the session-log sensor.
const (
	eventCommandInput  = "cowrie.command.input"
	eventCommandFailed = "cowrie.command.failed"
	eventLoginFailed   = "cowrie.login.failed"
	eventLoginSuccess  = "cowrie.login.success"
)

// Decode parses one raw JSON record. Records that are not JSON objects
// are rejected; everything else is left to Normalize.
func Decode(data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode record: not an object")
	}
	return raw, nil
}

// Normalize converts a raw sensor record into an Event. It never fails:
// missing attributes are replaced with placeholders and received is used
// when the record has no parseable timestamp.
func Normalize(raw map[string]interface{}, kind models.SourceKind, received time.Time) *models.Event {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	if kind == models.SourceNetwork {
		return normalizeNetwork(raw, received)
	}
	return normalizeSession(raw, received)
}

func normalizeSession(raw map[string]interface{}, received time.Time) *models.Event {
	event := &models.Event{
		Source:     models.SourceSessionLog,
		UpstreamID: getString(raw, "eventid"),
		SessionID:  getString(raw, "session"),
		Raw:        raw,
	}
	event.SourceIdentity = orUnknown(getString(raw, "src_ip"))
	event.TimestampText, event.Timestamp = timestampOf(raw, received, "timestamp", "time")

	switch event.UpstreamID {
	case eventCommandInput, eventCommandFailed:
		event.Kind = models.KindCommandInput
		event.Payload = getString(raw, "input")
	case eventLoginFailed:
		event.Kind = models.KindLoginFailed
	case eventLoginSuccess:
		event.Kind = models.KindLoginSuccess
	default:
		event.Kind = models.KindSession
		event.Payload = getString(raw, "input", "message")
	}
	return event
}

func normalizeNetwork(raw map[string]interface{}, received time.Time) *models.Event {
	event := &models.Event{
		Source:   models.SourceNetwork,
		Payload:  getString(raw, "payload", "raw"),
		Flags:    strings.ToUpper(getString(raw, "flags", "tcp_flags")),
		RecordID: getString(raw, "id", "seq", "packet_id"),
		Raw:      raw,
	}
	event.SourceIdentity = orUnknown(getString(raw, "src_ip", "src"))
	event.TimestampText, event.Timestamp = timestampOf(raw, received, "timestamp", "ts", "time")
	event.DstPorts = portsOf(raw)

	switch {
	case getBool(raw, "high_rate") || strings.EqualFold(getString(raw, "type"), "HIGH_RATE"):
		event.Kind = models.KindHighRate
	case event.Payload != "":
		event.Kind = models.KindPayload
	case strings.Contains(event.Flags, "S") && !strings.Contains(event.Flags, "A"):
		event.Kind = models.KindTCPSyn
	default:
		event.Kind = models.KindPacket
	}
	return event
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return models.Unknown
	}
	return v
}

func timestampOf(raw map[string]interface{}, received time.Time, paths ...string) (string, time.Time) {
	for _, path := range paths {
		v, ok := getPath(raw, path)
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) == "" {
				continue
			}
			if t, ok := parseTime(val); ok {
				return val, t
			}
			return val, received
		case float64:
			sec := int64(val)
			nsec := int64((val - float64(sec)) * 1e9)
			return strconv.FormatFloat(val, 'f', -1, 64), time.Unix(sec, nsec).UTC()
		}
	}
	return models.Unknown, received
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.000000",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func portsOf(raw map[string]interface{}) []int {
	seen := make(map[int]struct{})
	if p, ok := toPort(raw["dst_port"]); ok {
		seen[p] = struct{}{}
	}
	if list, ok := raw["dst_ports"].([]interface{}); ok {
		for _, item := range list {
			if p, ok := toPort(item); ok {
				seen[p] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func toPort(v interface{}) (int, bool) {
	var p int
	switch val := v.(type) {
	case float64:
		p = int(val)
	case int:
		p = val
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		p = n
	default:
		return 0, false
	}
	if p < 0 || p > 65535 {
		return 0, false
	}
	return p, true
}

func getBool(root map[string]interface{}, path string) bool {
	v, ok := getPath(root, path)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func getString(root map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			switch val := v.(type) {
			case string:
				return val
			case fmt.Stringer:
				return val.String()
			case int:
				return fmt.Sprintf("%d", val)
			case int64:
				return fmt.Sprintf("%d", val)
			case float64:
				if val == float64(int64(val)) {
					return fmt.Sprintf("%d", int64(val))
				}
				return fmt.Sprintf("%f", val)
			}
		}
	}
	return ""
}

func getPath(root map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = root
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}
