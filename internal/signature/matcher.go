package signature

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"honeywatch/pkg/models"
)

// Signature categories.
const (
	CategoryPayloadDownload = "PAYLOAD_DOWNLOAD"
	CategoryReconnaissance  = "RECONNAISSANCE"
	CategoryPrivEsc         = "PRIVILEGE_ESCALATION"
	CategoryDiscovery       = "DISCOVERY"
	CategoryCollection      = "COLLECTION"
	CategoryDefenseEvasion  = "DEFENSE_EVASION"
)

// Rule is one substring signature. Rules are evaluated in declaration
// order and the first match wins, even if a later pattern also matches.
type Rule struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
	Severity string `yaml:"severity"`
}

// DefaultRules is the built-in signature table.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "wget", Category: CategoryPayloadDownload, Severity: models.SeverityHigh},
		{Pattern: "curl", Category: CategoryPayloadDownload, Severity: models.SeverityHigh},
		{Pattern: "tftp", Category: CategoryPayloadDownload, Severity: models.SeverityHigh},
		{Pattern: "nmap", Category: CategoryReconnaissance, Severity: models.SeverityMedium},
		{Pattern: "whoami", Category: CategoryReconnaissance, Severity: models.SeverityMedium},
		{Pattern: "uname", Category: CategoryReconnaissance, Severity: models.SeverityMedium},
		{Pattern: "cat /etc/passwd", Category: CategoryReconnaissance, Severity: models.SeverityMedium},
		{Pattern: "sudo", Category: CategoryPrivEsc, Severity: models.SeverityHigh},
		{Pattern: "su ", Category: CategoryPrivEsc, Severity: models.SeverityHigh},
		{Pattern: "ifconfig", Category: CategoryDiscovery, Severity: models.SeverityLow},
		{Pattern: "netstat", Category: CategoryDiscovery, Severity: models.SeverityLow},
		{Pattern: "ip addr", Category: CategoryDiscovery, Severity: models.SeverityLow},
		{Pattern: "ps aux", Category: CategoryDiscovery, Severity: models.SeverityLow},
		{Pattern: "cat /proc/cpuinfo", Category: CategoryDiscovery, Severity: models.SeverityLow},
		{Pattern: "tar czf", Category: CategoryCollection, Severity: models.SeverityMedium},
		{Pattern: "zip -r", Category: CategoryCollection, Severity: models.SeverityMedium},
		{Pattern: ".bash_history", Category: CategoryCollection, Severity: models.SeverityMedium},
		{Pattern: "history -c", Category: CategoryDefenseEvasion, Severity: models.SeverityHigh},
		{Pattern: "unset histfile", Category: CategoryDefenseEvasion, Severity: models.SeverityHigh},
		{Pattern: "rm -rf /var/log", Category: CategoryDefenseEvasion, Severity: models.SeverityHigh},
	}
}

type tableFile struct {
	Signatures []Rule `yaml:"signatures"`
}

// LoadRules reads an ordered signature table from YAML.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signature file: %w", err)
	}
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse signature file: %w", err)
	}

	out := make([]Rule, 0, len(tf.Signatures))
	for i, r := range tf.Signatures {
		r.Pattern = strings.ToLower(r.Pattern)
		r.Category = strings.ToUpper(strings.TrimSpace(r.Category))
		if strings.TrimSpace(r.Pattern) == "" || r.Category == "" {
			return nil, fmt.Errorf("signature %d: pattern and category are required", i+1)
		}
		r.Severity = normalizeSeverity(r.Severity)
		out = append(out, r)
	}
	return out, nil
}

// Matcher evaluates the signature table, then any Sigma rules.
type Matcher struct {
	rules []Rule
	sigma *SigmaEngine
}

// NewMatcher creates a matcher. A nil rule slice selects DefaultRules.
func NewMatcher(rules []Rule, sigma *SigmaEngine) *Matcher {
	if rules == nil {
		rules = DefaultRules()
	}
	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		r.Pattern = strings.ToLower(r.Pattern)
		compiled[i] = r
	}
	return &Matcher{rules: compiled, sigma: sigma}
}

// Rules returns the active table in evaluation order.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Match returns the finding for the first matching rule, or nil.
func (m *Matcher) Match(event *models.Event) *models.Finding {
	if event == nil || !Inspectable(event) || event.Payload == "" {
		return nil
	}

	text := strings.ToLower(event.Payload)
	for _, r := range m.rules {
		if r.Pattern == "" || !strings.Contains(text, r.Pattern) {
			continue
		}
		return &models.Finding{
			Category:    r.Category,
			Severity:    r.Severity,
			Detector:    models.DetectorSignature,
			Description: fmt.Sprintf("signature matched: %s", r.Pattern),
			Evidence: models.Evidence{
				Pattern: r.Pattern,
				Command: event.Payload,
			},
		}
	}

	if m.sigma != nil {
		return m.sigma.Match(event)
	}
	return nil
}

// Inspectable reports whether the event carries content worth matching.
func Inspectable(event *models.Event) bool {
	return event.Kind == models.KindCommandInput || event.Kind == models.KindPayload
}

func normalizeSeverity(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "critical", "high":
		return models.SeverityHigh
	case "medium", "":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
