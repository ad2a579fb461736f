package enrich

import "honeywatch/pkg/models"

// UnknownTaxonomy is returned for unmapped categories.
var UnknownTaxonomy = models.Taxonomy{Tactic: "Unknown", Technique: "Unknown", ID: "N/A"}

// UnorderedStage is the stage rank of tactics outside the kill chain.
const UnorderedStage = 99

var defaultMapping = map[string]models.Taxonomy{
	"PORT_SCAN":            {Tactic: "Reconnaissance", Technique: "Network Service Discovery", ID: "T1046"},
	"BRUTE_FORCE":          {Tactic: "Credential Access", Technique: "Brute Force", ID: "T1110"},
	"PAYLOAD_DOWNLOAD":     {Tactic: "Command and Control", Technique: "Ingress Tool Transfer", ID: "T1105"},
	"RECONNAISSANCE":       {Tactic: "Discovery", Technique: "System Information Discovery", ID: "T1082"},
	"PRIVILEGE_ESCALATION": {Tactic: "Privilege Escalation", Technique: "Abuse Elevation Control Mechanism", ID: "T1548"},
	"PRIV_ESC":             {Tactic: "Privilege Escalation", Technique: "Abuse Elevation Control Mechanism", ID: "T1548"},
	"DISCOVERY":            {Tactic: "Discovery", Technique: "System Network Configuration Discovery", ID: "T1016"},
	"COLLECTION":           {Tactic: "Collection", Technique: "Archive Collected Data", ID: "T1560"},
	"DEFENSE_EVASION":      {Tactic: "Defense Evasion", Technique: "Indicator Removal", ID: "T1070"},
	"COMMAND_FLOOD":        {Tactic: "Execution", Technique: "Command and Scripting Interpreter", ID: "T1059"},
	"HIGH_RATE":            {Tactic: "Impact", Technique: "Network Denial of Service", ID: "T1498"},
}

var stageOrder = map[string]int{
	"Reconnaissance":      1,
	"Credential Access":   2,
	"Discovery":           3,
	"Collection":          4,
	"Command and Control": 5,
	"Defense Evasion":     6,
}

// Mapping is an immutable category to taxonomy lookup.
type Mapping struct {
	entries map[string]models.Taxonomy
}

// DefaultMapping returns the built-in lookup.
func DefaultMapping() *Mapping {
	return NewMapping(defaultMapping)
}

// NewMapping copies entries into a new lookup.
func NewMapping(entries map[string]models.Taxonomy) *Mapping {
	m := &Mapping{entries: make(map[string]models.Taxonomy, len(entries))}
	for k, v := range entries {
		m.entries[k] = v
	}
	return m
}

// Lookup returns the taxonomy for category and whether it was mapped.
func (m *Mapping) Lookup(category string) (models.Taxonomy, bool) {
	if m == nil {
		return UnknownTaxonomy, false
	}
	t, ok := m.entries[category]
	if !ok {
		return UnknownTaxonomy, false
	}
	return t, true
}

// StageOrder ranks a tactic in the kill chain.
func StageOrder(tactic string) int {
	if n, ok := stageOrder[tactic]; ok {
		return n
	}
	return UnorderedStage
}
