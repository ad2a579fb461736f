package report

import (
	"sort"
	"strings"

	"honeywatch/pkg/models"
)

// TechniqueCount aggregates the alerts mapped to one technique id.
type TechniqueCount struct {
	Technique  string         `json:"technique"`
	Count      int            `json:"count"`
	Severities map[string]int `json:"severities"`
}

// TaxonomySummary is tactic -> technique id -> counts.
type TaxonomySummary map[string]map[string]*TechniqueCount

// BuildTaxonomySummary counts alerts per tactic and technique id. Alerts
// without a tactic are grouped under "Unknown".
func BuildTaxonomySummary(alerts []*models.Alert) TaxonomySummary {
	out := make(TaxonomySummary, 16)
	for _, a := range alerts {
		if a == nil {
			continue
		}
		tactic := strings.TrimSpace(a.Mitre.Tactic)
		if tactic == "" {
			tactic = "Unknown"
		}
		id := strings.TrimSpace(a.Mitre.ID)
		if id == "" {
			id = "N/A"
		}
		byID := out[tactic]
		if byID == nil {
			byID = make(map[string]*TechniqueCount, 4)
			out[tactic] = byID
		}
		tc := byID[id]
		if tc == nil {
			tc = &TechniqueCount{Technique: a.Mitre.Technique, Severities: map[string]int{}}
			byID[id] = tc
		}
		tc.Count++
		sev := a.Severity
		if sev == "" {
			sev = "UNKNOWN"
		}
		tc.Severities[sev]++
	}
	return out
}

// TopTechniques returns technique ids ordered by alert count, highest first.
func (s TaxonomySummary) TopTechniques(limit int) []string {
	counts := map[string]int{}
	for _, byID := range s {
		for id, tc := range byID {
			counts[id] += tc.Count
		}
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
