package report

import (
	"math"
	"sort"
	"strings"
	"time"

	"honeywatch/internal/enrich"
	"honeywatch/pkg/models"
)

// TimelineEntry is one alert placed on a source's kill-chain timeline.
type TimelineEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Tactic      string    `json:"tactic"`
	Technique   string    `json:"technique"`
	ID          string    `json:"id"`
	StageOrder  int       `json:"stage_order"`
	CampaignID  string    `json:"campaign_id,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Timeline maps a source identity to its alerts in time order.
type Timeline map[string][]TimelineEntry

// ChainScore captures how far one source progressed along the kill chain.
// RiskLog is the natural log of the product of alert scores; RiskProduct
// is its exponent, capped at math.MaxFloat64. Chain lists technique ids
// along the run with consecutive repeats collapsed.
type ChainScore struct {
	SequenceLength int      `json:"sequence_length"`
	RiskLog        float64  `json:"risk_log"`
	RiskProduct    float64  `json:"risk_product"`
	RiskSum        float64  `json:"risk_sum"`
	TacticCoverage int      `json:"tactic_coverage"`
	Chain          []string `json:"chain,omitempty"`
}

// Incident is the per-source triage record.
type Incident struct {
	SrcIP      string     `json:"src_ip"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
	AlertCount int        `json:"alert_count"`
	Campaigns  []string   `json:"campaigns,omitempty"`
	Score      ChainScore `json:"score"`
	Severity   string     `json:"severity"`
}

var severityWeight = map[string]float64{
	models.SeverityLow:    2,
	models.SeverityMedium: 3,
	models.SeverityHigh:   4,
}

// BuildTimeline groups alerts by source and sorts each group by time.
// Ties keep stage order so a same-second chain still reads forward.
func BuildTimeline(alerts []*models.Alert) Timeline {
	out := make(Timeline, 64)
	for _, a := range alerts {
		if a == nil {
			continue
		}
		src := a.SrcIP
		if src == "" {
			src = models.Unknown
		}
		out[src] = append(out[src], TimelineEntry{
			Timestamp:   a.Timestamp,
			Type:        a.Type,
			Severity:    a.Severity,
			Tactic:      a.Mitre.Tactic,
			Technique:   a.Mitre.Technique,
			ID:          a.Mitre.ID,
			StageOrder:  a.StageOrder,
			CampaignID:  a.CampaignID,
			Description: a.Description,
		})
	}
	for src := range out {
		entries := out[src]
		sort.SliceStable(entries, func(i, j int) bool {
			if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
				return entries[i].Timestamp.Before(entries[j].Timestamp)
			}
			return entries[i].StageOrder < entries[j].StageOrder
		})
	}
	return out
}

// ScoreChain finds the longest time-ordered run of alerts whose stage order
// never goes backwards. Ties on length prefer the higher risk. Alerts
// without a kill-chain stage are skipped.
//
// The best run ending at each stage is kept as entries are visited, so
// the cost is linear in the number of alerts times the number of stages.
func ScoreChain(entries []TimelineEntry) ChainScore {
	n := len(entries)
	if n == 0 {
		return ChainScore{}
	}

	type chainEnd struct {
		idx    int
		length int
		log    float64
	}
	better := func(a, b chainEnd) bool {
		return a.length > b.length || (a.length == b.length && a.log > b.log)
	}

	base := make([]float64, n)
	parent := make([]int, n)
	var stages []int
	ends := map[int]chainEnd{}
	best := chainEnd{idx: -1}

	for v, e := range entries {
		parent[v] = -1
		base[v] = singleAlertScore(e)
		if !ranked(e) {
			continue
		}
		weight := math.Log(base[v])
		cur := chainEnd{idx: v, length: 1, log: weight}
		for _, stage := range stages {
			if stage > e.StageOrder {
				break
			}
			prev := ends[stage]
			cand := chainEnd{idx: v, length: prev.length + 1, log: prev.log + weight}
			if better(cand, cur) {
				cur = cand
				parent[v] = prev.idx
			}
		}

		if prev, ok := ends[e.StageOrder]; !ok {
			stages = append(stages, e.StageOrder)
			sort.Ints(stages)
			ends[e.StageOrder] = cur
		} else if better(cur, prev) {
			ends[e.StageOrder] = cur
		}
		if best.idx == -1 || better(cur, best) {
			best = cur
		}
	}
	if best.idx == -1 {
		return ChainScore{}
	}

	path := make([]int, 0, best.length)
	for cur := best.idx; cur >= 0; cur = parent[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	tactics := map[int]struct{}{}
	score := ChainScore{SequenceLength: len(path), RiskLog: best.log, RiskProduct: boundedExp(best.log)}
	for _, idx := range path {
		tactics[entries[idx].StageOrder] = struct{}{}
		score.RiskSum += base[idx]
		id := entries[idx].ID
		if k := len(score.Chain); k == 0 || score.Chain[k-1] != id {
			score.Chain = append(score.Chain, id)
		}
	}
	score.TacticCoverage = len(tactics)
	return score
}

func boundedExp(x float64) float64 {
	if x >= math.Log(math.MaxFloat64) {
		return math.MaxFloat64
	}
	return math.Exp(x)
}

// BuildIncidents scores every source on the timeline and ranks them by
// chain length, then risk.
func BuildIncidents(tl Timeline) []Incident {
	out := make([]Incident, 0, len(tl))
	for src, entries := range tl {
		if len(entries) == 0 {
			continue
		}
		score := ScoreChain(entries)
		inc := Incident{
			SrcIP:      src,
			FirstSeen:  entries[0].Timestamp,
			LastSeen:   entries[len(entries)-1].Timestamp,
			AlertCount: len(entries),
			Campaigns:  campaignsOf(entries),
			Score:      score,
			Severity:   incidentSeverity(score.SequenceLength, score.RiskProduct),
		}
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score.SequenceLength != out[j].Score.SequenceLength {
			return out[i].Score.SequenceLength > out[j].Score.SequenceLength
		}
		if out[i].Score.RiskLog != out[j].Score.RiskLog {
			return out[i].Score.RiskLog > out[j].Score.RiskLog
		}
		return out[i].SrcIP < out[j].SrcIP
	})
	return out
}

func ranked(e TimelineEntry) bool {
	return e.StageOrder > 0 && e.StageOrder != enrich.UnorderedStage
}

// singleAlertScore is 2*severity + likelihood; likelihood drops by one
// when the alert has no technique id.
func singleAlertScore(e TimelineEntry) float64 {
	sev := severityWeight[strings.ToUpper(strings.TrimSpace(e.Severity))]
	if sev <= 0 {
		sev = 3
	}
	likelihood := sev
	if id := strings.TrimSpace(e.ID); id == "" || id == "N/A" {
		likelihood = math.Max(1, sev-1)
	}
	return 2*sev + likelihood
}

func incidentSeverity(seq int, riskProduct float64) string {
	if seq >= 4 || riskProduct >= 10000 {
		return "critical"
	}
	if seq >= 3 || riskProduct >= 1000 {
		return "high"
	}
	if seq >= 2 || riskProduct >= 100 {
		return "medium"
	}
	return "low"
}

func campaignsOf(entries []TimelineEntry) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range entries {
		if e.CampaignID == "" || e.CampaignID == models.Unknown {
			continue
		}
		if _, ok := seen[e.CampaignID]; ok {
			continue
		}
		seen[e.CampaignID] = struct{}{}
		out = append(out, e.CampaignID)
	}
	sort.Strings(out)
	return out
}
