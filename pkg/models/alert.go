package models

import "time"

// Taxonomy is an ATT&CK tactic/technique pair.
type Taxonomy struct {
	Tactic    string `json:"tactic"`
	Technique string `json:"technique"`
	ID        string `json:"id"`
}

// Alert is the persisted, enriched unit. The JSON layout is read by the
// dashboard and report collaborators; field renames are breaking.
type Alert struct {
	Timestamp   time.Time              `json:"timestamp"`
	Type        string                 `json:"type"`
	Severity    string                 `json:"severity"`
	Description string                 `json:"description,omitempty"`
	Detector    string                 `json:"detector,omitempty"`
	Source      SourceKind             `json:"source"`
	EventKind   string                 `json:"event_kind,omitempty"`
	SrcIP       string                 `json:"src_ip"`
	Session     *string                `json:"session"`
	CampaignID  string                 `json:"campaign_id"`
	StageOrder  int                    `json:"stage_order"`
	Mitre       Taxonomy               `json:"mitre"`
	Command     string                 `json:"command,omitempty"`
	Pattern     string                 `json:"pattern,omitempty"`
	Ports       []int                  `json:"ports,omitempty"`
	Attempts    int                    `json:"attempts,omitempty"`
	Count       int                    `json:"count,omitempty"`
	RawEvent    map[string]interface{} `json:"raw_event,omitempty"`
}
