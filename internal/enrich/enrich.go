package enrich

import (
	"regexp"

	"honeywatch/pkg/models"
)

// DefaultCampaignMarker is the literal that precedes a campaign id.
const DefaultCampaignMarker = "CAMPAIGN"

// Enricher turns findings into alerts.
type Enricher struct {
	mapping  *Mapping
	campaign *regexp.Regexp
}

// New creates an enricher. An empty marker selects DefaultCampaignMarker.
func New(mapping *Mapping, marker string) *Enricher {
	if mapping == nil {
		mapping = DefaultMapping()
	}
	if marker == "" {
		marker = DefaultCampaignMarker
	}
	return &Enricher{
		mapping:  mapping,
		campaign: regexp.MustCompile(regexp.QuoteMeta(marker) + `:([A-Za-z0-9_.\-]+)`),
	}
}

// Enrich builds the alert for one finding. It never fails.
func (e *Enricher) Enrich(f *models.Finding, ev *models.Event) *models.Alert {
	tax, ok := e.mapping.Lookup(f.Category)
	if !ok && f.Hint != nil {
		tax = *f.Hint
	}

	alert := &models.Alert{
		Timestamp:   ev.Timestamp,
		Type:        f.Category,
		Severity:    f.Severity,
		Description: f.Description,
		Detector:    f.Detector,
		Source:      ev.Source,
		EventKind:   ev.Kind,
		SrcIP:       ev.SourceIdentity,
		CampaignID:  e.CampaignID(ev.Payload),
		StageOrder:  StageOrder(tax.Tactic),
		Mitre:       tax,
		Command:     f.Evidence.Command,
		Pattern:     f.Evidence.Pattern,
		Ports:       f.Evidence.Ports,
		RawEvent:    ev.Raw,
	}
	if ev.SessionID != "" {
		s := ev.SessionID
		alert.Session = &s
	}
	if f.Evidence.Count > 0 {
		if f.Category == "BRUTE_FORCE" {
			alert.Attempts = f.Evidence.Count
		} else {
			alert.Count = f.Evidence.Count
		}
	}
	return alert
}

// CampaignID extracts the operator campaign tag from text.
func (e *Enricher) CampaignID(text string) string {
	if text == "" {
		return models.Unknown
	}
	m := e.campaign.FindStringSubmatch(text)
	if len(m) < 2 {
		return models.Unknown
	}
	return m[1]
}
