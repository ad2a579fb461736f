package models

// Severity levels.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// Detector families.
const (
	DetectorSignature = "signature"
	DetectorAnomaly   = "anomaly"
)

// Finding is an unenriched detection result from one detector.
type Finding struct {
	Category    string
	Severity    string
	Detector    string
	Description string
	Evidence    Evidence

	// Hint carries taxonomy from rules that declare their own ATT&CK tags.
	Hint *Taxonomy
}

// Evidence is the detector-specific proof attached to a finding.
type Evidence struct {
	Pattern string
	Command string
	Count   int
	Ports   []int
}
