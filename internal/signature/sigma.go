package signature

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"honeywatch/pkg/models"
)

var (
	techniqueTagRegex = regexp.MustCompile(`^attack\.t\d{4}(?:\.\d{3})?$`)
	nonWordRegex      = regexp.MustCompile(`[^A-Z0-9]+`)
)

const categoryTagPrefix = "honeywatch.category."

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles        int
	Loaded            int
	SkippedComplex    int
	SkippedDatasource int
	SkippedInvalid    int
}

type compiledSigmaRule struct {
	rule     sigma.Rule
	eval     *sigmaevaluator.RuleEvaluator
	category string
	severity string
	hint     *models.Taxonomy
}

// SigmaEngine evaluates single-event Sigma rules against honeypot events.
type SigmaEngine struct {
	rules []compiledSigmaRule
	ctx   context.Context
}

// NewSigmaEngine loads Sigma rules from a file or directory. Files are
// evaluated in walk order, which is lexical.
func NewSigmaEngine(path string) (*SigmaEngine, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve rule path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule path: %w", err)
	}

	files := make([]string, 0, 64)
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !entry.IsDir() && isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk rule directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	compiled := make([]compiledSigmaRule, 0, len(files))
	for _, ruleFile := range files {
		rule, err := parseSigmaRuleFile(ruleFile)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		if !isHoneypotCompatible(rule) {
			stats.SkippedDatasource++
			continue
		}
		if !isSimpleSingleEventRule(rule) {
			stats.SkippedComplex++
			continue
		}

		compiled = append(compiled, compiledSigmaRule{
			rule:     rule,
			eval:     sigmaevaluator.ForRule(rule),
			category: categoryFromRule(rule),
			severity: normalizeSeverity(rule.Level),
			hint:     hintFromTags(rule),
		})
		stats.Loaded++
	}

	return &SigmaEngine{rules: compiled, ctx: context.Background()}, stats, nil
}

// Len returns the number of compiled rules.
func (e *SigmaEngine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Match returns a finding for the first matching rule.
func (e *SigmaEngine) Match(event *models.Event) *models.Finding {
	if e == nil || event == nil || len(e.rules) == 0 {
		return nil
	}

	doc := sigmaEventFrom(event)
	for _, r := range e.rules {
		res, err := r.eval.Matches(e.ctx, doc)
		if err != nil || !res.Match {
			continue
		}
		return &models.Finding{
			Category:    r.category,
			Severity:    r.severity,
			Detector:    models.DetectorSignature,
			Description: fmt.Sprintf("sigma rule matched: %s", strings.TrimSpace(r.rule.Title)),
			Evidence: models.Evidence{
				Pattern: ruleID(r.rule),
				Command: event.Payload,
			},
			Hint: r.hint,
		}
	}
	return nil
}

func parseSigmaRuleFile(path string) (sigma.Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("read sigma rule %s: %w", path, err)
	}
	rule, err := sigma.ParseRule(raw)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("parse sigma rule %s: %w", path, err)
	}
	return rule, nil
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

func isHoneypotCompatible(rule sigma.Rule) bool {
	product := strings.ToLower(strings.TrimSpace(rule.Logsource.Product))
	service := strings.ToLower(strings.TrimSpace(rule.Logsource.Service))

	switch product {
	case "", "linux", "honeypot":
	default:
		return false
	}
	switch service {
	case "", "cowrie", "ssh", "sshd", "network":
	default:
		return false
	}
	return true
}

func isSimpleSingleEventRule(rule sigma.Rule) bool {
	if rule.Detection.Timeframe > 0 {
		return false
	}
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil || !isSimpleSearchExpression(cond.Search) {
			return false
		}
	}
	for _, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 || len(search.EventMatchers) == 0 {
			return false
		}
	}
	return true
}

func isSimpleSearchExpression(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.And:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Or:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Not:
		return isSimpleSearchExpression(e.Expr)
	default:
		return false
	}
}

func sigmaEventFrom(event *models.Event) map[string]interface{} {
	buf := make(map[string]interface{}, len(event.Raw)+8)
	for k, v := range event.Raw {
		buf[k] = v
	}
	buf["kind"] = event.Kind
	buf["src_ip"] = event.SourceIdentity
	if event.UpstreamID != "" {
		buf["eventid"] = event.UpstreamID
	}
	if event.SessionID != "" {
		buf["session"] = event.SessionID
	}
	if event.Payload != "" {
		buf["payload"] = event.Payload
		if event.Source == models.SourceSessionLog {
			buf["input"] = event.Payload
		}
	}
	return buf
}

func ruleID(rule sigma.Rule) string {
	if id := strings.TrimSpace(rule.ID); id != "" {
		return id
	}
	return strings.TrimSpace(rule.Title)
}

func categoryFromRule(rule sigma.Rule) string {
	for _, raw := range rule.Tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(tag, categoryTagPrefix) {
			return strings.ToUpper(strings.TrimPrefix(tag, categoryTagPrefix))
		}
	}
	name := strings.Trim(nonWordRegex.ReplaceAllString(strings.ToUpper(rule.Title), "_"), "_")
	if name == "" {
		name = "RULE"
	}
	return "SIGMA_" + name
}

// hintFromTags turns attack.* tags into a taxonomy hint.
func hintFromTags(rule sigma.Rule) *models.Taxonomy {
	var tactic, technique string
	for _, raw := range rule.Tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if !strings.HasPrefix(tag, "attack.") {
			continue
		}
		suffix := strings.TrimPrefix(tag, "attack.")
		if technique == "" && techniqueTagRegex.MatchString(tag) {
			technique = strings.ToUpper(suffix)
			continue
		}
		if tactic == "" && !strings.HasPrefix(suffix, "t") {
			tactic = tacticTitle(suffix)
		}
	}
	if tactic == "" && technique == "" {
		return nil
	}
	hint := &models.Taxonomy{Tactic: "Unknown", Technique: strings.TrimSpace(rule.Title), ID: "N/A"}
	if tactic != "" {
		hint.Tactic = tactic
	}
	if technique != "" {
		hint.ID = technique
	}
	return hint
}

// tacticTitle converts "command_and_control" to "Command and Control".
func tacticTitle(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		if w == "and" && i > 0 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
