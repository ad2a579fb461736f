package anomaly

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"honeywatch/pkg/models"
)

// CounterKind selects one sliding-window counter.
type CounterKind string

const (
	FailedLogin      CounterKind = "failed-login"
	CommandRate      CounterKind = "command-rate"
	DistinctDstPorts CounterKind = "distinct-dst-ports"
	PacketRate       CounterKind = "packet-rate"
)

// Anomaly categories.
const (
	CategoryBruteForce   = "BRUTE_FORCE"
	CategoryCommandFlood = "COMMAND_FLOOD"
	CategoryPortScan     = "PORT_SCAN"
	CategoryHighRate     = "HIGH_RATE"
)

// Limit is a window length and the count that triggers a finding.
type Limit struct {
	Window    time.Duration
	Threshold int
}

// Config holds one limit per counter kind.
type Config struct {
	FailedLogin      Limit
	CommandRate      Limit
	DistinctDstPorts Limit
	PacketRate       Limit
}

// DefaultConfig returns the stock windows and thresholds.
func DefaultConfig() Config {
	return Config{
		FailedLogin:      Limit{Window: 60 * time.Second, Threshold: 5},
		CommandRate:      Limit{Window: 60 * time.Second, Threshold: 20},
		DistinctDstPorts: Limit{Window: 10 * time.Second, Threshold: 10},
		PacketRate:       Limit{Window: 10 * time.Second, Threshold: 120},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	fill := func(l *Limit, def Limit) {
		if l.Window <= 0 {
			l.Window = def.Window
		}
		if l.Threshold <= 0 {
			l.Threshold = def.Threshold
		}
	}
	fill(&c.FailedLogin, d.FailedLogin)
	fill(&c.CommandRate, d.CommandRate)
	fill(&c.DistinctDstPorts, d.DistinctDstPorts)
	fill(&c.PacketRate, d.PacketRate)
	return c
}

func (c Config) limit(kind CounterKind) (Limit, bool) {
	switch kind {
	case FailedLogin:
		return c.FailedLogin, true
	case CommandRate:
		return c.CommandRate, true
	case DistinctDstPorts:
		return c.DistinctDstPorts, true
	case PacketRate:
		return c.PacketRate, true
	default:
		return Limit{}, false
	}
}

type sample struct {
	at  time.Time
	aux string
}

// sourceState holds every window of one source. dead is set once Prune
// has unlinked it from the tracker.
type sourceState struct {
	mu      sync.Mutex
	windows map[CounterKind][]sample
	dead    bool
}

// Tracker keeps per-source sliding windows. Observations for one source
// serialize on that source's lock; different sources proceed in parallel.
type Tracker struct {
	mu      sync.RWMutex
	cfg     Config
	sources map[string]*sourceState
}

// NewTracker creates a tracker. Zero limits take the defaults.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:     cfg.withDefaults(),
		sources: make(map[string]*sourceState),
	}
}

// Config returns the effective limits.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Observe records one sample per aux value (or a single sample when none
// is given), evicts samples older than the window and returns a finding
// whenever the counter is at or above its threshold. Findings repeat on
// every observation while the level holds.
func (t *Tracker) Observe(identity string, kind CounterKind, now time.Time, aux ...string) *models.Finding {
	limit, ok := t.cfg.limit(kind)
	if !ok {
		return nil
	}
	if identity == "" {
		identity = models.Unknown
	}

	for {
		state := t.state(identity)
		state.mu.Lock()
		if state.dead {
			state.mu.Unlock()
			continue
		}

		win := state.windows[kind]
		if len(aux) == 0 {
			win = append(win, sample{at: now})
		} else {
			for _, a := range aux {
				win = append(win, sample{at: now, aux: a})
			}
		}
		win = evict(win, now, limit.Window)
		state.windows[kind] = win

		var finding *models.Finding
		if kind == DistinctDstPorts {
			values := distinct(win)
			if len(values) >= limit.Threshold {
				finding = buildFinding(kind, len(values), values)
			}
		} else if len(win) >= limit.Threshold {
			finding = buildFinding(kind, len(win), nil)
		}
		state.mu.Unlock()
		return finding
	}
}

// Prune drops sources whose windows have all expired. It returns the
// number of sources removed.
func (t *Tracker) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, state := range t.sources {
		state.mu.Lock()
		empty := true
		for kind, win := range state.windows {
			limit, _ := t.cfg.limit(kind)
			win = evict(win, now, limit.Window)
			if len(win) == 0 {
				delete(state.windows, kind)
				continue
			}
			state.windows[kind] = win
			empty = false
		}
		if empty {
			state.dead = true
			delete(t.sources, id)
			removed++
		}
		state.mu.Unlock()
	}
	return removed
}

// Sources returns the number of tracked sources.
func (t *Tracker) Sources() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sources)
}

func (t *Tracker) state(identity string) *sourceState {
	t.mu.RLock()
	state := t.sources[identity]
	t.mu.RUnlock()
	if state != nil {
		return state
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if state = t.sources[identity]; state == nil {
		state = &sourceState{windows: make(map[CounterKind][]sample)}
		t.sources[identity] = state
	}
	return state
}

// evict keeps samples with now-at <= window. Samples are not assumed to
// be in order, so the whole slice is filtered in place.
func evict(win []sample, now time.Time, window time.Duration) []sample {
	kept := win[:0]
	for _, s := range win {
		if now.Sub(s.at) <= window {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(win); i++ {
		win[i] = sample{}
	}
	return kept
}

func distinct(win []sample) []string {
	set := make(map[string]struct{}, len(win))
	for _, s := range win {
		if s.aux == "" {
			continue
		}
		set[s.aux] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		a, errA := strconv.Atoi(out[i])
		b, errB := strconv.Atoi(out[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}

func buildFinding(kind CounterKind, count int, values []string) *models.Finding {
	f := &models.Finding{
		Detector: models.DetectorAnomaly,
		Evidence: models.Evidence{Count: count},
	}
	switch kind {
	case FailedLogin:
		f.Category = CategoryBruteForce
		f.Severity = models.SeverityHigh
		f.Description = fmt.Sprintf("SSH brute force detected: %d failed logins", count)
	case CommandRate:
		f.Category = CategoryCommandFlood
		f.Severity = models.SeverityMedium
		f.Description = fmt.Sprintf("command flood detected: %d commands", count)
	case DistinctDstPorts:
		f.Category = CategoryPortScan
		f.Severity = models.SeverityMedium
		f.Description = fmt.Sprintf("port scan detected: %d distinct ports", count)
		for _, v := range values {
			if p, err := strconv.Atoi(v); err == nil {
				f.Evidence.Ports = append(f.Evidence.Ports, p)
			}
		}
	case PacketRate:
		f.Category = CategoryHighRate
		f.Severity = models.SeverityMedium
		f.Description = fmt.Sprintf("high packet rate detected: %d packets", count)
	}
	return f
}
