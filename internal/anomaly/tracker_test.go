package anomaly

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestBruteForceFromFifthAttempt(t *testing.T) {
	tr := NewTracker(Config{})
	for i := 1; i <= 6; i++ {
		f := tr.Observe("10.0.0.9", FailedLogin, base.Add(time.Duration(i)*time.Second))
		if i < 5 {
			if f != nil {
				t.Fatalf("attempt %d must not alert: %+v", i, f)
			}
			continue
		}
		if f == nil {
			t.Fatalf("attempt %d must alert", i)
		}
		if f.Category != CategoryBruteForce || f.Evidence.Count != i {
			t.Fatalf("attempt %d: unexpected finding %+v", i, f)
		}
	}
}

func TestWindowExcludesExpiredSamples(t *testing.T) {
	tr := NewTracker(Config{FailedLogin: Limit{Window: 60 * time.Second, Threshold: 1}})
	tr.Observe("10.0.0.9", FailedLogin, base)
	f := tr.Observe("10.0.0.9", FailedLogin, base.Add(70*time.Second))
	if f == nil || f.Evidence.Count != 1 {
		t.Fatalf("expected count 1 after eviction, got %+v", f)
	}
}

func TestWindowBoundaryIsInclusive(t *testing.T) {
	tr := NewTracker(Config{FailedLogin: Limit{Window: 60 * time.Second, Threshold: 2}})
	tr.Observe("a", FailedLogin, base)
	if f := tr.Observe("a", FailedLogin, base.Add(60*time.Second)); f == nil || f.Evidence.Count != 2 {
		t.Fatalf("sample exactly one window old must be kept, got %+v", f)
	}
}

func TestPortScanCountsDistinctPorts(t *testing.T) {
	tr := NewTracker(Config{})
	for i := 0; i < 15; i++ {
		if f := tr.Observe("10.0.0.7", DistinctDstPorts, base.Add(time.Duration(i)*100*time.Millisecond), "22"); f != nil {
			t.Fatalf("same port must never trigger: %+v", f)
		}
	}

	tr = NewTracker(Config{})
	var f = tr.Observe("10.0.0.7", DistinctDstPorts, base, "1")
	for port := 2; port <= 10; port++ {
		f = tr.Observe("10.0.0.7", DistinctDstPorts, base.Add(time.Duration(port)*500*time.Millisecond), strconv.Itoa(port))
	}
	if f == nil || f.Category != CategoryPortScan {
		t.Fatalf("expected port scan, got %+v", f)
	}
	if len(f.Evidence.Ports) != 10 || f.Evidence.Ports[0] != 1 || f.Evidence.Ports[9] != 10 {
		t.Fatalf("unexpected ports %v", f.Evidence.Ports)
	}
}

func TestPortScanFromSingleObservationWithManyPorts(t *testing.T) {
	tr := NewTracker(Config{})
	ports := make([]string, 0, 10)
	for p := 1000; p < 1010; p++ {
		ports = append(ports, strconv.Itoa(p))
	}
	f := tr.Observe("10.0.0.7", DistinctDstPorts, base, ports...)
	if f == nil || len(f.Evidence.Ports) != 10 {
		t.Fatalf("expected port scan with 10 ports, got %+v", f)
	}
}

func TestPortScanWindowIsTenSeconds(t *testing.T) {
	tr := NewTracker(Config{})
	for p := 1; p <= 9; p++ {
		tr.Observe("s", DistinctDstPorts, base, strconv.Itoa(p))
	}
	if f := tr.Observe("s", DistinctDstPorts, base.Add(11*time.Second), "10"); f != nil {
		t.Fatalf("expired ports must not count: %+v", f)
	}
}

func TestLevelTriggeredCommandFloodAndHighRate(t *testing.T) {
	tr := NewTracker(Config{CommandRate: Limit{Window: time.Minute, Threshold: 3}, PacketRate: Limit{Window: time.Second, Threshold: 2}})
	hits := 0
	for i := 0; i < 5; i++ {
		if f := tr.Observe("x", CommandRate, base); f != nil {
			if f.Category != CategoryCommandFlood {
				t.Fatalf("unexpected category %s", f.Category)
			}
			hits++
		}
	}
	if hits != 3 {
		t.Fatalf("expected a finding for each of the last 3 observations, got %d", hits)
	}

	tr.Observe("x", PacketRate, base)
	if f := tr.Observe("x", PacketRate, base); f == nil || f.Category != CategoryHighRate || f.Evidence.Count != 2 {
		t.Fatalf("unexpected high rate finding %+v", f)
	}
}

func TestSourcesAreIndependent(t *testing.T) {
	tr := NewTracker(Config{FailedLogin: Limit{Window: time.Minute, Threshold: 2}})
	tr.Observe("a", FailedLogin, base)
	if f := tr.Observe("b", FailedLogin, base); f != nil {
		t.Fatalf("b has a single sample: %+v", f)
	}
}

func TestUnknownKindIsIgnored(t *testing.T) {
	tr := NewTracker(Config{})
	if f := tr.Observe("a", CounterKind("bogus"), base); f != nil {
		t.Fatalf("unexpected finding %+v", f)
	}
	if tr.Sources() != 0 {
		t.Fatalf("unknown kinds must not allocate state")
	}
}

func TestPruneDropsIdleSources(t *testing.T) {
	tr := NewTracker(Config{})
	tr.Observe("old", FailedLogin, base)
	tr.Observe("new", PacketRate, base.Add(55*time.Second))

	if n := tr.Prune(base.Add(61 * time.Second)); n != 1 {
		t.Fatalf("expected one pruned source, got %d", n)
	}
	if tr.Sources() != 1 {
		t.Fatalf("expected one remaining source, got %d", tr.Sources())
	}

	// A pruned source starts from an empty window.
	tr2 := NewTracker(Config{FailedLogin: Limit{Window: time.Minute, Threshold: 1}})
	tr2.Observe("old", FailedLogin, base)
	tr2.Prune(base.Add(2 * time.Minute))
	if f := tr2.Observe("old", FailedLogin, base.Add(2*time.Minute)); f == nil || f.Evidence.Count != 1 {
		t.Fatalf("unexpected finding after prune %+v", f)
	}
}

func TestConcurrentObservationsKeepEverySample(t *testing.T) {
	tr := NewTracker(Config{FailedLogin: Limit{Window: time.Hour, Threshold: 1}})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Observe("10.0.0.1", FailedLogin, base)
		}()
	}
	wg.Wait()
	if f := tr.Observe("10.0.0.1", FailedLogin, base); f == nil || f.Evidence.Count != 51 {
		t.Fatalf("expected 51 samples, got %+v", f)
	}
}
