package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"honeywatch/pkg/models"
)

func TestSetDropsRepeatedKey(t *testing.T) {
	s := NewSet(10)
	if s.Seen("a") {
		t.Fatalf("first observation must not be a duplicate")
	}
	if !s.Seen("a") {
		t.Fatalf("second observation must be a duplicate")
	}
}

func TestSetClearsWholesaleOnOverflow(t *testing.T) {
	s := NewSet(3)
	for _, k := range []string{"a", "b", "c"} {
		s.Seen(k)
	}
	if s.Seen("d") {
		t.Fatalf("d is new")
	}
	if s.Resets() != 1 || s.Len() != 1 {
		t.Fatalf("expected one reset leaving only d, got resets=%d len=%d", s.Resets(), s.Len())
	}
	if s.Seen("a") {
		t.Fatalf("a must be forgotten after the reset")
	}
}

func TestSetConcurrentCheckAndInsert(t *testing.T) {
	s := NewSet(1000)
	var firsts int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !s.Seen("same") {
				atomic.AddInt64(&firsts, 1)
			}
		}()
	}
	wg.Wait()
	if firsts != 1 {
		t.Fatalf("expected exactly one first observation, got %d", firsts)
	}
}

func TestLRUEvictsOldestOnly(t *testing.T) {
	l, err := NewLRU(2)
	if err != nil {
		t.Fatalf("new lru: %v", err)
	}
	l.Seen("a")
	l.Seen("b")
	l.Seen("c")
	if !l.Seen("c") || !l.Seen("b") {
		t.Fatalf("recent keys must still be present")
	}
	if l.Seen("a") {
		t.Fatalf("oldest key must have been evicted")
	}
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	if _, err := New("ring", 10); err == nil {
		t.Fatalf("expected error")
	}
	d, err := New("", 10)
	if err != nil {
		t.Fatalf("default policy: %v", err)
	}
	if _, ok := d.(*Set); !ok {
		t.Fatalf("default policy must be the clear-on-overflow set, got %T", d)
	}
}

func TestKeyIncludesNetworkDiscriminators(t *testing.T) {
	a := &models.Event{Source: models.SourceNetwork, TimestampText: "t", Kind: models.KindTCPSyn, SourceIdentity: "10.0.0.7", RecordID: "41", DstPorts: []int{22}}
	b := &models.Event{Source: models.SourceNetwork, TimestampText: "t", Kind: models.KindTCPSyn, SourceIdentity: "10.0.0.7", RecordID: "41", DstPorts: []int{23}}
	if Key(a) == Key(b) {
		t.Fatalf("packets to different ports must not share a key")
	}

	s1 := &models.Event{Source: models.SourceSessionLog, TimestampText: "T0", UpstreamID: "cowrie.login.failed", SessionID: "s1", SourceIdentity: "10.0.0.9"}
	s2 := *s1
	s2.Payload = "different payload"
	if Key(s1) != Key(&s2) {
		t.Fatalf("session identity ignores payload")
	}
	if got := Key(s1); got != fmt.Sprintf("%s:%s:%s:%s", "T0", "cowrie.login.failed", "s1", "10.0.0.9") {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestKeyEmptyForNetworkRecordWithoutID(t *testing.T) {
	ev := &models.Event{Source: models.SourceNetwork, TimestampText: models.Unknown, Kind: models.KindTCPSyn, SourceIdentity: "10.0.0.8", DstPorts: []int{80}}
	if got := Key(ev); got != "" {
		t.Fatalf("network record without id must have no identity, got %q", got)
	}
	ev.RecordID = "7"
	if Key(ev) == "" {
		t.Fatalf("network record with id must have an identity")
	}
}
