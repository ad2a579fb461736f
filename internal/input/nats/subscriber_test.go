package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
)

func runServer(t *testing.T) string {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

func publish(t *testing.T, url, subject string, payloads ...string) {
	t.Helper()
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect publisher: %v", err)
	}
	defer nc.Close()
	for _, p := range payloads {
		if err := nc.Publish(subject, []byte(p)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestSubscriberNext(t *testing.T) {
	url := runServer(t)
	sub, err := NewSubscriber(Config{URL: url, Subject: "honeypot.session"})
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	defer sub.Close()

	publish(t, url, "honeypot.session", `{"eventid":"cowrie.session.connect"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(got) != `{"eventid":"cowrie.session.connect"}` {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestSubscriberQueueGroupDeliversOnce(t *testing.T) {
	url := runServer(t)
	cfg := Config{URL: url, Subject: "honeypot.network", Queue: "honeywatch"}
	a, err := NewSubscriber(cfg)
	if err != nil {
		t.Fatalf("new subscriber a: %v", err)
	}
	defer a.Close()
	b, err := NewSubscriber(cfg)
	if err != nil {
		t.Fatalf("new subscriber b: %v", err)
	}
	defer b.Close()

	const total = 50
	payloads := make([]string, total)
	for i := range payloads {
		payloads[i] = fmt.Sprintf(`{"seq":%d}`, i)
	}
	publish(t, url, "honeypot.network", payloads...)

	seen := make(map[string]int)
	drain := func(s *Subscriber) {
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			data, err := s.Next(ctx)
			cancel()
			if err != nil {
				return
			}
			seen[string(data)]++
		}
	}
	drain(a)
	drain(b)

	if len(seen) != total {
		t.Fatalf("expected %d distinct records, got %d", total, len(seen))
	}
	for p, n := range seen {
		if n != 1 {
			t.Fatalf("record %s delivered %d times", p, n)
		}
	}
}

func TestSubscriberNextHonorsCancel(t *testing.T) {
	url := runServer(t)
	sub, err := NewSubscriber(Config{URL: url, Subject: "honeypot.session"})
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sub.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewSubscriberRequiresSubject(t *testing.T) {
	if _, err := NewSubscriber(Config{URL: "nats://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}
