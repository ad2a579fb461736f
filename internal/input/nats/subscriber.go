package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"honeywatch/internal/logger"
)

// Config configures a NATS subject feed.
type Config struct {
	URL     string
	Subject string
	Queue   string
	Buffer  int
}

// Subscriber receives sensor records published on a NATS subject.
type Subscriber struct {
	nc  *nats.Conn
	sub *nats.Subscription
	ch  chan *nats.Msg
}

// NewSubscriber connects and subscribes. With a queue group, several
// honeywatch instances share one subject.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("honeywatch"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	ch := make(chan *nats.Msg, cfg.Buffer)
	var sub *nats.Subscription
	if cfg.Queue != "" {
		sub, err = nc.ChanQueueSubscribe(cfg.Subject, cfg.Queue, ch)
	} else {
		sub, err = nc.ChanSubscribe(cfg.Subject, ch)
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("flush subscription %s: %w", cfg.Subject, err)
	}

	logger.Infof("NATS feed subscribed: %s (queue=%q)", cfg.Subject, cfg.Queue)
	return &Subscriber{nc: nc, sub: sub, ch: ch}, nil
}

// Next returns the next message payload.
func (s *Subscriber) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return nil, fmt.Errorf("nats subscription closed")
		}
		return msg.Data, nil
	}
}

// Close unsubscribes and closes the connection.
func (s *Subscriber) Close() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			logger.Warnf("NATS unsubscribe failed: %v", err)
		}
	}
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
