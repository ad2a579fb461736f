package sourcestate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"honeywatch/pkg/models"
)

// RedisConfig configures Redis access for the per-source index.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// SourceState summarises the alerts raised for one source address.
type SourceState struct {
	SrcIP      string    `json:"src_ip"`
	Alerts     int64     `json:"alerts"`
	RiskScore  int64     `json:"risk_score"`
	Techniques []string  `json:"techniques,omitempty"`
	FirstAlert time.Time `json:"first_alert,omitempty"`
	LastAlert  time.Time `json:"last_alert,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// RedisStore maintains the per-source alert index. It is written as an
// additional alert sink and read by reporting.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed source index.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "honeywatch:source_state"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis source-state: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// RiskScore weighs one alert for the per-source ranking.
func RiskScore(a *models.Alert) int64 {
	var score int64
	switch a.Severity {
	case models.SeverityHigh:
		score = 7
	case models.SeverityMedium:
		score = 3
	default:
		score = 1
	}
	if a.Mitre.ID != "" && a.Mitre.ID != "N/A" {
		score += 5
	}
	if a.Mitre.Tactic == "Privilege Escalation" || a.Mitre.Tactic == "Command and Control" {
		score += 10
	}
	return score
}

// WriteAlerts folds a batch of alerts into the index.
func (s *RedisStore) WriteAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	ctx := context.Background()
	pipe := s.client.Pipeline()
	nowUnix := time.Now().Unix()

	for _, a := range alerts {
		if a == nil {
			continue
		}
		src := strings.TrimSpace(a.SrcIP)
		if src == "" {
			src = models.Unknown
		}
		ts := float64(a.Timestamp.Unix())
		risk := RiskScore(a)

		key := s.sourceKey(src)
		pipe.HSet(ctx, key,
			"src_ip", src,
			"updated_at", strconv.FormatInt(nowUnix, 10),
		)
		pipe.HIncrBy(ctx, key, "alerts", 1)
		pipe.HIncrBy(ctx, key, "risk_score", risk)
		if a.Mitre.ID != "" && a.Mitre.ID != "N/A" {
			pipe.SAdd(ctx, s.techniquesKey(src), a.Mitre.ID)
		}

		pipe.ZAddArgs(ctx, s.firstSetKey(), redis.ZAddArgs{LT: true, Members: []redis.Z{{Score: ts, Member: src}}})
		pipe.ZAddArgs(ctx, s.lastSetKey(), redis.ZAddArgs{GT: true, Members: []redis.Z{{Score: ts, Member: src}}})
		pipe.ZIncrBy(ctx, s.riskSetKey(), float64(risk), src)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update source-state redis keys: %w", err)
	}
	return nil
}

// TopSources returns the highest-risk sources, best first.
func (s *RedisStore) TopSources(ctx context.Context, limit int64) ([]SourceState, error) {
	if limit <= 0 {
		limit = 20
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.riskSetKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read source ranking: %w", err)
	}

	states := make([]SourceState, 0, len(members))
	for _, z := range members {
		src, ok := z.Member.(string)
		if !ok || src == "" {
			continue
		}
		hash, err := s.client.HGetAll(ctx, s.sourceKey(src)).Result()
		if err != nil || len(hash) == 0 {
			continue
		}

		st := SourceState{SrcIP: src}
		st.Alerts, _ = strconv.ParseInt(hash["alerts"], 10, 64)
		st.RiskScore, _ = strconv.ParseInt(hash["risk_score"], 10, 64)
		if updated, _ := strconv.ParseInt(hash["updated_at"], 10, 64); updated > 0 {
			st.UpdatedAt = time.Unix(updated, 0).UTC()
		}
		if first, err := s.client.ZScore(ctx, s.firstSetKey(), src).Result(); err == nil && first > 0 {
			st.FirstAlert = time.Unix(int64(first), 0).UTC()
		}
		if last, err := s.client.ZScore(ctx, s.lastSetKey(), src).Result(); err == nil && last > 0 {
			st.LastAlert = time.Unix(int64(last), 0).UTC()
		}
		if techs, err := s.client.SMembers(ctx, s.techniquesKey(src)).Result(); err == nil {
			sort.Strings(techs)
			st.Techniques = techs
		}
		states = append(states, st)
	}
	return states, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) sourceKey(src string) string {
	return s.prefix + ":source:" + src
}

func (s *RedisStore) techniquesKey(src string) string {
	return s.prefix + ":techniques:" + src
}

func (s *RedisStore) firstSetKey() string {
	return s.prefix + ":first"
}

func (s *RedisStore) lastSetKey() string {
	return s.prefix + ":last"
}

func (s *RedisStore) riskSetKey() string {
	return s.prefix + ":risk"
}
