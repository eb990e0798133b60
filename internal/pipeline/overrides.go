package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Override carries per-channel tunables an operator can set in Redis
// without restarting the adapter.
type Override struct {
	GreetingDelay time.Duration
	ReopenWindow  time.Duration
}

// Overrides reads per-channel overrides from Redis.  Keys are in the
// format helpdesk-config:{sessionID} holding a JSON object with
// optional greetingDelayMs and reopenWindowMs fields.
type Overrides struct {
	url string
}

func NewOverrides(redisURL string) *Overrides {
	return &Overrides{url: strings.TrimSpace(redisURL)}
}

// Fetch returns the override for a session, ok=false when Redis is
// unconfigured, unreachable, or holds nothing for the session.
func (o *Overrides) Fetch(sessionID string) (Override, bool) {
	out := Override{}
	if o == nil || o.url == "" || strings.TrimSpace(sessionID) == "" {
		return out, false
	}
	opt, err := redis.ParseURL(o.url)
	if err != nil {
		return out, false
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	defer c.Close()

	s, err := c.Get(ctx, "helpdesk-config:"+sessionID).Result()
	if err != nil || strings.TrimSpace(s) == "" {
		return out, false
	}
	// Loose decode so partial objects and string-typed numbers work.
	m := map[string]any{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return out, false
	}
	if v, ok := m["greetingDelayMs"]; ok {
		if n, ok2 := asInt(v); ok2 && n > 0 {
			out.GreetingDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v, ok := m["reopenWindowMs"]; ok {
		if n, ok2 := asInt(v); ok2 && n > 0 {
			out.ReopenWindow = time.Duration(n) * time.Millisecond
		}
	}
	return out, true
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
