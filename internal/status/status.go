package status

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Package status writes the session connection state to Redis so the
// main application can poll it cheaply.
// Keys are in the format: helpdesk-status:{sessionID}
// Accepted values: connecting, online, offline, disconnected, restart_required

type manager struct {
	client *redis.Client
	prefix string
}

var mgr *manager

// Init initialises the global status writer with the given Redis URL.
// If url is empty, status updates are no-ops.
func Init(redisURL string) {
	if strings.TrimSpace(redisURL) == "" {
		mgr = &manager{client: nil, prefix: "helpdesk-status:"}
		return
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		mgr = &manager{client: nil, prefix: "helpdesk-status:"}
		return
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.Ping(ctx).Err()
	mgr = &manager{client: c, prefix: "helpdesk-status:"}
}

// Set writes the status value for the given session id. Best effort;
// a missing or unreachable Redis never blocks the caller.
func Set(sessionID, value string) {
	if mgr == nil || mgr.client == nil {
		return
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = mgr.client.Set(ctx, mgr.prefix+sessionID, strings.TrimSpace(value), 0).Err()
}
