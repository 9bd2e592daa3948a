package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatforge/commandd/pkg/types"
)

const reloadStreamPrefix = "reload:"

// RedisNotifier implements Publisher and EventLog on a Redis Stream per
// server. Stream entry IDs are the event IDs, so ordering and resumption
// come for free and the log survives process restarts.
type RedisNotifier struct {
	client *redis.Client
	maxLen int64
}

// RedisNotifierConfig holds Redis connection configuration for the notifier.
type RedisNotifierConfig struct {
	// URL is the Redis connection URL (redis://host:port/db)
	URL string

	// Password for Redis authentication
	Password string

	// DB is the database number
	DB int

	// MaxLen caps each server's stream (ring buffer, approximate trim).
	MaxLen int64
}

// NewRedisNotifier creates a Redis Streams backed notifier.
func NewRedisNotifier(cfg *RedisNotifierConfig) (*RedisNotifier, error) {
	opts := &redis.Options{
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addr = parsed.Addr
		if parsed.Password != "" && cfg.Password == "" {
			opts.Password = parsed.Password
		}
		if parsed.DB != 0 && cfg.DB == 0 {
			opts.DB = parsed.DB
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 1000
	}

	return &RedisNotifier{client: client, maxLen: maxLen}, nil
}

// NewRedisNotifierWithClient creates a notifier using an existing client.
func NewRedisNotifierWithClient(client *redis.Client, maxLen int64) *RedisNotifier {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &RedisNotifier{client: client, maxLen: maxLen}
}

func streamKey(serverID string) string { return reloadStreamPrefix + serverID }

// Publish appends one reload event to the server's stream.
func (n *RedisNotifier) Publish(ctx context.Context, serverID string) (*types.ReloadEvent, error) {
	now := time.Now().UTC()

	id, err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(serverID),
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":     types.EventTypeReloadCommands,
			"serverId": serverID,
			"ts":       now.Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xadd: %w", err)
	}

	return &types.ReloadEvent{
		ID:        id,
		Type:      types.EventTypeReloadCommands,
		ServerID:  serverID,
		CreatedAt: now,
	}, nil
}

// EventsSince returns events after the given stream ID.
func (n *RedisNotifier) EventsSince(ctx context.Context, serverID, lastEventID string) ([]*types.ReloadEvent, error) {
	start := "-"
	if lastEventID != "" {
		// "(" makes the range exclusive of the given ID.
		start = "(" + lastEventID
	}

	entries, err := n.client.XRange(ctx, streamKey(serverID), start, "+").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*types.ReloadEvent{}, nil
		}
		return nil, fmt.Errorf("xrange: %w", err)
	}

	events := make([]*types.ReloadEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, entryToEvent(serverID, entry))
	}
	return events, nil
}

// Subscribe returns a channel fed from the server's stream, starting at new
// events. The cleanup function stops the background reader.
func (n *RedisNotifier) Subscribe(ctx context.Context, serverID string) (<-chan *types.ReloadEvent, func(), error) {
	ch := make(chan *types.ReloadEvent, 16)
	readerCtx, cancel := context.WithCancel(ctx)

	go n.streamReader(readerCtx, serverID, ch)

	return ch, cancel, nil
}

// streamReader reads from the Redis Stream and pushes to the channel.
func (n *RedisNotifier) streamReader(ctx context.Context, serverID string, ch chan *types.ReloadEvent) {
	defer close(ch)
	lastID := "$" // Start from latest

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := n.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey(serverID), lastID},
			Count:   10,
			Block:   time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			// On error, wait briefly then retry
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				lastID = entry.ID
				select {
				case ch <- entryToEvent(serverID, entry):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func entryToEvent(serverID string, entry redis.XMessage) *types.ReloadEvent {
	eventType, _ := entry.Values["type"].(string)

	ts, _ := entry.Values["ts"].(string)
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		// Stream IDs are <unix-ms>-<seq>, so a missing or mangled ts field
		// still yields the insertion time.
		if ms, _, ok := strings.Cut(entry.ID, "-"); ok {
			if msec, perr := strconv.ParseInt(ms, 10, 64); perr == nil {
				createdAt = time.UnixMilli(msec).UTC()
			}
		}
	}

	return &types.ReloadEvent{
		ID:        entry.ID,
		Type:      eventType,
		ServerID:  serverID,
		CreatedAt: createdAt,
	}
}

// Close closes the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// Ensure RedisNotifier implements both sides
var (
	_ Publisher = (*RedisNotifier)(nil)
	_ EventLog  = (*RedisNotifier)(nil)
)
