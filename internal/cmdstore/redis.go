package cmdstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chatforge/commandd/pkg/types"
)

const (
	commandKeyPrefix = "command:"
	serverSetPrefix  = "commands:"
	nameKeyPrefix    = "commandname:"
)

// RedisStore implements CommandStore backed by Redis.
//
// Layout:
//
//	command:<id>                  JSON command record
//	commands:<serverId>           set of command ids for the server
//	commandname:<serverId>:<name> id of the command holding the name
//
// The name key doubles as the uniqueness constraint: it is claimed with SETNX
// before the record is written, so concurrent creates for the same
// (server, name) resolve to one winner.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (redis://host:port/db)
	URL string

	// Password for Redis authentication
	Password string

	// DB is the database number
	DB int

	// Connection pool settings
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL:          "redis://localhost:6379/0",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisStore creates a new Redis-backed command store.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	opts := &redis.Options{
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Password:     cfg.Password,
		DB:           cfg.DB,
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

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store using an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func commandKey(id string) string { return commandKeyPrefix + id }

func serverSetKey(serverID string) string { return serverSetPrefix + serverID }

func nameIndexKey(serverID, name string) string {
	return fmt.Sprintf("%s%s:%s", nameKeyPrefix, serverID, name)
}

// Create saves a new command, claiming the name first.
func (s *RedisStore) Create(ctx context.Context, req *CreateCommandRequest) (*types.Command, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	nameKey := nameIndexKey(req.ServerID, req.Name)

	// SETNX is the write-time uniqueness constraint. Whoever claims the key
	// owns the name; losers get ErrNameTaken.
	claimed, err := s.client.SetNX(ctx, nameKey, id, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("claim name: %w", err)
	}
	if !claimed {
		return nil, ErrNameTaken
	}

	now := time.Now().UTC()
	cmd := &types.Command{
		ID:          id,
		ServerID:    req.ServerID,
		Name:        req.Name,
		Description: req.Description,
		Graph:       req.Graph,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		s.client.Del(ctx, nameKey)
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, commandKey(id), data, 0)
	pipe.SAdd(ctx, serverSetKey(req.ServerID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		// Release the claim so the name is not orphaned.
		s.client.Del(ctx, nameKey)
		return nil, fmt.Errorf("save command: %w", err)
	}

	return cmd, nil
}

// Get retrieves a command by id within a server scope.
func (s *RedisStore) Get(ctx context.Context, serverID, id string) (*types.Command, error) {
	data, err := s.client.Get(ctx, commandKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCommandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get command: %w", err)
	}

	var cmd types.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("unmarshal command: %w", err)
	}

	// Scope check: ids are opaque, so a caller guessing another server's id
	// must still see not-found.
	if cmd.ServerID != serverID {
		return nil, ErrCommandNotFound
	}

	return &cmd, nil
}

// FindByName retrieves a command by its normalized name.
func (s *RedisStore) FindByName(ctx context.Context, serverID, name string) (*types.Command, error) {
	id, err := s.client.Get(ctx, nameIndexKey(serverID, name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCommandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve name: %w", err)
	}

	cmd, err := s.Get(ctx, serverID, id)
	if errors.Is(err, ErrCommandNotFound) {
		// Stale claim without a record, clean up
		s.client.Del(ctx, nameIndexKey(serverID, name))
		return nil, ErrCommandNotFound
	}
	return cmd, err
}

// Update replaces the command's compiled fields, re-claiming the name if it
// changed.
func (s *RedisStore) Update(ctx context.Context, serverID, id string, req *UpdateCommandRequest) (*types.Command, error) {
	cmd, err := s.Get(ctx, serverID, id)
	if err != nil {
		return nil, err
	}

	oldName := cmd.Name
	if req.Name != oldName {
		claimed, err := s.client.SetNX(ctx, nameIndexKey(serverID, req.Name), id, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("claim name: %w", err)
		}
		if !claimed {
			// The key may be a stale claim left by this command itself.
			holder, err := s.client.Get(ctx, nameIndexKey(serverID, req.Name)).Result()
			if err != nil || holder != id {
				return nil, ErrNameTaken
			}
		}
	}

	cmd.Name = req.Name
	cmd.Description = req.Description
	cmd.Graph = req.Graph
	cmd.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, commandKey(id), data, 0)
	if req.Name != oldName {
		pipe.Del(ctx, nameIndexKey(serverID, oldName))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// The record still carries the old name, so release the new-name
		// claim or it stays unclaimable.
		if req.Name != oldName {
			s.client.Del(ctx, nameIndexKey(serverID, req.Name))
		}
		return nil, fmt.Errorf("save command: %w", err)
	}

	return cmd, nil
}

// Delete removes a command and releases its name.
func (s *RedisStore) Delete(ctx context.Context, serverID, id string) error {
	cmd, err := s.Get(ctx, serverID, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, commandKey(id))
	pipe.SRem(ctx, serverSetKey(serverID), id)
	pipe.Del(ctx, nameIndexKey(serverID, cmd.Name))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete command: %w", err)
	}

	return nil
}

// List returns the server's commands matching the options.
func (s *RedisStore) List(ctx context.Context, serverID string, opts *ListOptions) ([]*types.Command, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	ids, err := s.client.SMembers(ctx, serverSetKey(serverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list command ids: %w", err)
	}

	var commands []*types.Command
	for _, id := range ids {
		cmd, err := s.Get(ctx, serverID, id)
		if errors.Is(err, ErrCommandNotFound) {
			// Stale reference, clean up
			s.client.SRem(ctx, serverSetKey(serverID), id)
			continue
		}
		if err != nil {
			continue // Skip on error
		}
		commands = append(commands, cmd)
	}

	// SMembers order is arbitrary; sort by name so pagination is stable and
	// both backends agree.
	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })

	if opts.Offset > 0 {
		if opts.Offset >= len(commands) {
			return []*types.Command{}, nil
		}
		commands = commands[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(commands) {
		commands = commands[:opts.Limit]
	}

	return commands, nil
}

// AdapterInfo returns diagnostic information.
func (s *RedisStore) AdapterInfo(ctx context.Context) (map[string]interface{}, error) {
	pingStart := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return map[string]interface{}{
			"adapter": "redis",
			"healthy": false,
			"error":   err.Error(),
		}, nil
	}
	pingLatency := time.Since(pingStart)

	poolStats := s.client.PoolStats()

	return map[string]interface{}{
		"adapter": "redis",
		"healthy": true,
		"details": map[string]interface{}{
			"ping_latency": pingLatency.String(),
			"pool": map[string]interface{}{
				"hits":       poolStats.Hits,
				"misses":     poolStats.Misses,
				"timeouts":   poolStats.Timeouts,
				"total_conn": poolStats.TotalConns,
				"idle_conn":  poolStats.IdleConns,
			},
		},
	}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ensure RedisStore implements CommandStore
var _ CommandStore = (*RedisStore)(nil)
