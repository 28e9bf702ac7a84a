package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Status is the load status record of one flipbook as stored in Redis.
type Status struct {
	Status     string         `json:"status"`
	Progress   int            `json:"progress"`
	Message    string         `json:"message"`
	Generation uint64         `json:"generation"`
	Start      *time.Time     `json:"start_time,omitempty"`
	End        *time.Time     `json:"end_time,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RedisStatus keeps status records in hashes named flipbook:{id}:status.
type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedisStatus connects to redisURL. Records expire ttl after their last
// write; zero keeps them until deleted.
func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStatus{client: c, keyNS: "flipbook", ttl: ttl}, nil
}

// Key returns the hash key for id.
func (s *RedisStatus) Key(id string) string { return statusKey(s.keyNS, id) }

func statusKey(ns, id string) string { return fmt.Sprintf("%s:%s:status", ns, id) }

// Set replaces the record for id.
func (s *RedisStatus) Set(ctx context.Context, id string, st Status) error {
	key := s.Key(id)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, encodeStatus(st))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the record for id and whether it exists.
func (s *RedisStatus) Get(ctx context.Context, id string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.Key(id)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	return decodeStatus(res), true, nil
}

// Delete removes the record for id.
func (s *RedisStatus) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.Key(id)).Err()
}

// Ping checks the connection.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() *redis.Client { return s.client }

func encodeStatus(st Status) map[string]any {
	m := map[string]any{
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"generation": strconv.FormatUint(st.Generation, 10),
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, _ := json.Marshal(st.Metadata)
		m["metadata"] = string(b)
	}
	return m
}

func decodeStatus(res map[string]string) Status {
	st := Status{
		Status:  res["status"],
		Message: res["message"],
	}
	// ignore parse errors; default 0
	if p := res["progress"]; p != "" {
		st.Progress, _ = strconv.Atoi(p)
	}
	if g := res["generation"]; g != "" {
		st.Generation, _ = strconv.ParseUint(g, 10, 64)
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st
}
