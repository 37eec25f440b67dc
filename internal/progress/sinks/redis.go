package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/hostcrawl/internal/progress"
)

const (
	// DefaultStream is the Redis stream progress events are appended to.
	DefaultStream = "hostcrawl:progress"
	// DefaultStreamMaxLen caps the stream with approximate trimming.
	DefaultStreamMaxLen = 10000

	redisPingTimeout = 5 * time.Second
)

// RedisConfig selects the Redis server and stream for RedisStreamSink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// RedisStreamSink appends each event to a Redis stream so other processes
// can follow a crawl with XREAD.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
	owned  bool
}

// NewRedisStreamSink connects to cfg.Addr and verifies the server answers a
// PING before returning.
func NewRedisStreamSink(ctx context.Context, cfg RedisConfig) (*RedisStreamSink, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	sink := NewRedisStreamSinkWithClient(client, cfg.Stream, cfg.MaxLen)
	sink.owned = true
	return sink, nil
}

// NewRedisStreamSinkWithClient uses an existing client, which the caller
// keeps ownership of.
func NewRedisStreamSinkWithClient(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Stream returns the stream key.
func (s *RedisStreamSink) Stream() string {
	return s.stream
}

// Consume appends the batch in a single pipeline round trip.
func (s *RedisStreamSink) Consume(ctx context.Context, batch []progress.Event) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, evt := range batch {
			payload, err := json.Marshal(streamEvent(evt))
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: s.stream,
				MaxLen: s.maxLen,
				Approx: true,
				Values: map[string]any{
					"run_id": evt.RunUUID().String(),
					"stage":  string(evt.Stage),
					"event":  string(payload),
				},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to stream %s: %w", s.stream, err)
	}
	return nil
}

// Close releases the client when the sink created it.
func (s *RedisStreamSink) Close(context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

type streamPayload struct {
	RunID   string    `json:"run_id"`
	TS      time.Time `json:"ts"`
	Stage   string    `json:"stage"`
	Host    string    `json:"host,omitempty"`
	URL     string    `json:"url,omitempty"`
	Links   int       `json:"links,omitempty"`
	Visited int       `json:"visited"`
	Kind    string    `json:"kind,omitempty"`
	DurMS   int64     `json:"dur_ms,omitempty"`
	Note    string    `json:"note,omitempty"`
}

func streamEvent(evt progress.Event) streamPayload {
	return streamPayload{
		RunID:   evt.RunUUID().String(),
		TS:      evt.TS.UTC(),
		Stage:   string(evt.Stage),
		Host:    evt.Host,
		URL:     evt.URL,
		Links:   evt.Links,
		Visited: evt.Visited,
		Kind:    evt.Kind,
		DurMS:   evt.Dur.Milliseconds(),
		Note:    evt.Note,
	}
}
