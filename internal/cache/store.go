// Package cache holds the shared key-value state read by the API and
// written by the pollers and the cycle coordinator.
package cache

import (
	"context"
	"errors"
)

// ErrNil is returned when a key or sorted-set member does not exist.
var ErrNil = errors.New("cache: nil")

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the primitive key-value interface backed by Redis or memory.
type Store interface {
	// Get returns the string value of key or ErrNil.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key without expiry.
	Set(ctx context.Context, key, value string) error

	// Del removes keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// IncrByFloat adds delta to the float stored at key, treating a missing key as 0.
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)

	// ZIncrBy adds delta to member's score in the sorted set at key.
	ZIncrBy(ctx context.Context, key, member string, delta float64) (float64, error)

	// ZScore returns member's score or ErrNil.
	ZScore(ctx context.Context, key, member string) (float64, error)

	// ZRevRank returns member's zero-based rank by descending score or ErrNil.
	ZRevRank(ctx context.Context, key, member string) (int64, error)

	// ZRevRangeWithScores returns members start..stop (inclusive) by descending score.
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	// ZCard returns the sorted set size.
	ZCard(ctx context.Context, key string) (int64, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
