package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore implements Store in process memory.
// Thread-safe via RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	strings map[string]string
	zsets   map[string]map[string]float64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		zsets:   make(map[string]map[string]float64),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.strings[key]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = value
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.strings, k)
		delete(s.zsets, k)
	}
	return nil
}

func (s *MemoryStore) IncrByFloat(_ context.Context, key string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur float64
	if v, ok := s.strings[key]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not a float", key)
		}
		cur = f
	}
	cur += delta
	s.strings[key] = strconv.FormatFloat(cur, 'f', -1, 64)
	return cur, nil
}

func (s *MemoryStore) ZIncrBy(_ context.Context, key, member string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] += delta
	return z[member], nil
}

func (s *MemoryStore) ZScore(_ context.Context, key, member string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.zsets[key][member]
	if !ok {
		return 0, ErrNil
	}
	return score, nil
}

func (s *MemoryStore) ZRevRank(_ context.Context, key, member string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.zsets[key][member]; !ok {
		return 0, ErrNil
	}
	for i, m := range s.sortedLocked(key) {
		if m.Member == member {
			return int64(i), nil
		}
	}
	return 0, ErrNil
}

func (s *MemoryStore) ZRevRangeWithScores(_ context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked(key)
	n := int64(len(sorted))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []ScoredMember{}, nil
	}
	out := make([]ScoredMember, stop-start+1)
	copy(out, sorted[start:stop+1])
	return out, nil
}

func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.zsets[key])), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// sortedLocked orders members by descending score, ties by descending
// member, matching Redis reverse ordering.
func (s *MemoryStore) sortedLocked(key string) []ScoredMember {
	z := s.zsets[key]
	out := make([]ScoredMember, 0, len(z))
	for m, score := range z {
		out = append(out, ScoredMember{Member: m, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Member > out[j].Member
	})
	return out
}
