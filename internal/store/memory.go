package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory VideoStore for tests and single-node
// development deployments without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	videos map[uuid.UUID]*Video
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{videos: make(map[uuid.UUID]*Video)}
}

func (s *MemoryStore) Create(ctx context.Context, v *Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *v
	s.videos[v.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *v
	return &clone, nil
}

func (s *MemoryStore) UpdateEncoding(ctx context.Context, id uuid.UUID, update EncodingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return ErrNotFound
	}
	if update.Status != nil {
		v.EncodingStatus = *update.Status
	}
	if update.StartedAt != nil {
		t := *update.StartedAt
		v.EncodingStartedAt = &t
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		v.EncodingCompletedAt = &t
	}
	if update.Error != nil {
		v.EncodingError = *update.Error
	}
	if update.Tiers != nil {
		v.EncodingTiers = *update.Tiers
	}
	if update.ManifestURL != nil {
		v.ManifestURL = *update.ManifestURL
	}
	if update.MP4FallbackURL != nil {
		v.MP4FallbackURL = *update.MP4FallbackURL
	}
	return nil
}

func (s *MemoryStore) SetModeration(ctx context.Context, id uuid.UUID, status ModerationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return ErrNotFound
	}
	v.Moderation = status
	return nil
}

func (s *MemoryStore) ListStuckEncoding(ctx context.Context, startedBefore time.Time) ([]*Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Video
	for _, v := range s.videos {
		if v.EncodingStatus == EncodingActive && v.EncodingStartedAt != nil && v.EncodingStartedAt.Before(startedBefore) {
			clone := *v
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListStalePending(ctx context.Context, createdBefore time.Time) ([]*Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Video
	for _, v := range s.videos {
		if v.EncodingStatus == EncodingPending && v.CreatedAt.Before(createdBefore) {
			clone := *v
			out = append(out, &clone)
		}
	}
	return out, nil
}
