package storage

import (
	"context"
	"sync"

	"evostrat/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	checkpoints map[string]model.Checkpoint
	history     map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.checkpoints = make(map[string]model.Checkpoint)
	s.history = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, checkpoint model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if err := validateCheckpoint(checkpoint); err != nil {
		return err
	}
	checkpoint.VersionedRecord = CurrentVersion()
	checkpoint.Parameters = checkpoint.Parameters.Clone()
	s.checkpoints[checkpoint.Key] = checkpoint
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, key string) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.Checkpoint{}, false, errNotInitialized
	}
	checkpoint, ok := s.checkpoints[key]
	if !ok {
		return model.Checkpoint{}, false, nil
	}
	checkpoint.Parameters = checkpoint.Parameters.Clone()
	return checkpoint, true, nil
}

func (s *MemoryStore) SaveRewardHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if err := validateRewardHistory(runID, history); err != nil {
		return err
	}
	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetRewardHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, errNotInitialized
	}
	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}
