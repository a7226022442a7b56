package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/airdrop-engine/internal/airdrop"
)

// Memory is the in-process repository: a mutex-guarded map that deep-copies
// records on the way in and out so callers never alias stored state.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*airdrop.Airdrop
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*airdrop.Airdrop)}
}

func (m *Memory) Create(_ context.Context, a *airdrop.Airdrop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[a.ID]; exists {
		return airdrop.ErrValidation
	}
	m.records[a.ID] = a.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*airdrop.Airdrop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.records[id]
	if !ok {
		return nil, airdrop.ErrNotFound
	}
	return a.Clone(), nil
}

func (m *Memory) Update(_ context.Context, a *airdrop.Airdrop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[a.ID]; !ok {
		return airdrop.ErrNotFound
	}
	m.records[a.ID] = a.Clone()
	return nil
}

func (m *Memory) ListByCreator(_ context.Context, creator common.Address) ([]*airdrop.Airdrop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*airdrop.Airdrop, 0)
	for _, a := range m.records {
		if a.CreatorAddress == creator {
			out = append(out, a.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (m *Memory) ListOpenJoinable(_ context.Context) ([]*airdrop.Airdrop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*airdrop.Airdrop, 0)
	for _, a := range m.records {
		if a.Status != airdrop.StatusFunded || !a.JoinMode {
			continue
		}
		if a.MaxParticipants > 0 && a.RecipientCount >= a.MaxParticipants {
			continue
		}
		out = append(out, a.Clone())
	}
	sortByCreation(out)
	return out, nil
}

func sortByCreation(list []*airdrop.Airdrop) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
