package features

import (
	"context"
	"sort"
	"sync"
	"time"

	"tdp/cmd/identity"
)

// MemoryStore is an in-process Store. User existence is checked against users.
type MemoryStore struct {
	users identity.Store

	mu       sync.RWMutex
	byID     map[string]Feature
	byName   map[string]string
	assigned map[string]map[string]time.Time // user -> feature -> assigned_at
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(users identity.Store) *MemoryStore {
	return &MemoryStore{
		users:    users,
		byID:     make(map[string]Feature),
		byName:   make(map[string]string),
		assigned: make(map[string]map[string]time.Time),
	}
}

func (s *MemoryStore) List(ctx context.Context) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Feature, 0, len(s.byID))
	for _, f := range s.byID {
		out = append(out, cloneFeature(f))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Feature, error) {
	if err := ctx.Err(); err != nil {
		return Feature{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.byID[id]
	if !ok {
		return Feature{}, identity.NotFoundError{Op: "features.Get", Resource: "feature"}
	}
	return cloneFeature(f), nil
}

func (s *MemoryStore) Create(ctx context.Context, f Feature) (Feature, error) {
	if err := ctx.Err(); err != nil {
		return Feature{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[f.Name]; ok {
		return Feature{}, identity.ConflictError{Op: "features.Create", Field: "name"}
	}
	f = cloneFeature(f)
	s.byID[f.ID] = f
	s.byName[f.Name] = f.ID
	return cloneFeature(f), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, in UpdateInput) (Feature, error) {
	const op = "features.Update"

	if err := ctx.Err(); err != nil {
		return Feature{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return Feature{}, identity.NotFoundError{Op: op, Resource: "feature"}
	}
	if other, taken := s.byName[in.Name]; taken && other != id {
		return Feature{}, identity.ConflictError{Op: op, Field: "name"}
	}
	delete(s.byName, f.Name)
	f.Name = in.Name
	f.Description = in.Description
	f = cloneFeature(f)
	s.byID[id] = f
	s.byName[f.Name] = id
	return cloneFeature(f), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return identity.NotFoundError{Op: "features.Delete", Resource: "feature"}
	}
	delete(s.byID, id)
	delete(s.byName, f.Name)
	for _, held := range s.assigned {
		delete(held, id)
	}
	return nil
}

func (s *MemoryStore) ListForUser(ctx context.Context, userID string) ([]UserFeature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	held := s.assigned[userID]
	out := make([]UserFeature, 0, len(held))
	for fid, at := range held {
		if f, ok := s.byID[fid]; ok {
			out = append(out, UserFeature{Feature: cloneFeature(f), AssignedAt: at})
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Assign(ctx context.Context, userID, featureID string, now time.Time) error {
	const op = "features.Assign"

	if s.users != nil {
		if _, err := s.users.GetUserByID(ctx, userID); err != nil {
			if identity.IsNotFound(err) {
				return identity.NotFoundError{Op: op, Resource: "user"}
			}
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[featureID]; !ok {
		return identity.NotFoundError{Op: op, Resource: "feature"}
	}
	held := s.assigned[userID]
	if held == nil {
		held = make(map[string]time.Time)
		s.assigned[userID] = held
	}
	if _, ok := held[featureID]; !ok {
		held[featureID] = now
	}
	return nil
}

func (s *MemoryStore) Unassign(ctx context.Context, userID, featureID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assigned[userID][featureID]; !ok {
		return identity.NotFoundError{Op: "features.Unassign", Resource: "assignment"}
	}
	delete(s.assigned[userID], featureID)
	return nil
}

func (s *MemoryStore) HasFeature(ctx context.Context, userID, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fid, ok := s.byName[name]
	if !ok {
		return false, nil
	}
	_, ok = s.assigned[userID][fid]
	return ok, nil
}
