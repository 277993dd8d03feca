package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrOwnerNotFound = errors.New("task owner not found")
)

// Store is the task system of record. List and Count apply the same filter
// so pagination totals match the rows a caller may see.
type Store interface {
	FindByID(ctx context.Context, id string) (Task, error)
	List(ctx context.Context, f ListFilter, p Paging) ([]Task, error)
	Count(ctx context.Context, f ListFilter) (int, error)
	Insert(ctx context.Context, t Task) (Task, error)
	Update(ctx context.Context, t Task) (Task, error)
	Delete(ctx context.Context, id string) error
}

type InMemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[string]Task)}
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t.clone(), nil
}

func (s *InMemoryStore) List(_ context.Context, f ListFilter, p Paging) ([]Task, error) {
	s.mu.RLock()
	matched := s.matchLocked(f)
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Offset >= len(matched) {
		return []Task{}, nil
	}
	end := len(matched)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return matched[p.Offset:end], nil
}

func (s *InMemoryStore) Count(_ context.Context, f ListFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchLocked(f)), nil
}

func (s *InMemoryStore) matchLocked(f ListFilter) []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.matches(t) {
			out = append(out, t.clone())
		}
	}
	return out
}

func (s *InMemoryStore) Insert(_ context.Context, t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.clone()
	return t, nil
}

func (s *InMemoryStore) Update(_ context.Context, t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tasks[t.ID]
	if !ok {
		return Task{}, ErrNotFound
	}
	t.UserID = existing.UserID
	t.CreatedAt = existing.CreatedAt
	s.tasks[t.ID] = t.clone()
	return t, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (f ListFilter) matches(t Task) bool {
	if f.OwnerID != nil && t.UserID != *f.OwnerID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && t.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func (t Task) clone() Task {
	if t.Description != nil {
		d := *t.Description
		t.Description = &d
	}
	if t.ImageURL != nil {
		u := *t.ImageURL
		t.ImageURL = &u
	}
	return t
}
