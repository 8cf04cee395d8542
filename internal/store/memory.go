package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rendis/handoff/pkg/schema"
)

// MemoryStore is an in-memory Store implementation, used by tests and
// single-process deployments that do not need durability.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	events map[string][]*Event
	nextID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]*Run),
		events: make(map[string][]*Event),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", run.ID)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", id)
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, id string, update RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", id)
	}
	if update.ExpectStatus != nil && run.Status != *update.ExpectStatus {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"run %q is %s, expected %s", id, run.Status, *update.ExpectStatus)
	}

	applyUpdate(run, update)
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Run
	for _, run := range s.runs {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.SuspendedSince != nil {
			if run.SuspendedAt == nil || run.SuspendedAt.After(*filter.SuspendedSince) {
				continue
			}
		}
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	event.ID = s.nextID
	event.Sequence = int64(len(s.events[event.RunID])) + 1
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	cp := *event
	s.events[event.RunID] = append(s.events[event.RunID], &cp)
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, runID string, since int64) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for _, e := range s.events[runID] {
		if e.Sequence > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// applyUpdate mutates run in place according to update. Shared by the
// memory store; the libSQL store expresses the same semantics in SQL.
func applyUpdate(run *Run, update RunUpdate) {
	if update.Status != nil {
		run.Status = *update.Status
	}
	if update.CurrentStepID != nil {
		run.CurrentStepID = *update.CurrentStepID
	}
	if update.ChatID != nil {
		run.ChatID = *update.ChatID
	}
	if update.Input != nil {
		run.Input = cloneMap(update.Input)
	}
	if update.SuspendPayload != nil {
		run.SuspendPayload = cloneMap(update.SuspendPayload)
	}
	if update.ClearSuspendPayload {
		run.SuspendPayload = nil
	}
	if update.Result != nil {
		run.Result = cloneMap(update.Result)
	}
	if update.Error != nil {
		run.Error = append(json.RawMessage(nil), update.Error...)
	}
	if update.SuspendedAt != nil {
		run.SuspendedAt = update.SuspendedAt
	}
	if update.CompletedAt != nil {
		run.CompletedAt = update.CompletedAt
	}
}

func cloneRun(run *Run) *Run {
	cp := *run
	cp.Input = cloneMap(run.Input)
	cp.SuspendPayload = cloneMap(run.SuspendPayload)
	cp.Result = cloneMap(run.Result)
	cp.Error = append(json.RawMessage(nil), run.Error...)
	return &cp
}

// cloneMap deep-copies via a JSON round-trip so callers can never alias
// nested values held by the store.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		// Payloads originate from JSON, so this cannot fail in practice.
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}
