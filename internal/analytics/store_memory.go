package analytics

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the in-memory Store used by tests and dev runs. One mutex
// covers every key; folds are short arithmetic, contention is not a concern
// at this scale.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Key]*Record
	applied map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[Key]*Record{},
		applied: map[string]struct{}{},
	}
}

func (m *MemoryStore) Apply(_ context.Context, key Key, ev AppliedEvent, fn func(*Record)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.applied[ev.AttemptID]; dup {
		return false, nil
	}
	m.applied[ev.AttemptID] = struct{}{}
	r, ok := m.records[key]
	if !ok {
		r = &Record{UserID: key.UserID, QuizID: key.QuizID}
		m.records[key] = r
	}
	fn(r)
	return true, nil
}

func (m *MemoryStore) Get(_ context.Context, key Key) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return cloneRecord(r), nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Record{}
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, cloneRecord(r))
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) ListByQuiz(_ context.Context, quizID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Record{}
	for _, r := range m.records {
		if r.QuizID == quizID {
			out = append(out, cloneRecord(r))
		}
	}
	sortRecords(out)
	return out, nil
}

func cloneRecord(r *Record) Record {
	c := *r
	c.Questions = append([]QuestionStat(nil), r.Questions...)
	return c
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].LastUpdated != rs[j].LastUpdated {
			return rs[i].LastUpdated > rs[j].LastUpdated
		}
		return rs[i].UserID+rs[i].QuizID < rs[j].UserID+rs[j].QuizID
	})
}
