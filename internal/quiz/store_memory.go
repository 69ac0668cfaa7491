package quiz

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps everything in maps behind one mutex. It backs tests and
// single-node dev runs; the SQL store is the production path.
type MemoryStore struct {
	mu        sync.RWMutex
	quizzes   map[string]Quiz
	attempts  map[string]Attempt
	completed map[counterKey]int
}

type counterKey struct{ userID, quizID string }

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes:   map[string]Quiz{},
		attempts:  map[string]Attempt{},
		completed: map[counterKey]int{},
	}
}

func (m *MemoryStore) PutQuiz(_ context.Context, z Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[z.ID] = z
	return nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return z, nil
}

func (m *MemoryStore) DeleteQuiz(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[id]; !ok {
		return ErrQuizNotFound
	}
	delete(m.quizzes, id)
	return nil
}

func (m *MemoryStore) ListQuizzes(_ context.Context, opts ListOpts) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Summary{}
	for _, z := range m.quizzes {
		if opts.Category != "" && z.Category != opts.Category {
			continue
		}
		if opts.Status != "" && z.Status != opts.Status {
			continue
		}
		if opts.OwnerID != "" && z.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Search != "" && !strings.Contains(strings.ToLower(z.Title), strings.ToLower(opts.Search)) {
			continue
		}
		out = append(out, Summary{
			ID:           z.ID,
			Title:        z.Title,
			Category:     z.Category,
			Status:       z.Status,
			OwnerID:      z.OwnerID,
			NumQuestions: len(z.Questions),
			MaxPoints:    z.MaxPoints(),
			CreatedAt:    z.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (m *MemoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
	return nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *MemoryStore) UpdateAttempt(_ context.Context, a Attempt, expect string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attempts[a.ID]
	if !ok {
		return ErrAttemptNotFound
	}
	if cur.Status != expect {
		return ErrAlreadyCompleted
	}
	m.attempts[a.ID] = a
	return nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt > out[j].StartedAt
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (m *MemoryStore) CountCompleted(_ context.Context, userID, quizID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed[counterKey{userID, quizID}], nil
}

func (m *MemoryStore) CompleteIfBelow(_ context.Context, userID, quizID string, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := counterKey{userID, quizID}
	if m.completed[k] >= limit {
		return false, nil
	}
	m.completed[k]++
	return true, nil
}

func (m *MemoryStore) ReleaseCompleted(_ context.Context, userID, quizID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := counterKey{userID, quizID}
	if m.completed[k] > 0 {
		m.completed[k]--
	}
	return nil
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return []T{}
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
