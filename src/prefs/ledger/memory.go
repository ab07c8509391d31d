package ledger

import (
	"context"
	"sync"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// Memory keeps activity rows in process.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]*model.Activity
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]*model.Activity)}
}

// Seed stores a copy of a as the user's row, replacing any existing one.
func (m *Memory) Seed(a model.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.UserID] = copyActivity(a)
}

func (m *Memory) Activity(_ context.Context, userID string) (model.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[userID]
	if !ok {
		return model.Activity{}, notFound("read activity", userID)
	}
	return *copyActivity(*row), nil
}

func (m *Memory) AppendItem(_ context.Context, userID string, domain model.Domain, itemID string) (bool, error) {
	const op = "append item"
	if err := checkArgs(op, userID, domain); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[userID]
	if !ok {
		return false, notFound(op, userID)
	}
	items := row.Items(domain)
	if contains(items, itemID) {
		return false, nil
	}
	row.SetItems(domain, append(items, itemID))
	return true, nil
}

func (m *Memory) SetSummary(_ context.Context, userID string, domain model.Domain, text string) error {
	const op = "set summary"
	if err := checkArgs(op, userID, domain); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[userID]
	if !ok {
		return notFound(op, userID)
	}
	row.SetSummary(domain, text)
	return nil
}

func (m *Memory) EnsureUser(_ context.Context, userID string) error {
	if err := checkUser("ensure user", userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[userID]; !ok {
		m.rows[userID] = &model.Activity{UserID: userID}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func copyActivity(a model.Activity) *model.Activity {
	out := a
	for _, d := range model.Domains {
		out.SetItems(d, append([]string(nil), a.Items(d)...))
	}
	return &out
}
