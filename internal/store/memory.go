package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Memory is an in-memory Store with an optional JSON snapshot on disk. It is
// shared between the engine's worker and UI readers, so it carries its own
// lock; the lock-free single-writer invariant applies to the engine's core
// state, not to this collaborator.
type Memory struct {
	log  *zap.Logger
	path string

	mu       sync.RWMutex
	contacts map[string]Contact
	logs     map[string][]Message
	files    []StoredFile
	statuses map[string]Status
}

type snapshotFile struct {
	Contacts map[string]Contact   `json:"contacts,omitempty"`
	Logs     map[string][]Message `json:"logs,omitempty"`
	Files    []StoredFile         `json:"files,omitempty"`
	Statuses map[string]Status    `json:"statuses,omitempty"`
}

// NewMemory builds a store. If path is non-empty an existing snapshot is
// loaded and every mutation persists a new one.
func NewMemory(log *zap.Logger, path string) (*Memory, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Memory{
		log:      log,
		path:     path,
		contacts: make(map[string]Contact),
		logs:     make(map[string][]Message),
		statuses: make(map[string]Status),
	}
	if path != "" {
		if err := m.load(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// UpsertContact inserts or replaces a contact row.
func (m *Memory) UpsertContact(ctx context.Context, contact Contact) error {
	if contact.UUID == "" {
		return fmt.Errorf("contact uuid is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[contact.UUID] = contact
	return m.persistLocked(ctx)
}

// Contact fetches a contact by uuid.
func (m *Memory) Contact(ctx context.Context, uuid string) (Contact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[uuid]
	return c, ok, ctx.Err()
}

// Contacts returns all contacts ordered by uuid.
func (m *Memory) Contacts(ctx context.Context) ([]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, ctx.Err()
}

// DeleteContact removes a contact row.
func (m *Memory) DeleteContact(ctx context.Context, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contacts, uuid)
	return m.persistLocked(ctx)
}

// AppendMessage appends one record to a conversation log.
func (m *Memory) AppendMessage(ctx context.Context, msg Message) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[msg.ConversationID] = append(m.logs[msg.ConversationID], msg)
	return m.persistLocked(ctx)
}

// Messages returns a conversation log in append order.
func (m *Memory) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.logs[conversationID]
	return append([]Message(nil), log...), ctx.Err()
}

// SaveFile records a completed file transfer.
func (m *Memory) SaveFile(ctx context.Context, file StoredFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	file.Data = append([]byte(nil), file.Data...)
	m.files = append(m.files, file)
	return m.persistLocked(ctx)
}

// Files returns all received files in arrival order.
func (m *Memory) Files(ctx context.Context) ([]StoredFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoredFile, len(m.files))
	for i, f := range m.files {
		f.Data = append([]byte(nil), f.Data...)
		out[i] = f
	}
	return out, ctx.Err()
}

// PutStatus records the latest status for a sender.
func (m *Memory) PutStatus(ctx context.Context, status Status) error {
	if status.From == "" {
		return fmt.Errorf("status sender is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.From] = status
	return m.persistLocked(ctx)
}

// Statuses returns unexpired statuses ordered by sender.
func (m *Memory) Statuses(ctx context.Context) ([]Status, error) {
	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.statuses))
	for _, s := range m.statuses {
		if !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out, ctx.Err()
}

// SweepExpired evicts statuses past their expiry, returning the count.
func (m *Memory) SweepExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for from, s := range m.statuses {
		if !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now) {
			delete(m.statuses, from)
			removed++
		}
	}
	if removed > 0 {
		if err := m.persistLocked(context.Background()); err != nil {
			m.log.Warn("persist after status sweep", zap.Error(err))
		}
	}
	return removed
}

// StartSweeper runs the expiry sweep on a ticker until ctx is canceled.
func (m *Memory) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := m.SweepExpired(now); n > 0 {
					m.log.Debug("swept expired statuses", zap.Int("count", n))
				}
			}
		}
	}()
}

func (m *Memory) load() error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store snapshot: %w", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode store snapshot: %w", err)
	}
	if snap.Contacts != nil {
		m.contacts = snap.Contacts
	}
	if snap.Logs != nil {
		m.logs = snap.Logs
	}
	m.files = snap.Files
	if snap.Statuses != nil {
		m.statuses = snap.Statuses
	}
	return nil
}

func (m *Memory) persistLocked(ctx context.Context) error {
	if m.path == "" {
		return ctx.Err()
	}
	snap := snapshotFile{
		Contacts: m.contacts,
		Logs:     m.logs,
		Files:    m.files,
		Statuses: m.statuses,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode store snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("create store directory: %w", err)
	}
	if err := os.WriteFile(m.path, raw, 0o600); err != nil {
		return fmt.Errorf("write store snapshot: %w", err)
	}
	return ctx.Err()
}
