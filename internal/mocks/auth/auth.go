package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen; the
// in-memory adapters cover the richer stateful cases.

import (
	"context"
	"sync"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/domain/model"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.SocialProvider = (*MockSocialProvider)(nil)
	_ ports.RoleStore      = (*MemoryRoleStore)(nil)
	_ ports.ProfileStore   = (*MemoryProfileStore)(nil)
	_ ports.AuditLog       = (*MemoryAuditLog)(nil)
)

// MockSocialProvider simulates an external IdP with deterministic state and
// nonce values.
type MockSocialProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (ports.SocialIdentity, error)

	AuthURL  string
	Identity ports.SocialIdentity

	callCount int
}

// NewMockSocialProvider creates a MockSocialProvider with sensible defaults.
func NewMockSocialProvider(provider domainauth.ProviderID) *MockSocialProvider {
	return &MockSocialProvider{
		AuthURL: "https://mock-idp/auth",
		Identity: ports.SocialIdentity{
			Provider:      provider,
			Subject:       "mock-subject-1",
			Email:         "mock.user@example.com",
			EmailVerified: provider == domainauth.ProviderGoogle,
			DisplayName:   "Mock User",
		},
	}
}

func (m *MockSocialProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.callCount++
	return m.AuthURL, stateFor(m.callCount), nonceFor(m.callCount), nil
}

func (m *MockSocialProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.SocialIdentity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	return m.Identity, nil
}

func stateFor(n int) string { return "state-" + itoa(n) }
func nonceFor(n int) string { return "nonce-" + itoa(n) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// MemoryRoleStore is an in-memory role store for unit tests.
type MemoryRoleStore struct {
	mu      sync.Mutex
	records map[string]model.RoleRecord

	// Err, when set, is returned by every method.
	Err error
	// SetRoleErr, when set, fails only writes.
	SetRoleErr error
	// DeleteErr, when set, fails only deletes.
	DeleteErr error
}

// NewMemoryRoleStore creates an empty in-memory role store.
func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{records: make(map[string]model.RoleRecord)}
}

func (m *MemoryRoleStore) GetRole(ctx context.Context, id string) (domainauth.Role, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domainauth.RoleUser, nil
	}
	return rec.Role, nil
}

func (m *MemoryRoleStore) GetRecord(ctx context.Context, id string) (model.RoleRecord, error) {
	if m.Err != nil {
		return model.RoleRecord{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return model.RoleRecord{}, apperrors.NotFoundf("no role record for user %s", id)
	}
	return rec, nil
}

func (m *MemoryRoleStore) SetRole(ctx context.Context, id string, role domainauth.Role, updatedBy string) error {
	if m.Err != nil {
		return m.Err
	}
	if m.SetRoleErr != nil {
		return m.SetRoleErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = model.RoleRecord{UserID: id, Role: role, UpdatedBy: updatedBy}
	return nil
}

func (m *MemoryRoleStore) ListAll(ctx context.Context) ([]model.RoleRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.RoleRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryRoleStore) Delete(ctx context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// MemoryProfileStore is an in-memory profile store for unit tests.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string]model.Profile

	Err error
}

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]model.Profile)}
}

func (m *MemoryProfileStore) Get(ctx context.Context, id string) (model.Profile, error) {
	if m.Err != nil {
		return model.Profile{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return model.Profile{}, apperrors.NotFoundf("no profile for user %s", id)
	}
	return p, nil
}

func (m *MemoryProfileStore) Upsert(ctx context.Context, profile model.Profile) error {
	if m.Err != nil {
		return m.Err
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = profile
	return nil
}

func (m *MemoryProfileStore) Delete(ctx context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, id)
	return nil
}

// MemoryAuditLog records entries in memory for unit tests.
type MemoryAuditLog struct {
	mu      sync.Mutex
	Entries []model.AuditEntry

	Err error
}

// NewMemoryAuditLog creates an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (m *MemoryAuditLog) Append(ctx context.Context, entry model.AuditEntry) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MemoryAuditLog) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.Entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.AuditEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.Entries[i])
	}
	return out, nil
}

// Last returns the most recent entry, if any.
func (m *MemoryAuditLog) Last() (model.AuditEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Entries) == 0 {
		return model.AuditEntry{}, false
	}
	return m.Entries[len(m.Entries)-1], true
}
