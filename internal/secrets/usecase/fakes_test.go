package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	alertsDomain "github.com/keyfold/keyfold/internal/alerts/domain"
	auditDomain "github.com/keyfold/keyfold/internal/audit/domain"
	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
	secretsDomain "github.com/keyfold/keyfold/internal/secrets/domain"
)

// fakeTxManager runs the function directly and restores the fakes' state when
// it fails, mirroring a rollback.
type fakeTxManager struct {
	secrets *memorySecretRepository
	audits  *memoryAuditRepository
}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	secretsSnap := f.secrets.snapshot()
	auditsSnap := f.audits.snapshot()
	if err := fn(ctx); err != nil {
		f.secrets.restore(secretsSnap)
		f.audits.restore(auditsSnap)
		return err
	}
	return nil
}

// fastDeriver derives keys with a single SHA-256 pass so lifecycle tests do
// not pay the full derivation cost on every operation. It keeps the real
// deriver's contract: deterministic, salt-sensitive, principal-isolating.
type fastDeriver struct{}

func (fastDeriver) Derive(principal string, salt []byte, paramsVersion uint) ([]byte, error) {
	if len(salt) != cryptoDomain.SaltSize {
		return nil, cryptoDomain.ErrConfiguration
	}
	if paramsVersion != 1 {
		return nil, cryptoDomain.ErrUnknownParamsVersion
	}
	h := sha256.New()
	h.Write([]byte(principal))
	h.Write(salt)
	return h.Sum(nil), nil
}

func (fastDeriver) GenerateSalt() ([]byte, error) {
	salt := make([]byte, cryptoDomain.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func (d fastDeriver) Verify(candidate string, salt []byte, paramsVersion uint, expectedKey []byte) (bool, error) {
	key, err := d.Derive(candidate, salt, paramsVersion)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}

func (fastDeriver) ParamsVersion() uint { return 1 }

func (fastDeriver) PepperFingerprint() string { return "" }

// memorySecretRepository is an in-memory SecretRepository with the same CAS
// semantics as the SQL implementations.
type memorySecretRepository struct {
	mu      sync.Mutex
	secrets []*secretsDomain.Secret

	// failSupersedes makes the next n Supersede calls lose the CAS.
	failSupersedes int
}

func (m *memorySecretRepository) InsertVersion(_ context.Context, secret *secretsDomain.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.secrets {
		if existing.Principal == secret.Principal && existing.Type == secret.Type && existing.Version == secret.Version {
			return secretsDomain.ErrConcurrentModification
		}
	}
	clone := *secret
	m.secrets = append(m.secrets, &clone)
	return nil
}

func (m *memorySecretRepository) GetActive(_ context.Context, principal string, secretType secretsDomain.SecretType) (*secretsDomain.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, secret := range m.secrets {
		if secret.Principal == principal && secret.Type == secretType && secret.IsActive && secret.DeletedAt == nil {
			clone := *secret
			return &clone, nil
		}
	}
	return nil, secretsDomain.ErrSecretNotFound
}

func (m *memorySecretRepository) GetLatestVersion(_ context.Context, principal string, secretType secretsDomain.SecretType) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest uint
	for _, secret := range m.secrets {
		if secret.Principal == principal && secret.Type == secretType && secret.Version > latest {
			latest = secret.Version
		}
	}
	return latest, nil
}

func (m *memorySecretRepository) Supersede(_ context.Context, principal string, secretType secretsDomain.SecretType, expectedVersion uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSupersedes > 0 {
		m.failSupersedes--
		return secretsDomain.ErrConcurrentModification
	}
	for _, secret := range m.secrets {
		if secret.Principal == principal && secret.Type == secretType && secret.Version == expectedVersion && secret.IsActive {
			secret.IsActive = false
			return nil
		}
	}
	return secretsDomain.ErrConcurrentModification
}

func (m *memorySecretRepository) Deactivate(_ context.Context, principal string, secretType secretsDomain.SecretType, expectedVersion uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, secret := range m.secrets {
		if secret.Principal == principal && secret.Type == secretType && secret.Version == expectedVersion && secret.IsActive {
			secret.IsActive = false
			deletedAt := at
			secret.DeletedAt = &deletedAt
			return nil
		}
	}
	return secretsDomain.ErrConcurrentModification
}

func (m *memorySecretRepository) TouchLastAccessed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, secret := range m.secrets {
		if secret.ID == id {
			accessedAt := at
			secret.LastAccessedAt = &accessedAt
			return nil
		}
	}
	return secretsDomain.ErrSecretNotFound
}

func (m *memorySecretRepository) ListActive(_ context.Context, principal string) ([]*secretsDomain.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*secretsDomain.Secret, 0)
	for _, secret := range m.secrets {
		if secret.Principal == principal && secret.IsActive && secret.DeletedAt == nil {
			clone := *secret
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *memorySecretRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]*secretsDomain.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*secretsDomain.Secret, 0)
	for _, secret := range m.secrets {
		if len(result) == limit {
			break
		}
		if secret.IsActive && secret.DeletedAt == nil && secret.Expired(now) {
			clone := *secret
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *memorySecretRepository) Purge(_ context.Context, principal string, secretType secretsDomain.SecretType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.secrets[:0]
	var purged int64
	for _, secret := range m.secrets {
		if secret.Principal == principal && secret.Type == secretType && secret.DeletedAt != nil {
			purged++
			continue
		}
		kept = append(kept, secret)
	}
	m.secrets = kept
	return purged, nil
}

func (m *memorySecretRepository) snapshot() []*secretsDomain.Secret {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make([]*secretsDomain.Secret, len(m.secrets))
	for i, secret := range m.secrets {
		clone := *secret
		snap[i] = &clone
	}
	return snap
}

func (m *memorySecretRepository) restore(snap []*secretsDomain.Secret) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets = snap
}

// tamperEnvelope corrupts the stored ciphertext of the active version.
func (m *memorySecretRepository) tamperEnvelope(principal string, secretType secretsDomain.SecretType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, secret := range m.secrets {
		if secret.Principal == principal && secret.Type == secretType && secret.IsActive {
			env, err := cryptoDomain.ParseEnvelope(secret.Envelope)
			if err != nil {
				return err
			}
			env.Tag[0] ^= 0xFF
			secret.Envelope = env.Encode()
			return nil
		}
	}
	return fmt.Errorf("no active secret to tamper with")
}

// captureDispatcher records dispatched alerts.
type captureDispatcher struct {
	mu     sync.Mutex
	events []alertsDomain.Event
}

func (c *captureDispatcher) Dispatch(_ context.Context, event alertsDomain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureDispatcher) kinds() []alertsDomain.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]alertsDomain.Kind, 0, len(c.events))
	for _, event := range c.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

// memoryAuditRepository is the in-memory audit chain used by lifecycle tests.
type memoryAuditRepository struct {
	mu        sync.Mutex
	entries   []*auditDomain.AuditEntry
	appendErr error

	// failAppends makes the next n Append calls lose the sequence race.
	failAppends int
}

func (m *memoryAuditRepository) Append(_ context.Context, entry *auditDomain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	if m.failAppends > 0 {
		m.failAppends--
		return auditDomain.ErrSequenceConflict
	}
	clone := *entry
	m.entries = append(m.entries, &clone)
	return nil
}

func (m *memoryAuditRepository) GetLast(_ context.Context) (*auditDomain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil, auditDomain.ErrEntryNotFound
	}
	clone := *m.entries[len(m.entries)-1]
	return &clone, nil
}

func (m *memoryAuditRepository) ReadRange(_ context.Context, from, to uint64) ([]*auditDomain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*auditDomain.AuditEntry, 0)
	for _, entry := range m.entries {
		if entry.SequenceIndex >= from && entry.SequenceIndex < to {
			clone := *entry
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *memoryAuditRepository) snapshot() []*auditDomain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make([]*auditDomain.AuditEntry, len(m.entries))
	for i, entry := range m.entries {
		clone := *entry
		snap[i] = &clone
	}
	return snap
}

func (m *memoryAuditRepository) restore(snap []*auditDomain.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = snap
}

func (m *memoryAuditRepository) actions() []auditDomain.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]auditDomain.Action, 0, len(m.entries))
	for _, entry := range m.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}
