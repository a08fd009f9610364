package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/katibhealth/katib/internal/session"
)

// Compile-time interface check.
var _ Store = (*Mem)(nil)

// Mem is an in-memory Store. It deep-copies sessions on save and load so
// callers can never mutate stored state through a shared pointer. Safe for
// concurrent use.
type Mem struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	doctors  map[string]Doctor
	patients map[string]Patient
}

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		sessions: make(map[string]*session.Session),
		doctors:  make(map[string]Doctor),
		patients: make(map[string]Patient),
	}
}

// Save implements Store.
func (m *Mem) Save(_ context.Context, s *session.Session) error {
	if s.ID == "" {
		return fmt.Errorf("store: session has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Load implements Store.
func (m *Mem) Load(_ context.Context, id string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("store: session %s: %w", id, session.ErrNotFound)
	}
	return s.Clone(), nil
}

// FindByAudioHash implements Store.
func (m *Mem) FindByAudioHash(_ context.Context, hash string) (string, error) {
	if hash == "" {
		return "", nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.AudioHash == hash {
			return s.ID, nil
		}
	}
	return "", nil
}

// ListRecent implements Store.
func (m *Mem) ListRecent(_ context.Context, limit int) ([]session.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]session.Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, session.Summary{
			ID:          s.ID,
			DoctorID:    s.DoctorID,
			PatientID:   s.PatientID,
			CreatedAt:   s.CreatedAt,
			UpdatedAt:   s.UpdatedAt,
			Stage:       s.Stage,
			ExportCount: s.ExportCount,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertDoctor implements Store.
func (m *Mem) UpsertDoctor(_ context.Context, d Doctor) error {
	if d.ID == "" {
		return fmt.Errorf("store: doctor has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
	return nil
}

// UpsertPatient implements Store.
func (m *Mem) UpsertPatient(_ context.Context, p Patient) error {
	if p.ID == "" {
		return fmt.Errorf("store: patient has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
	return nil
}

// GetDoctor implements Store.
func (m *Mem) GetDoctor(_ context.Context, id string) (Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return Doctor{}, fmt.Errorf("store: doctor %s: %w", id, ErrNotFound)
	}
	return d, nil
}

// GetPatient implements Store.
func (m *Mem) GetPatient(_ context.Context, id string) (Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return Patient{}, fmt.Errorf("store: patient %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// FindPatient implements Store.
func (m *Mem) FindPatient(_ context.Context, name string, limit int) ([]PatientMatch, error) {
	m.mu.RLock()
	candidates := make([]Patient, 0, len(m.patients))
	for _, p := range m.patients {
		candidates = append(candidates, p)
	}
	m.mu.RUnlock()

	return RankPatients(name, candidates, limit), nil
}
