// Package store persists sessions, doctors, and patients. The postgres
// subpackage is the production implementation; Mem backs tests and
// single-process deployments without a database.
package store

import (
	"context"
	"errors"

	"github.com/katibhealth/katib/internal/session"
)

// ErrNotFound is returned when a requested record does not exist. Session
// lookups wrap [session.ErrNotFound] as well so pipeline callers can check
// either sentinel.
var ErrNotFound = errors.New("store: not found")

// Doctor is a clinician record.
type Doctor struct {
	ID   string
	Name string
}

// Patient is a patient record.
type Patient struct {
	ID   string
	Name string
}

// PatientMatch is a fuzzy name-lookup hit. Lower distance is a closer match;
// zero is exact.
type PatientMatch struct {
	Patient  Patient
	Distance int
}

// Store is the full persistence surface. The session pipeline consumes only
// its [session.Store] subset.
type Store interface {
	session.Store

	// ListRecent returns up to limit session summaries, most recently
	// updated first.
	ListRecent(ctx context.Context, limit int) ([]session.Summary, error)

	// UpsertDoctor inserts or updates a doctor record.
	UpsertDoctor(ctx context.Context, d Doctor) error

	// UpsertPatient inserts or updates a patient record.
	UpsertPatient(ctx context.Context, p Patient) error

	// GetDoctor returns the doctor, or an error wrapping [ErrNotFound].
	GetDoctor(ctx context.Context, id string) (Doctor, error)

	// GetPatient returns the patient, or an error wrapping [ErrNotFound].
	GetPatient(ctx context.Context, id string) (Patient, error)

	// FindPatient fuzzily matches patients by name, closest first.
	// Useful because transcribed Arabic names rarely match their stored
	// spelling exactly.
	FindPatient(ctx context.Context, name string, limit int) ([]PatientMatch, error)
}
