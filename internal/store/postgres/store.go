package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/katibhealth/katib/internal/session"
	"github.com/katibhealth/katib/internal/store"
	"github.com/katibhealth/katib/pkg/audio"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed persistence layer. Sessions are stored as
// one row each: scalar columns for queryable fields, JSONB for the nested
// transcript/note/analysis structures, and the original WAV container as
// BYTEA so audio can be re-transcribed after a restart.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, verifies the connection, and runs
// [Migrate]. Close the store when no longer needed.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	segments, err := json.Marshal(sess.Segments)
	if err != nil {
		return fmt.Errorf("postgres store: marshal segments: %w", err)
	}
	note, err := json.Marshal(sess.Note)
	if err != nil {
		return fmt.Errorf("postgres store: marshal note: %w", err)
	}
	analysis, err := json.Marshal(sess.Analysis)
	if err != nil {
		return fmt.Errorf("postgres store: marshal analysis: %w", err)
	}
	history, err := json.Marshal(sess.EditHistory)
	if err != nil {
		return fmt.Errorf("postgres store: marshal edit history: %w", err)
	}

	var wav []byte
	if sess.Audio != nil {
		wav = sess.Audio.Container()
	}

	const q = `
		INSERT INTO sessions
		    (id, doctor_id, patient_id, created_at, updated_at, stage,
		     audio, audio_hash, duplicate_of, language, transcript,
		     segments, note, analysis, edit_history, export_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
		    updated_at   = EXCLUDED.updated_at,
		    stage        = EXCLUDED.stage,
		    audio        = EXCLUDED.audio,
		    audio_hash   = EXCLUDED.audio_hash,
		    duplicate_of = EXCLUDED.duplicate_of,
		    language     = EXCLUDED.language,
		    transcript   = EXCLUDED.transcript,
		    segments     = EXCLUDED.segments,
		    note         = EXCLUDED.note,
		    analysis     = EXCLUDED.analysis,
		    edit_history = EXCLUDED.edit_history,
		    export_count = EXCLUDED.export_count`

	_, err = s.pool.Exec(ctx, q,
		sess.ID, sess.DoctorID, sess.PatientID, sess.CreatedAt, sess.UpdatedAt,
		string(sess.Stage), wav, sess.AudioHash, sess.DuplicateOf, sess.Language,
		sess.Transcript, segments, note, analysis, history, sess.ExportCount,
	)
	if err != nil {
		return fmt.Errorf("postgres store: save session: %w", err)
	}
	return nil
}

// Load implements store.Store.
func (s *Store) Load(ctx context.Context, id string) (*session.Session, error) {
	const q = `
		SELECT id, doctor_id, patient_id, created_at, updated_at, stage,
		       audio, audio_hash, duplicate_of, language, transcript,
		       segments, note, analysis, edit_history, export_count
		FROM   sessions
		WHERE  id = $1`

	var (
		sess     session.Session
		stage    string
		wav      []byte
		segments []byte
		note     []byte
		analysis []byte
		history  []byte
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&sess.ID, &sess.DoctorID, &sess.PatientID, &sess.CreatedAt, &sess.UpdatedAt,
		&stage, &wav, &sess.AudioHash, &sess.DuplicateOf, &sess.Language,
		&sess.Transcript, &segments, &note, &analysis, &history, &sess.ExportCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: session %s: %w", id, session.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load session: %w", err)
	}

	sess.Stage = session.Stage(stage)
	if len(wav) > 0 {
		clip, derr := audio.Decode(wav)
		if derr != nil {
			return nil, fmt.Errorf("postgres store: decode stored audio: %w", derr)
		}
		sess.Audio = clip
	}
	if err := json.Unmarshal(segments, &sess.Segments); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal segments: %w", err)
	}
	if err := json.Unmarshal(note, &sess.Note); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal note: %w", err)
	}
	if err := json.Unmarshal(analysis, &sess.Analysis); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal analysis: %w", err)
	}
	if err := json.Unmarshal(history, &sess.EditHistory); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal edit history: %w", err)
	}
	if sess.Note.Fields == nil {
		sess.Note.Fields = make(map[string]string)
	}
	if sess.Note.Edited == nil {
		sess.Note.Edited = make(map[string]bool)
	}
	return &sess, nil
}

// FindByAudioHash implements store.Store.
func (s *Store) FindByAudioHash(ctx context.Context, hash string) (string, error) {
	if hash == "" {
		return "", nil
	}
	const q = `SELECT id FROM sessions WHERE audio_hash = $1 ORDER BY created_at LIMIT 1`

	var id string
	err := s.pool.QueryRow(ctx, q, hash).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres store: find by audio hash: %w", err)
	}
	return id, nil
}

// ListRecent implements store.Store.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]session.Summary, error) {
	q := `
		SELECT id, doctor_id, patient_id, created_at, updated_at, stage, export_count
		FROM   sessions
		ORDER  BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list recent: %w", err)
	}
	defer rows.Close()

	var out []session.Summary
	for rows.Next() {
		var (
			sum   session.Summary
			stage string
		)
		if err := rows.Scan(&sum.ID, &sum.DoctorID, &sum.PatientID,
			&sum.CreatedAt, &sum.UpdatedAt, &stage, &sum.ExportCount); err != nil {
			return nil, fmt.Errorf("postgres store: scan summary: %w", err)
		}
		sum.Stage = session.Stage(stage)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list recent: %w", err)
	}
	return out, nil
}

// UpsertDoctor implements store.Store.
func (s *Store) UpsertDoctor(ctx context.Context, d store.Doctor) error {
	const q = `
		INSERT INTO doctors (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	if _, err := s.pool.Exec(ctx, q, d.ID, d.Name); err != nil {
		return fmt.Errorf("postgres store: upsert doctor: %w", err)
	}
	return nil
}

// UpsertPatient implements store.Store.
func (s *Store) UpsertPatient(ctx context.Context, p store.Patient) error {
	const q = `
		INSERT INTO patients (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	if _, err := s.pool.Exec(ctx, q, p.ID, p.Name); err != nil {
		return fmt.Errorf("postgres store: upsert patient: %w", err)
	}
	return nil
}

// GetDoctor implements store.Store.
func (s *Store) GetDoctor(ctx context.Context, id string) (store.Doctor, error) {
	var d store.Doctor
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM doctors WHERE id = $1`, id).
		Scan(&d.ID, &d.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Doctor{}, fmt.Errorf("postgres store: doctor %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.Doctor{}, fmt.Errorf("postgres store: get doctor: %w", err)
	}
	return d, nil
}

// GetPatient implements store.Store.
func (s *Store) GetPatient(ctx context.Context, id string) (store.Patient, error) {
	var p store.Patient
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Patient{}, fmt.Errorf("postgres store: patient %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.Patient{}, fmt.Errorf("postgres store: get patient: %w", err)
	}
	return p, nil
}

// FindPatient implements store.Store. Candidate rows are fetched with a
// cheap ILIKE prefilter where possible, then ranked by edit distance in
// process; the patients table is small enough that a full scan fallback is
// acceptable.
func (s *Store) FindPatient(ctx context.Context, name string, limit int) ([]store.PatientMatch, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM patients`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: find patient: %w", err)
	}
	defer rows.Close()

	var candidates []store.Patient
	for rows.Next() {
		var p store.Patient
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("postgres store: scan patient: %w", err)
		}
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: find patient: %w", err)
	}

	return store.RankPatients(name, candidates, limit), nil
}
