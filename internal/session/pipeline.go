package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/katibhealth/katib/internal/nlp"
	"github.com/katibhealth/katib/internal/transcript"
	"github.com/katibhealth/katib/pkg/arabic"
	"github.com/katibhealth/katib/pkg/audio"
	"github.com/katibhealth/katib/pkg/provider/llm"
	"github.com/katibhealth/katib/pkg/provider/transcribe"
	"github.com/katibhealth/katib/pkg/render"
	"github.com/katibhealth/katib/pkg/types"
)

// ErrNotFound is returned when no session exists under the requested id.
var ErrNotFound = errors.New("session not found")

// Store is the persistence collaborator the pipeline needs. The full storage
// layer offers more (doctors, patients, listings); the pipeline depends only
// on this slice of it.
type Store interface {
	// Save persists the session, overwriting any previous state.
	Save(ctx context.Context, s *Session) error

	// Load returns the session, or an error wrapping [ErrNotFound].
	Load(ctx context.Context, id string) (*Session, error)

	// FindByAudioHash returns the id of an earlier session whose attached
	// audio has the given content hash, or "" when none exists.
	FindByAudioHash(ctx context.Context, hash string) (string, error)
}

// Observer receives pipeline telemetry. The observe package provides the
// OpenTelemetry-backed implementation; a nil Observer disables telemetry.
type Observer interface {
	StageDuration(ctx context.Context, stage string, d time.Duration)
	RetryScheduled(ctx context.Context, stage string)
	ProviderError(ctx context.Context, stage string)
	SessionsActive(ctx context.Context, delta int)
	DocumentExported(ctx context.Context)
}

// Renderer turns session state into an export document. *render.Renderer is
// the production implementation.
type Renderer interface {
	Render(in render.Input) (*render.Document, error)
}

// EditPolicy decides what happens to user-edited note fields when an
// automated re-run produces fresh values for them.
type EditPolicy string

const (
	// EditPolicyPreserve keeps user-edited field values across re-runs
	// unless the caller confirms an overwrite. The safe default.
	EditPolicyPreserve EditPolicy = "preserve"

	// EditPolicyOverwrite lets re-runs replace edited fields without
	// confirmation.
	EditPolicyOverwrite EditPolicy = "overwrite"
)

// Valid reports whether p is a known policy.
func (p EditPolicy) Valid() bool {
	return p == EditPolicyPreserve || p == EditPolicyOverwrite
}

// ManagerConfig carries the dependencies and policies for a [Manager].
// Store, Transcriber, and LLM are required; the rest have usable defaults.
type ManagerConfig struct {
	Store       Store
	Transcriber transcribe.Transcriber

	// LLM backs summarization, analysis, and best-effort speaker tagging.
	LLM llm.Provider

	// Renderer produces export documents. Export fails without one.
	Renderer Renderer

	// Normalizer canonicalizes transcript text. Defaults to stripping
	// diacritics and western digits.
	Normalizer *arabic.Normalizer

	// Corrector fixes misheard clinical vocabulary in transcribed
	// segments. Optional; nil skips the correction pass.
	Corrector transcript.Pipeline

	// Schema is the note field set. Defaults to [types.DefaultNoteSchema].
	Schema types.FieldSchema

	// Retry bounds the transcription retry loop.
	Retry RetryConfig

	// EditPolicy is the re-run behavior for edited fields. Defaults to
	// [EditPolicyPreserve].
	EditPolicy EditPolicy

	// Language is the default consultation language hint, e.g. "ar".
	Language string

	// Observer receives telemetry; nil disables it.
	Observer Observer

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Manager runs the session pipeline. It serializes operations per session
// and is safe for concurrent use across sessions.
type Manager struct {
	store       Store
	transcriber transcribe.Transcriber
	summarizer  *nlp.Summarizer
	analyzer    *nlp.Analyzer
	tagger      *nlp.SpeakerTagger
	renderer    Renderer
	normalizer  *arabic.Normalizer
	corrector   transcript.Pipeline
	schema      types.FieldSchema
	retry       RetryConfig
	editPolicy  EditPolicy
	language    string
	obs         Observer
	log         *slog.Logger

	events *notifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: Store must not be nil")
	}
	if cfg.Transcriber == nil {
		return nil, errors.New("session: Transcriber must not be nil")
	}
	if cfg.LLM == nil {
		return nil, errors.New("session: LLM must not be nil")
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = &arabic.Normalizer{
			Diacritics: arabic.DiacriticsStrip,
			Digits:     arabic.NumeralsWestern,
		}
	}
	if len(cfg.Schema.Fields) == 0 {
		cfg.Schema = types.DefaultNoteSchema()
	}
	if cfg.EditPolicy == "" {
		cfg.EditPolicy = EditPolicyPreserve
	}
	if !cfg.EditPolicy.Valid() {
		return nil, fmt.Errorf("session: unknown edit policy %q", cfg.EditPolicy)
	}
	if cfg.Language == "" {
		cfg.Language = "ar"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		store:       cfg.Store,
		transcriber: cfg.Transcriber,
		summarizer:  nlp.NewSummarizer(cfg.LLM),
		analyzer:    nlp.NewAnalyzer(cfg.LLM),
		tagger:      nlp.NewSpeakerTagger(cfg.LLM, cfg.Logger),
		renderer:    cfg.Renderer,
		normalizer:  cfg.Normalizer,
		corrector:   cfg.Corrector,
		schema:      cfg.Schema,
		retry:       cfg.Retry,
		editPolicy:  cfg.EditPolicy,
		language:    cfg.Language,
		obs:         cfg.Observer,
		log:         cfg.Logger,
		events:      newNotifier(),
		locks:       make(map[string]*sync.Mutex),
	}, nil
}

// Subscribe registers for stage-change notifications. The cancel func must be
// called when the subscriber is done.
func (m *Manager) Subscribe() (<-chan StageChange, func()) {
	return m.events.subscribe()
}

// Create starts a new session for a doctor/patient pair.
func (m *Manager) Create(ctx context.Context, doctorID, patientID string) (*Session, error) {
	if doctorID == "" || patientID == "" {
		return nil, errors.New("session: doctorID and patientID must not be empty")
	}

	now := time.Now().UTC()
	s := &Session{
		ID:        newID(),
		DoctorID:  doctorID,
		PatientID: patientID,
		CreatedAt: now,
		UpdatedAt: now,
		Stage:     StageCreated,
		Language:  m.language,
		Note:      types.NewStructuredNote(m.schema),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("session: save new session: %w", err)
	}

	if m.obs != nil {
		m.obs.SessionsActive(ctx, 1)
	}
	m.log.Info("session created", "session", s.ID, "doctor", doctorID, "patient", patientID)
	return s, nil
}

// AttachAudio decodes and attaches a recording, moving the session to
// StageRecorded. Identical audio seen on an earlier session is noted on the
// session and logged, not rejected.
func (m *Manager) AttachAudio(ctx context.Context, id string, wav []byte) (*Session, error) {
	clip, err := audio.Decode(wav)
	if err != nil {
		return nil, fmt.Errorf("session: attach audio: %w", err)
	}

	return m.update(ctx, id, func(s *Session) error {
		dup, err := m.store.FindByAudioHash(ctx, clip.Hash())
		if err != nil {
			return fmt.Errorf("audio hash lookup: %w", err)
		}
		if dup != "" && dup != s.ID {
			m.log.Info("identical audio already transcribed on another session",
				"session", s.ID, "duplicate_of", dup, "hash", clip.Hash())
			s.DuplicateOf = dup
		}

		s.Audio = clip
		s.AudioHash = clip.Hash()
		// New audio invalidates everything derived from the old recording.
		s.Segments = nil
		s.Transcript = ""
		m.invalidateDerived(s)
		s.Stage = StageRecorded
		return nil
	})
}

// Transcribe runs the transcription stage: provider call with bounded
// exponential retry on transient failures, best-effort speaker tagging, and
// Arabic normalization of every segment. Requires attached audio.
func (m *Manager) Transcribe(ctx context.Context, id string) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		if s.Audio == nil {
			return &TransitionError{SessionID: s.ID, From: s.Stage, Requires: StageRecorded}
		}

		start := time.Now()
		segments, err := retryDo(ctx, m.retry, transcribe.IsTransient,
			func(attempt int, cause error) {
				if m.obs != nil {
					m.obs.RetryScheduled(ctx, "transcribe")
				}
				m.log.Warn("transcription failed, retrying",
					"session", s.ID, "attempt", attempt, "error", cause)
			},
			func(ctx context.Context) ([]types.TranscriptSegment, error) {
				return m.transcriber.Transcribe(ctx, transcribe.Request{
					Clip:     s.Audio,
					Language: s.Language,
				})
			})
		if err != nil {
			if m.obs != nil {
				m.obs.ProviderError(ctx, "transcribe")
			}
			return fmt.Errorf("transcribe: %w", err)
		}

		segments = m.tagger.Tag(ctx, segments)

		for i := range segments {
			text, nerr := m.normalizer.Normalize(segments[i].Text)
			if nerr != nil {
				return fmt.Errorf("normalize segment %d: %w", i, nerr)
			}
			segments[i].Text = text
		}

		if m.corrector != nil {
			var corrections []transcript.Correction
			segments, corrections = m.corrector.Correct(segments)
			if len(corrections) > 0 {
				m.log.Info("vocabulary corrections applied",
					"session", s.ID, "count", len(corrections))
			}
		}

		types.SortSegments(segments)

		s.Segments = segments
		s.Transcript = types.JoinSegments(segments)
		// A fresh transcript invalidates the derived note and analysis.
		m.invalidateDerived(s)
		s.Stage = StageTranscribed

		if m.obs != nil {
			m.obs.StageDuration(ctx, "transcribe", time.Since(start))
		}
		m.log.Info("session transcribed",
			"session", s.ID, "segments", len(segments), "model", m.transcriber.Model())
		return nil
	})
}

// Process runs summarization and analysis concurrently on the normalized
// transcript and merges both results in a single transition. confirmOverwrite
// lets the new summary replace user-edited fields for this invocation only.
func (m *Manager) Process(ctx context.Context, id string, confirmOverwrite bool) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		if !s.Stage.AtLeast(StageTranscribed) || s.Transcript == "" {
			return &TransitionError{SessionID: s.ID, From: s.Stage, Requires: StageTranscribed}
		}

		start := time.Now()
		var (
			note     types.StructuredNote
			analysis types.AnalysisResult
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			note, err = m.summarizer.Summarize(gctx, s.Transcript, m.schema)
			return err
		})
		g.Go(func() error {
			var err error
			analysis, err = m.analyzer.Analyze(gctx, s.Transcript)
			return err
		})
		if err := g.Wait(); err != nil {
			if m.obs != nil {
				m.obs.ProviderError(ctx, "process")
			}
			return fmt.Errorf("process: %w", err)
		}

		m.mergeNote(s, note, confirmOverwrite)
		s.Analysis = analysis
		s.advance(StageAnalyzed)

		if m.obs != nil {
			m.obs.StageDuration(ctx, "process", time.Since(start))
		}
		m.log.Info("session summarized and analyzed",
			"session", s.ID,
			"keywords", len(analysis.Keywords),
			"diagnoses", len(analysis.Diagnoses))
		return nil
	})
}

// Review applies manual field edits and marks the session reviewed. Edits are
// recorded in the history and protected from later automated re-runs under
// the preserve policy. Unknown fields are rejected. Reviewed is re-enterable,
// including after an export.
func (m *Manager) Review(ctx context.Context, id string, edits map[string]string) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		if !s.Stage.AtLeast(StageSummarized) {
			return &TransitionError{SessionID: s.ID, From: s.Stage, Requires: StageSummarized}
		}

		now := time.Now().UTC()
		for field, value := range edits {
			if !m.schema.Contains(field) {
				return fmt.Errorf("review: unknown note field %q", field)
			}
			old := s.Note.Fields[field]
			if old == value {
				continue
			}
			s.Note.Fields[field] = value
			s.Note.Edited[field] = true
			s.EditHistory = append(s.EditHistory, Edit{Field: field, Old: old, New: value, At: now})
		}
		s.Stage = StageReviewed
		return nil
	})
}

// Export renders the current session state into a new document version.
// The session must carry a note; the document is derived state and never
// stored on the session.
func (m *Manager) Export(ctx context.Context, id string, doctorName, patientName string) (*render.Document, error) {
	if m.renderer == nil {
		return nil, errors.New("session: no renderer configured")
	}

	var doc *render.Document
	_, err := m.update(ctx, id, func(s *Session) error {
		if !s.Stage.AtLeast(StageSummarized) {
			return &TransitionError{SessionID: s.ID, From: s.Stage, Requires: StageSummarized}
		}

		start := time.Now()
		d, rerr := m.renderer.Render(render.Input{
			Doctor:   doctorName,
			Patient:  patientName,
			Date:     s.CreatedAt,
			Schema:   m.schema,
			Note:     s.Note,
			Segments: s.Segments,
			Analysis: s.Analysis,
		})
		if rerr != nil {
			// A render failure never corrupts session state.
			return rerr
		}
		doc = d

		s.ExportCount++
		s.Stage = StageExported
		if m.obs != nil {
			m.obs.StageDuration(ctx, "render", time.Since(start))
			m.obs.DocumentExported(ctx)
			if s.ExportCount == 1 {
				m.obs.SessionsActive(ctx, -1)
			}
		}
		m.log.Info("session exported",
			"session", s.ID, "version", s.ExportCount, "pages", d.Pages)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Load returns the current session state.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	return m.store.Load(ctx, id)
}

// invalidateDerived discards automatically derived downstream state while
// honoring the edit policy: user-edited field values survive, everything the
// machine produced is cleared.
func (m *Manager) invalidateDerived(s *Session) {
	fresh := types.NewStructuredNote(m.schema)
	if m.editPolicy == EditPolicyPreserve {
		for field, edited := range s.Note.Edited {
			if edited {
				fresh.Fields[field] = s.Note.Fields[field]
				fresh.Edited[field] = true
			}
		}
	}
	s.Note = fresh
	s.Analysis = types.AnalysisResult{}
}

// mergeNote applies a freshly summarized note, keeping user-edited values
// unless the policy is overwrite or the caller confirmed one.
func (m *Manager) mergeNote(s *Session, fresh types.StructuredNote, confirmOverwrite bool) {
	overwrite := confirmOverwrite || m.editPolicy == EditPolicyOverwrite
	for _, field := range m.schema.Fields {
		if !overwrite && s.Note.Edited[field] {
			continue
		}
		s.Note.Fields[field] = fresh.Fields[field]
		s.Note.Edited[field] = false
	}
}

// update serializes a mutation against one session: lock, load, mutate a
// copy, save, publish the stage change. On any error the stored session is
// untouched, so failures and cancellations leave the last stable stage.
func (m *Manager) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	stored, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	s := stored.Clone()
	from := s.Stage
	if err := fn(s); err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Now().UTC()

	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("session: save %s: %w", id, err)
	}

	if s.Stage != from {
		m.events.publish(StageChange{SessionID: s.ID, From: from, To: s.Stage})
	}
	return s, nil
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// newID produces a random 16-byte hex string.
func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("session: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}
