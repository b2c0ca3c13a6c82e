// Package generator converts a stored document into a bounded set of
// multiple-choice questions. A generation run is a cancellable job that
// reports monotonically non-decreasing progress and always delivers
// exactly the requested number of questions on success.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avetrov/examforge/internal/model"
)

var (
	// ErrUnreadableDocument is returned when the source cannot be parsed
	// or yields no analyzable text.
	ErrUnreadableDocument = errors.New("unreadable document")
	// ErrInvalidCount is returned when the target count is outside 1..MaxQuestions.
	ErrInvalidCount = errors.New("invalid question count")
	// ErrAlreadyRunning is returned when a job for the same document is in flight.
	ErrAlreadyRunning = errors.New("generation already running for document")
	// ErrCancelled is the outcome of a cancelled job. No questions are produced.
	ErrCancelled = errors.New("generation cancelled")
	// ErrTimeout is returned when the run exceeds the wall-clock budget.
	ErrTimeout = errors.New("generation timed out")
	// ErrInternal is returned for unexpected faults inside the pipeline.
	ErrInternal = errors.New("internal generation error")
)

// MaxQuestions is the upper bound on questions per generation run.
const MaxQuestions = 20

// JobState is the lifecycle state of one generation job.
type JobState string

const (
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateCancelled JobState = "cancelled"
	StateFailed    JobState = "failed"
)

// Segment is one analyzable slice of the source document.
type Segment struct {
	Index int
	Text  string
}

// Concept is a candidate fact extracted from a segment: a key term and the
// statement it appears in.
type Concept struct {
	Term      string
	Statement string
	Segment   int
}

// Extractor turns a document handle into text segments.
type Extractor interface {
	Extract(ctx context.Context, doc *model.DocumentHandle) ([]Segment, error)
}

// Synthesizer turns extracted concepts into candidate questions. It may
// return fewer or structurally invalid items; the pipeline normalizes and
// tops up to the exact target count.
type Synthesizer interface {
	Synthesize(ctx context.Context, concepts []Concept, count int) ([]model.MCQ, error)
}

// Config tunes the pipeline phases.
type Config struct {
	// ExtractCeiling is the progress percentage the segment-extraction
	// phase grows toward. Synthesis advances from there to 99.
	ExtractCeiling float64
	// Timeout is the wall-clock budget for a whole run.
	Timeout time.Duration
}

// DefaultConfig matches the documented phase split: extraction up to 70%,
// two minutes per run.
func DefaultConfig() Config {
	return Config{ExtractCeiling: 70, Timeout: 2 * time.Minute}
}

// Manager runs generation jobs, allowing at most one in-flight job per
// document handle.
type Manager struct {
	extractor Extractor
	synth     Synthesizer
	cfg       Config

	mu      sync.Mutex
	running map[string]*Job
}

func NewManager(extractor Extractor, synth Synthesizer, cfg Config) *Manager {
	if cfg.ExtractCeiling <= 0 || cfg.ExtractCeiling >= 100 {
		cfg.ExtractCeiling = DefaultConfig().ExtractCeiling
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Manager{
		extractor: extractor,
		synth:     synth,
		cfg:       cfg,
		running:   make(map[string]*Job),
	}
}

// Job is the handle to one generation run.
type Job struct {
	ID          string
	DocumentID  string
	TargetCount int

	cancelFn context.CancelFunc
	done     chan struct{}

	mu         sync.Mutex
	progress   float64
	state      JobState
	cancelled  bool
	onProgress func(percent float64)
	mcqs       []model.MCQ
	err        error
}

// Start launches a generation job for the document. onProgress may be nil;
// when set it is invoked with percentages in [0,100], never after Cancel.
func (m *Manager) Start(ctx context.Context, doc *model.DocumentHandle, count int, onProgress func(percent float64)) (*Job, error) {
	if count < 1 || count > MaxQuestions {
		return nil, fmt.Errorf("%w: %d not in [1,%d]", ErrInvalidCount, count, MaxQuestions)
	}
	if doc == nil {
		return nil, ErrUnreadableDocument
	}

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	job := &Job{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		TargetCount: count,
		cancelFn:    cancel,
		done:        make(chan struct{}),
		state:       StateRunning,
		onProgress:  onProgress,
	}

	m.mu.Lock()
	if _, ok := m.running[doc.ID]; ok {
		m.mu.Unlock()
		cancel()
		return nil, ErrAlreadyRunning
	}
	m.running[doc.ID] = job
	m.mu.Unlock()

	go m.run(runCtx, job, doc)
	return job, nil
}

func (m *Manager) run(ctx context.Context, job *Job, doc *model.DocumentHandle) {
	defer func() {
		job.cancelFn()
		m.mu.Lock()
		delete(m.running, job.DocumentID)
		m.mu.Unlock()
		close(job.done)
	}()

	mcqs, err := m.pipeline(ctx, job, doc)

	job.mu.Lock()
	defer job.mu.Unlock()
	switch {
	case err == nil:
		job.state = StateCompleted
		job.mcqs = mcqs
		slog.Info("generation completed", "job", job.ID, "document", doc.ID, "questions", len(mcqs))
	case errors.Is(err, ErrCancelled):
		job.state = StateCancelled
		job.err = ErrCancelled
		slog.Info("generation cancelled", "job", job.ID, "document", doc.ID)
	case errors.Is(err, ErrTimeout):
		job.state = StateFailed
		job.err = ErrTimeout
		slog.Warn("generation timed out", "job", job.ID, "document", doc.ID)
	case errors.Is(err, ErrUnreadableDocument):
		job.state = StateFailed
		job.err = err
		slog.Warn("generation failed", "job", job.ID, "document", doc.ID, "error", err)
	default:
		job.state = StateFailed
		job.err = fmt.Errorf("%w: %v", ErrInternal, err)
		slog.Error("generation failed", "job", job.ID, "document", doc.ID, "error", err)
	}
}

func (m *Manager) pipeline(ctx context.Context, job *Job, doc *model.DocumentHandle) ([]model.MCQ, error) {
	segments, err := m.extractor.Extract(ctx, doc)
	if err != nil {
		if ctxErr := job.checkpoint(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no text segments", ErrUnreadableDocument)
	}

	// Concept extraction dominates wall-clock time. Progress grows toward
	// the configured ceiling, one step per segment; cancellation is
	// observed at segment boundaries only.
	var concepts []Concept
	for i, seg := range segments {
		if err := job.checkpoint(ctx); err != nil {
			return nil, err
		}
		concepts = append(concepts, extractConcepts(seg)...)
		job.report(m.cfg.ExtractCeiling * float64(i+1) / float64(len(segments)))
	}
	if len(concepts) == 0 {
		return nil, fmt.Errorf("%w: no extractable concepts", ErrUnreadableDocument)
	}

	if err := job.checkpoint(ctx); err != nil {
		return nil, err
	}
	raw, err := m.synth.Synthesize(ctx, concepts, job.TargetCount)
	if err != nil {
		if ctxErr := job.checkpoint(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	// Synthesis advances from the extraction ceiling toward 99, one step
	// per accepted question.
	synthSpan := 99 - m.cfg.ExtractCeiling
	mcqs := make([]model.MCQ, 0, job.TargetCount)
	accept := func(q model.MCQ) {
		q.ID = len(mcqs) + 1
		mcqs = append(mcqs, q)
		job.report(m.cfg.ExtractCeiling + synthSpan*float64(len(mcqs))/float64(job.TargetCount))
	}
	for _, q := range raw {
		if q.Valid() {
			accept(q)
		}
		if len(mcqs) == job.TargetCount {
			break
		}
	}
	// The contract never under-delivers: top up deterministically from the
	// extracted concepts when the synthesizer came up short.
	if len(mcqs) < job.TargetCount {
		for _, q := range heuristicQuestions(concepts, job.TargetCount-len(mcqs), len(raw)) {
			accept(q)
		}
	}

	if err := job.checkpoint(ctx); err != nil {
		return nil, err
	}
	job.report(99)
	job.report(100)
	return mcqs, nil
}

// checkpoint converts a pending cancellation or deadline into the job's
// terminal error. Called between segments, never mid-segment.
func (j *Job) checkpoint(ctx context.Context) error {
	j.mu.Lock()
	cancelled := j.cancelled
	j.mu.Unlock()
	if cancelled {
		return ErrCancelled
	}
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrCancelled
	default:
		return nil
	}
}

// report publishes progress. Percentages never decrease and no callback
// fires once the job has been cancelled.
func (j *Job) report(percent float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled {
		return
	}
	if percent > 100 {
		percent = 100
	}
	if percent <= j.progress {
		return
	}
	j.progress = percent
	if j.onProgress != nil {
		j.onProgress(percent)
	}
}

// Cancel requests cooperative cancellation. After Cancel returns, no
// further progress callbacks fire.
func (j *Job) Cancel() {
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()
	j.cancelFn()
}

// Progress returns the last reported percentage.
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// State returns the job's current lifecycle state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Result returns the generated questions after completion. Before the job
// finishes it returns nil, nil.
func (j *Job) Result() ([]model.MCQ, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateRunning {
		return nil, nil
	}
	return j.mcqs, j.err
}
