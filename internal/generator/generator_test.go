package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avetrov/examforge/internal/model"
)

// stubExtractor serves canned segments without touching storage.
type stubExtractor struct {
	segments []Segment
	err      error
	block    chan struct{}
}

func (s *stubExtractor) Extract(ctx context.Context, _ *model.DocumentHandle) ([]Segment, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.segments, nil
}

// blockingSynth parks until the context ends.
type blockingSynth struct{}

func (blockingSynth) Synthesize(ctx context.Context, _ []Concept, _ int) ([]model.MCQ, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// shortSynth returns fewer questions than requested.
type shortSynth struct{ n int }

func (s shortSynth) Synthesize(_ context.Context, concepts []Concept, _ int) ([]model.MCQ, error) {
	return heuristicQuestions(concepts, s.n, 0), nil
}

// brokenSynth returns structurally invalid questions.
type brokenSynth struct{}

func (brokenSynth) Synthesize(_ context.Context, _ []Concept, count int) ([]model.MCQ, error) {
	mcqs := make([]model.MCQ, 0, count)
	for i := 0; i < count; i++ {
		mcqs = append(mcqs, model.MCQ{
			Question:     "Broken?",
			Options:      []string{"a", "a", "b"},
			CorrectIndex: 7,
		})
	}
	return mcqs, nil
}

func testSegments(n int) []Segment {
	segments := make([]Segment, 0, n)
	for i := 0; i < n; i++ {
		segments = append(segments, Segment{
			Index: i,
			Text: fmt.Sprintf(
				"The mitochondria%d produces chemical energy for every living organism. "+
					"Photosynthesis%d converts sunlight into usable glucose molecules.", i, i),
		})
	}
	return segments
}

func testDoc(id string) *model.DocumentHandle {
	return &model.DocumentHandle{ID: id, Name: id + ".pdf", MIME: "application/pdf"}
}

func newTestManager(extractor Extractor, synth Synthesizer) *Manager {
	return NewManager(extractor, synth, DefaultConfig())
}

func waitJob(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish in time")
	}
}

func TestDeliversExactCount(t *testing.T) {
	m := newTestManager(&stubExtractor{segments: testSegments(3)}, NewHeuristicSynthesizer())

	for _, count := range []int{1, 5, MaxQuestions} {
		t.Run(fmt.Sprintf("count=%d", count), func(t *testing.T) {
			job, err := m.Start(context.Background(), testDoc(fmt.Sprintf("doc-%d", count)), count, nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitJob(t, job)

			if job.State() != StateCompleted {
				t.Fatalf("state = %q, want completed", job.State())
			}
			mcqs, err := job.Result()
			if err != nil {
				t.Fatalf("Result: %v", err)
			}
			if len(mcqs) != count {
				t.Fatalf("got %d questions, want %d", len(mcqs), count)
			}
			for i, q := range mcqs {
				if q.ID != i+1 {
					t.Errorf("question %d has id %d", i, q.ID)
				}
				if !q.Valid() {
					t.Errorf("question %d violates the MCQ invariants: %+v", i, q)
				}
			}
		})
	}
}

func TestRejectsInvalidCount(t *testing.T) {
	m := newTestManager(&stubExtractor{segments: testSegments(1)}, NewHeuristicSynthesizer())

	for _, count := range []int{0, -1, MaxQuestions + 1} {
		if _, err := m.Start(context.Background(), testDoc("d"), count, nil); !errors.Is(err, ErrInvalidCount) {
			t.Errorf("count %d: expected ErrInvalidCount, got %v", count, err)
		}
	}
}

func TestSingleFlightPerDocument(t *testing.T) {
	block := make(chan struct{})
	m := newTestManager(&stubExtractor{segments: testSegments(1), block: block}, NewHeuristicSynthesizer())

	job, err := m.Start(context.Background(), testDoc("doc-a"), 3, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(context.Background(), testDoc("doc-a"), 3, nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning for same document, got %v", err)
	}

	// A different document runs concurrently.
	other, err := m.Start(context.Background(), testDoc("doc-b"), 3, nil)
	if err != nil {
		t.Fatalf("Start(doc-b): %v", err)
	}

	close(block)
	waitJob(t, job)
	waitJob(t, other)

	// The slot frees up once the job finishes.
	again, err := m.Start(context.Background(), testDoc("doc-a"), 3, nil)
	if err != nil {
		t.Fatalf("Start after completion: %v", err)
	}
	waitJob(t, again)
}

func TestProgressMonotonicEndsAtHundred(t *testing.T) {
	var mu sync.Mutex
	var seen []float64
	onProgress := func(p float64) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}

	m := newTestManager(&stubExtractor{segments: testSegments(5)}, NewHeuristicSynthesizer())
	job, err := m.Start(context.Background(), testDoc("doc"), 5, onProgress)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitJob(t, job)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("expected progress callbacks")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress decreased: %v", seen)
		}
	}
	last := seen[len(seen)-1]
	if last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}
	if job.Progress() != 100 {
		t.Errorf("Progress() = %v, want 100", job.Progress())
	}

	// The synthesis phase reports its own steps between the extraction
	// ceiling and the final stretch, not a single jump.
	ceiling := DefaultConfig().ExtractCeiling
	betweenPhases := false
	for _, p := range seen {
		if p > ceiling && p < 99 {
			betweenPhases = true
			break
		}
	}
	if !betweenPhases {
		t.Errorf("no synthesis progress between %v and 99: %v", ceiling, seen)
	}
}

func TestCancelStopsJobAndCallbacks(t *testing.T) {
	var mu sync.Mutex
	cancelled := false
	lateCallback := false
	onProgress := func(float64) {
		mu.Lock()
		if cancelled {
			lateCallback = true
		}
		mu.Unlock()
	}

	m := newTestManager(&stubExtractor{segments: testSegments(2)}, blockingSynth{})
	job, err := m.Start(context.Background(), testDoc("doc"), 5, onProgress)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	mu.Lock()
	cancelled = true
	mu.Unlock()
	job.Cancel()
	waitJob(t, job)

	if job.State() != StateCancelled {
		t.Errorf("state = %q, want cancelled", job.State())
	}
	if _, err := job.Result(); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if lateCallback {
		t.Error("progress callback fired after Cancel")
	}
}

func TestTimeout(t *testing.T) {
	m := NewManager(&stubExtractor{segments: testSegments(1)}, blockingSynth{}, Config{
		ExtractCeiling: 70,
		Timeout:        20 * time.Millisecond,
	})
	job, err := m.Start(context.Background(), testDoc("doc"), 3, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitJob(t, job)

	if job.State() != StateFailed {
		t.Errorf("state = %q, want failed", job.State())
	}
	if _, err := job.Result(); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestTimeoutDuringExtraction(t *testing.T) {
	// The extractor never returns before the deadline; its raw context
	// error must still surface as a timeout, not an internal fault.
	m := NewManager(&stubExtractor{segments: testSegments(1), block: make(chan struct{})}, NewHeuristicSynthesizer(), Config{
		ExtractCeiling: 70,
		Timeout:        20 * time.Millisecond,
	})
	job, err := m.Start(context.Background(), testDoc("doc"), 3, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitJob(t, job)

	if job.State() != StateFailed {
		t.Errorf("state = %q, want failed", job.State())
	}
	if _, err := job.Result(); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if _, err := job.Result(); errors.Is(err, ErrInternal) {
		t.Error("timeout must not be classified as internal")
	}
}

func TestUnreadableDocumentFailsJob(t *testing.T) {
	m := newTestManager(&stubExtractor{err: fmt.Errorf("%w: garbage", ErrUnreadableDocument)}, NewHeuristicSynthesizer())
	job, err := m.Start(context.Background(), testDoc("doc"), 3, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitJob(t, job)

	if job.State() != StateFailed {
		t.Errorf("state = %q, want failed", job.State())
	}
	if _, err := job.Result(); !errors.Is(err, ErrUnreadableDocument) {
		t.Errorf("expected ErrUnreadableDocument, got %v", err)
	}
}

func TestTopsUpShortSynthesis(t *testing.T) {
	m := newTestManager(&stubExtractor{segments: testSegments(2)}, shortSynth{n: 2})
	job, err := m.Start(context.Background(), testDoc("doc"), 8, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitJob(t, job)

	mcqs, err := job.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(mcqs) != 8 {
		t.Fatalf("got %d questions, want 8", len(mcqs))
	}
	for i, q := range mcqs {
		if !q.Valid() {
			t.Errorf("question %d invalid: %+v", i, q)
		}
	}
}

func TestFiltersInvalidSynthesis(t *testing.T) {
	m := newTestManager(&stubExtractor{segments: testSegments(2)}, brokenSynth{})
	job, err := m.Start(context.Background(), testDoc("doc"), 4, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitJob(t, job)

	mcqs, err := job.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(mcqs) != 4 {
		t.Fatalf("got %d questions, want 4", len(mcqs))
	}
	for i, q := range mcqs {
		if !q.Valid() {
			t.Errorf("question %d invalid after filtering: %+v", i, q)
		}
	}
}
