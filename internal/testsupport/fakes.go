package testsupport

import (
	"context"
	"fmt"
	"sync"

	"draftdrop/internal/queue"
	"draftdrop/internal/services/catalog"
)

// SunsetAnalysis is the canonical analyzer reply used across tests: five
// bullets and ten tags.
func SunsetAnalysis() queue.Analysis {
	return queue.Analysis{
		Title:       "Sunset Tee",
		Description: "A warm sunset over a calm sea.",
		Bullets:     []string{"Soft cotton", "Vivid print", "Unisex fit", "Machine washable", "Gift ready"},
		Tags:        []string{"sunset", "beach", "summer", "ocean", "retro", "tee", "gift", "nature", "travel", "warm"},
		Theme:       "nature",
		Style:       "retro",
	}
}

// FakeAnalyzer returns Result or Err and counts calls. Gate, when non-nil,
// blocks each call until it is closed.
type FakeAnalyzer struct {
	mu     sync.Mutex
	Result queue.Analysis
	Err    error
	Gate   chan struct{}
	calls  int
	active int
	peak   int
}

func (f *FakeAnalyzer) Analyze(ctx context.Context, data []byte) (queue.Analysis, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	if f.Err != nil {
		return queue.Analysis{}, f.Err
	}
	return f.Result, nil
}

// Calls returns how many times Analyze was invoked.
func (f *FakeAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Active returns how many Analyze calls are currently blocked on Gate.
func (f *FakeAnalyzer) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Peak returns the highest number of concurrent Analyze calls observed.
func (f *FakeAnalyzer) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// FakeCatalog hands out image and listing ids. With a fixed ImageID or
// ListingID every call returns it; otherwise ids are numbered per call.
type FakeCatalog struct {
	mu        sync.Mutex
	ImageID   string
	ListingID string
	UploadErr error
	DraftErr  error
	uploads   []string
	drafts    []catalog.Draft
}

func (f *FakeCatalog) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename)
	if f.UploadErr != nil {
		return "", f.UploadErr
	}
	if f.ImageID != "" {
		return f.ImageID, nil
	}
	return fmt.Sprintf("img_%d", len(f.uploads)), nil
}

func (f *FakeCatalog) CreateDraft(ctx context.Context, imageID string, draft catalog.Draft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	if f.DraftErr != nil {
		return "", f.DraftErr
	}
	if f.ListingID != "" {
		return f.ListingID, nil
	}
	return fmt.Sprintf("prod_%d", len(f.drafts)), nil
}

// Uploads returns the filenames passed to Upload.
func (f *FakeCatalog) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

// Drafts returns the drafts passed to CreateDraft.
func (f *FakeCatalog) Drafts() []catalog.Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.Draft(nil), f.drafts...)
}
