package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"leadscanner/internal/dedupe"
	"leadscanner/internal/domain"
	"leadscanner/internal/ports"
	"leadscanner/internal/scanner"
)

type fakeAdapter struct {
	typ   domain.SourceType
	fetch func(source domain.ScanSource) ([]domain.CandidateItem, error)
}

func (f *fakeAdapter) Type() domain.SourceType { return f.typ }

func (f *fakeAdapter) Fetch(_ context.Context, source domain.ScanSource) ([]domain.CandidateItem, error) {
	return f.fetch(source)
}

type fakeExtractor struct {
	extract func(text, sourceURL string) ([]domain.ExtractedLead, error)
}

func (f *fakeExtractor) Extract(_ context.Context, text, sourceURL string) ([]domain.ExtractedLead, error) {
	return f.extract(text, sourceURL)
}

// memStore is an in-memory stand-in for the Postgres repositories.
type memStore struct {
	sources []domain.ScanSource
	hashes  map[string]bool
	leads   []domain.Lead

	createLeadErr error
	createRunErr  error
	finalizeErr   error

	runs      []domain.ScanRun
	finalized int
	lastRuns  map[string]time.Time
}

func newMemStore(sources ...domain.ScanSource) *memStore {
	return &memStore{
		sources:  sources,
		hashes:   map[string]bool{},
		lastRuns: map[string]time.Time{},
	}
}

func (m *memStore) CreateSource(context.Context, string, domain.SourceType, string) (domain.ScanSource, error) {
	return domain.ScanSource{}, errors.New("not implemented")
}

func (m *memStore) ListSources(context.Context) ([]domain.ScanSource, error) {
	return m.sources, nil
}

func (m *memStore) ListEnabledSources(context.Context) ([]domain.ScanSource, error) {
	enabled := make([]domain.ScanSource, 0, len(m.sources))
	for _, s := range m.sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled, nil
}

func (m *memStore) DeleteSource(context.Context, string) error { return nil }
func (m *memStore) SetSourceEnabled(context.Context, string, bool) error { return nil }

func (m *memStore) UpdateSourceLastRun(_ context.Context, id string, at time.Time) error {
	m.lastRuns[id] = at
	return nil
}

func (m *memStore) CreateLead(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	if m.createLeadErr != nil {
		return domain.Lead{}, m.createLeadErr
	}
	if m.hashes[lead.DedupeHash] {
		return domain.Lead{}, ports.ErrDuplicateLead
	}
	m.hashes[lead.DedupeHash] = true
	m.leads = append(m.leads, lead)
	return lead, nil
}

func (m *memStore) ListLeads(context.Context, domain.LeadStatus) ([]domain.Lead, error) {
	return m.leads, nil
}

func (m *memStore) UpdateLeadStatus(context.Context, string, domain.LeadStatus) error { return nil }

func (m *memStore) CreateRun(_ context.Context, startedAt time.Time) (domain.ScanRun, error) {
	if m.createRunErr != nil {
		return domain.ScanRun{}, m.createRunErr
	}
	run := domain.ScanRun{ID: fmt.Sprintf("run-%d", len(m.runs)+1), StartedAt: startedAt}
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *memStore) FinalizeRun(_ context.Context, id string, finishedAt time.Time, itemsFound, leadsCreated, sourcesScanned int, errs []domain.ScanError) error {
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	m.finalized++
	for i := range m.runs {
		if m.runs[i].ID == id {
			m.runs[i].FinishedAt = &finishedAt
			m.runs[i].ItemsFound = itemsFound
			m.runs[i].LeadsCreated = leadsCreated
			m.runs[i].SourcesScanned = sourcesScanned
			m.runs[i].Errors = errs
			return nil
		}
	}
	return ports.ErrNotFound
}

func (m *memStore) ListRuns(context.Context) ([]domain.ScanRun, error) { return m.runs, nil }

func (m *memStore) GetRun(_ context.Context, id string) (domain.ScanRun, error) {
	for _, run := range m.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return domain.ScanRun{}, ports.ErrNotFound
}

func testSource(name string) domain.ScanSource {
	return domain.ScanSource{
		ID:      name + "-id",
		Name:    name,
		Type:    domain.SourceRSS,
		URL:     "https://" + name + ".example/feed",
		Enabled: true,
	}
}

func itemFor(name string) domain.CandidateItem {
	return domain.CandidateItem{
		Text: name + " car show announcement",
		Link: "https://" + name + ".example/post",
	}
}

func leadFor(title string, confidence int) domain.ExtractedLead {
	return domain.ExtractedLead{
		Type:       domain.LeadEvent,
		Title:      title,
		Summary:    "summary for " + title,
		City:       "Tulsa",
		Confidence: confidence,
	}
}

func newTestPipeline(store *memStore, extract func(text, sourceURL string) ([]domain.ExtractedLead, error)) *Pipeline {
	registry := scanner.NewRegistry()
	registry.Register(&fakeAdapter{
		typ: domain.SourceRSS,
		fetch: func(source domain.ScanSource) ([]domain.CandidateItem, error) {
			if strings.HasPrefix(source.Name, "broken") {
				return nil, errors.New("connection refused")
			}
			return []domain.CandidateItem{itemFor(source.Name)}, nil
		},
	})

	return NewPipeline(PipelineDeps{
		Registry:  registry,
		Extractor: &fakeExtractor{extract: extract},
		Sources:   store,
		Leads:     store,
		Runs:      store,
		Now:       func() time.Time { return time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func TestRunPartialSourceFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"), testSource("broken-beta"), testSource("gamma"))
	pipeline := newTestPipeline(store, func(text, _ string) ([]domain.ExtractedLead, error) {
		return []domain.ExtractedLead{leadFor(text, 80)}, nil
	})

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if summary.LeadsCreated != 2 {
		t.Fatalf("expected 2 leads from healthy sources, got %d", summary.LeadsCreated)
	}

	run := store.runs[0]
	if run.SourcesScanned != 3 {
		t.Fatalf("expected sourcesScanned=3, got %d", run.SourcesScanned)
	}
	if len(run.Errors) != 1 {
		t.Fatalf("expected exactly 1 error, got %d: %+v", len(run.Errors), run.Errors)
	}
	if run.Errors[0].Source != "broken-beta" {
		t.Fatalf("error should be attributed to the failing source, got %s", run.Errors[0].Source)
	}

	// Healthy sources still get their lastRunAt bump; the failing one does not.
	if _, ok := store.lastRuns["alpha-id"]; !ok {
		t.Fatal("expected lastRunAt update for alpha")
	}
	if _, ok := store.lastRuns["broken-beta-id"]; ok {
		t.Fatal("failing source should not get a lastRunAt update")
	}
}

func TestRunConfidenceFloor(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"))
	pipeline := newTestPipeline(store, func(_, _ string) ([]domain.ExtractedLead, error) {
		return []domain.ExtractedLead{
			leadFor("Low Confidence Meetup", 49),
			leadFor("Solid Car Show", 50),
		}, nil
	})

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if summary.LeadsCreated != 1 {
		t.Fatalf("expected only the >=50 lead to persist, got %d", summary.LeadsCreated)
	}
	if store.leads[0].Title != "Solid Car Show" {
		t.Fatalf("wrong lead persisted: %s", store.leads[0].Title)
	}
	if store.leads[0].Status != domain.StatusNew {
		t.Fatalf("new leads must start as NEW, got %s", store.leads[0].Status)
	}
}

func TestRunDedupAcrossRuns(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"), testSource("gamma"))
	extract := func(_, _ string) ([]domain.ExtractedLead, error) {
		// Same lead from every source and run; only one copy may persist.
		return []domain.ExtractedLead{leadFor("Route 66 Car Show", 90)}, nil
	}
	pipeline := newTestPipeline(store, extract)

	first, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run error: %v", err)
	}
	if first.LeadsCreated != 1 {
		t.Fatalf("expected 1 lead on first run (second source is a duplicate), got %d", first.LeadsCreated)
	}

	second, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if second.LeadsCreated != 0 {
		t.Fatalf("expected 0 new leads on identical second run, got %d", second.LeadsCreated)
	}
	if second.ItemsFound != first.ItemsFound {
		t.Fatalf("itemsFound should match across identical runs: %d vs %d", first.ItemsFound, second.ItemsFound)
	}

	// Duplicates are expected behavior, never run errors.
	for _, run := range store.runs {
		if len(run.Errors) != 0 {
			t.Fatalf("duplicate skips must not be recorded as errors: %+v", run.Errors)
		}
	}
}

func TestRunExtractionFailureIsolated(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"))
	pipeline := newTestPipeline(store, func(_, _ string) ([]domain.ExtractedLead, error) {
		return nil, errors.New("completion call: 429 too many requests")
	})

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("per-item failures must not fail the run: %v", err)
	}

	if summary.ItemsFound != 1 {
		t.Fatalf("itemsFound must count the failed item, got %d", summary.ItemsFound)
	}
	if summary.LeadsCreated != 0 {
		t.Fatalf("expected 0 leads, got %d", summary.LeadsCreated)
	}
	if len(store.runs[0].Errors) != 1 {
		t.Fatalf("expected 1 recorded error, got %+v", store.runs[0].Errors)
	}
}

func TestRunPersistFailureIsolated(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"))
	store.createLeadErr = errors.New("connection reset")
	pipeline := newTestPipeline(store, func(_, _ string) ([]domain.ExtractedLead, error) {
		return []domain.ExtractedLead{leadFor("Doomed Lead", 80)}, nil
	})

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("persist failures must not fail the run: %v", err)
	}
	if summary.LeadsCreated != 0 {
		t.Fatalf("expected 0 leads, got %d", summary.LeadsCreated)
	}
	if len(store.runs[0].Errors) != 1 || store.runs[0].Errors[0].Source != "alpha" {
		t.Fatalf("expected one error attributed to alpha, got %+v", store.runs[0].Errors)
	}
}

func TestRunBookkeepingInvariants(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"), testSource("broken-beta"))
	pipeline := newTestPipeline(store, func(text, _ string) ([]domain.ExtractedLead, error) {
		return []domain.ExtractedLead{leadFor(text, 75)}, nil
	})

	if _, err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if store.finalized != 1 {
		t.Fatalf("run must be finalized exactly once, got %d", store.finalized)
	}

	run := store.runs[0]
	if run.FinishedAt == nil {
		t.Fatal("finalized run must have finishedAt")
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Fatalf("finishedAt %v before startedAt %v", run.FinishedAt, run.StartedAt)
	}
	if run.ItemsFound < run.LeadsCreated {
		t.Fatalf("itemsFound %d < leadsCreated %d", run.ItemsFound, run.LeadsCreated)
	}
}

func TestRunLeadFieldsPopulated(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"))
	pipeline := newTestPipeline(store, func(_, _ string) ([]domain.ExtractedLead, error) {
		lead := leadFor("Route 66 Car Show", 80)
		lead.EventDate = "2025-05-31"
		lead.Contacts.Emails = []string{"info@r66.com"}
		return []domain.ExtractedLead{lead}, nil
	})

	if _, err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	lead := store.leads[0]
	if lead.SourceName != "alpha" {
		t.Fatalf("unexpected source name: %s", lead.SourceName)
	}
	if lead.SourceURL != "https://alpha.example/post" {
		t.Fatalf("sourceUrl should be the candidate link, got %s", lead.SourceURL)
	}
	if lead.DedupeHash != dedupe.Hash("Route 66 Car Show", "2025-05-31", "Tulsa") {
		t.Fatalf("unexpected dedupe hash: %s", lead.DedupeHash)
	}
	// confidence 80 -> base 48, +20 upcoming, +10 email = 78
	if lead.Score != 78 {
		t.Fatalf("expected score 78, got %d", lead.Score)
	}
}

func TestRunCreateRunFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"))
	store.createRunErr = errors.New("db down")
	pipeline := newTestPipeline(store, func(_, _ string) ([]domain.ExtractedLead, error) {
		return nil, nil
	})

	if _, err := pipeline.Run(context.Background()); err == nil {
		t.Fatal("expected create-run failure to abort the scan")
	}
}

func TestRunFinalizeFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"))
	store.finalizeErr = errors.New("db down")
	pipeline := newTestPipeline(store, func(_, _ string) ([]domain.ExtractedLead, error) {
		return nil, nil
	})

	if _, err := pipeline.Run(context.Background()); err == nil {
		t.Fatal("expected finalize failure to surface to the caller")
	}
}

func TestRunCancelledContextStillFinalizes(t *testing.T) {
	t.Parallel()

	store := newMemStore(testSource("alpha"), testSource("gamma"))
	ctx, cancel := context.WithCancel(context.Background())
	pipeline := newTestPipeline(store, func(_, _ string) ([]domain.ExtractedLead, error) {
		cancel() // abort mid-scan, after the first extraction
		return []domain.ExtractedLead{leadFor("First Lead", 80)}, nil
	})

	if _, err := pipeline.Run(ctx); err != nil {
		t.Fatalf("cancellation must not lose the run record: %v", err)
	}
	if store.finalized != 1 {
		t.Fatalf("run must still be finalized once, got %d", store.finalized)
	}
	if store.runs[0].FinishedAt == nil {
		t.Fatal("cancelled run must not be left open")
	}
}
