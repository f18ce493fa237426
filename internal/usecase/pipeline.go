package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"leadscanner/internal/dedupe"
	"leadscanner/internal/domain"
	"leadscanner/internal/ports"
	"leadscanner/internal/scanner"
	"leadscanner/internal/scoring"
)

// Leads below this confidence are discarded before persistence.
const confidenceFloor = 50

// PipelineDeps wires all driven adapters into the scan orchestrator.
type PipelineDeps struct {
	Registry  *scanner.Registry
	Extractor ports.Extractor
	Sources   ports.SourceRepository
	Leads     ports.LeadRepository
	Runs      ports.RunRepository
	Logger    *slog.Logger
	Now       func() time.Time
}

// Pipeline orchestrates one scan: fetch every enabled source, extract and
// score candidate leads, and record the run with full error provenance.
type Pipeline struct {
	registry  *scanner.Registry
	extractor ports.Extractor
	sources   ports.SourceRepository
	leads     ports.LeadRepository
	runs      ports.RunRepository
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{
		registry:  deps.Registry,
		extractor: deps.Extractor,
		sources:   deps.Sources,
		leads:     deps.Leads,
		runs:      deps.Runs,
		logger:    deps.Logger,
		now:       deps.Now,
	}
}

// runState aggregates counters and error provenance for one scan.
type runState struct {
	itemsFound   int
	leadsCreated int
	errs         []domain.ScanError
}

func (s *runState) fail(source, format string, args ...any) {
	s.errs = append(s.errs, domain.ScanError{Source: source, Message: fmt.Sprintf(format, args...)})
}

// Run executes a full scan. Per-item and per-source failures are recovered
// locally and land in the run's error list; only failure to create or
// finalize the run record itself propagates to the caller. The run is
// finalized exactly once, also when the caller's context is cancelled
// mid-scan, with whatever partial counts were accumulated.
func (p *Pipeline) Run(ctx context.Context) (domain.ScanSummary, error) {
	run, err := p.runs.CreateRun(ctx, p.now().UTC())
	if err != nil {
		return domain.ScanSummary{}, fmt.Errorf("create scan run: %w", err)
	}

	state := &runState{}

	sources, err := p.sources.ListEnabledSources(ctx)
	if err != nil {
		state.fail("store", "list enabled sources: %v", err)
	}

	p.logger.Info("scan started", "run", run.ID, "sources", len(sources))

	for _, src := range sources {
		if ctx.Err() != nil {
			state.fail(src.Name, "scan cancelled: %v", ctx.Err())
			break
		}
		p.scanSource(ctx, src, state)
	}

	// Finalization must survive caller cancellation.
	finalizeCtx := context.WithoutCancel(ctx)
	err = p.runs.FinalizeRun(finalizeCtx, run.ID, p.now().UTC(),
		state.itemsFound, state.leadsCreated, len(sources), state.errs)
	if err != nil {
		return domain.ScanSummary{}, fmt.Errorf("finalize scan run: %w", err)
	}

	p.logger.Info("scan finished",
		"run", run.ID,
		"items_found", state.itemsFound,
		"leads_created", state.leadsCreated,
		"errors", len(state.errs))

	return domain.ScanSummary{LeadsCreated: state.leadsCreated, ItemsFound: state.itemsFound}, nil
}

func (p *Pipeline) scanSource(ctx context.Context, src domain.ScanSource, state *runState) {
	adapter, err := p.registry.Resolve(src.Type)
	if err != nil {
		state.fail(src.Name, "%v", err)
		return
	}

	items, err := adapter.Fetch(ctx, src)
	if err != nil {
		state.fail(src.Name, "fetch: %v", err)
		return
	}

	for _, item := range items {
		if ctx.Err() != nil {
			state.fail(src.Name, "scan cancelled: %v", ctx.Err())
			return
		}

		state.itemsFound++

		leads, err := p.extractor.Extract(ctx, item.Text, item.Link)
		if err != nil {
			state.fail(src.Name, "extract %s: %v", item.Link, err)
			continue
		}

		for _, extracted := range leads {
			if extracted.Confidence < confidenceFloor {
				continue
			}
			p.persistLead(ctx, src, item, extracted, state)
		}
	}

	if err := p.sources.UpdateSourceLastRun(ctx, src.ID, p.now().UTC()); err != nil {
		state.fail(src.Name, "update last run: %v", err)
	}
}

func (p *Pipeline) persistLead(ctx context.Context, src domain.ScanSource, item domain.CandidateItem, extracted domain.ExtractedLead, state *runState) {
	sourceURL := item.Link
	if sourceURL == "" {
		sourceURL = src.URL
	}

	lead := domain.Lead{
		ExtractedLead: extracted,
		SourceName:    src.Name,
		SourceURL:     sourceURL,
		DedupeHash:    dedupe.Hash(extracted.Title, extracted.EventDate, extracted.City),
		Score:         scoring.Score(extracted, p.now()),
		Status:        domain.StatusNew,
	}

	if _, err := p.leads.CreateLead(ctx, lead); err != nil {
		if errors.Is(err, ports.ErrDuplicateLead) {
			p.logger.Debug("skipping duplicate lead", "title", extracted.Title, "source", src.Name)
			return
		}
		state.fail(src.Name, "persist %q: %v", extracted.Title, err)
		return
	}

	state.leadsCreated++
}
