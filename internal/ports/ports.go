package ports

import (
	"context"
	"errors"
	"time"

	"leadscanner/internal/domain"
)

// ErrDuplicateLead marks a dedupe-hash conflict on persist. Duplicates are
// expected across runs and are skipped, not reported.
var ErrDuplicateLead = errors.New("duplicate lead")

// ErrNotFound marks a lookup for a row that does not exist.
var ErrNotFound = errors.New("not found")

// SourceAdapter fetches raw candidate items from one configured source.
type SourceAdapter interface {
	Type() domain.SourceType
	Fetch(ctx context.Context, source domain.ScanSource) ([]domain.CandidateItem, error)
}

// Extractor turns raw text into zero or more structured candidate leads.
type Extractor interface {
	Extract(ctx context.Context, text, sourceURL string) ([]domain.ExtractedLead, error)
}

// CompletionClient is the external text-generation capability. It is
// unreliable by contract; callers validate whatever comes back.
type CompletionClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// SourceRepository manages operator-configured scan sources.
type SourceRepository interface {
	CreateSource(ctx context.Context, name string, typ domain.SourceType, url string) (domain.ScanSource, error)
	ListSources(ctx context.Context) ([]domain.ScanSource, error)
	ListEnabledSources(ctx context.Context) ([]domain.ScanSource, error)
	DeleteSource(ctx context.Context, id string) error
	SetSourceEnabled(ctx context.Context, id string, enabled bool) error
	UpdateSourceLastRun(ctx context.Context, id string, at time.Time) error
}

// LeadRepository persists scored leads. CreateLead returns ErrDuplicateLead
// when the dedupe hash already exists.
type LeadRepository interface {
	CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	ListLeads(ctx context.Context, status domain.LeadStatus) ([]domain.Lead, error)
	UpdateLeadStatus(ctx context.Context, id string, status domain.LeadStatus) error
}

// RunRepository keeps scan-run bookkeeping. Failures here are the only
// fatal errors in a scan.
type RunRepository interface {
	CreateRun(ctx context.Context, startedAt time.Time) (domain.ScanRun, error)
	FinalizeRun(ctx context.Context, id string, finishedAt time.Time, itemsFound, leadsCreated, sourcesScanned int, errs []domain.ScanError) error
	ListRuns(ctx context.Context) ([]domain.ScanRun, error)
	GetRun(ctx context.Context, id string) (domain.ScanRun, error)
}
