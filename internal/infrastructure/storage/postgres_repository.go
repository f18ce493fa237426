package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscanner/internal/domain"
	"leadscanner/internal/ports"
)

// Postgres unique_violation; mapped to ports.ErrDuplicateLead at this
// boundary so the orchestrator never inspects driver error codes.
const uniqueViolationCode = "23505"

// PostgresStore implements the source, lead, and run repositories on a
// pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

var (
	_ ports.SourceRepository = (*PostgresStore)(nil)
	_ ports.LeadRepository   = (*PostgresStore)(nil)
	_ ports.RunRepository    = (*PostgresStore)(nil)
)

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// CreateSource inserts a new scan source, enabled by default.
func (s *PostgresStore) CreateSource(ctx context.Context, name string, typ domain.SourceType, url string) (domain.ScanSource, error) {
	src := domain.ScanSource{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      typ,
		URL:       url,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	query, args, err := s.sb.Insert("scan_sources").
		Columns("id", "name", "type", "url", "enabled", "created_at").
		Values(src.ID, src.Name, string(src.Type), src.URL, src.Enabled, src.CreatedAt).
		ToSql()
	if err != nil {
		return domain.ScanSource{}, fmt.Errorf("build insert source: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return domain.ScanSource{}, fmt.Errorf("insert source: %w", err)
	}
	return src, nil
}

// ListSources returns every configured source, oldest first.
func (s *PostgresStore) ListSources(ctx context.Context) ([]domain.ScanSource, error) {
	return s.querySources(ctx, s.selectSources())
}

// ListEnabledSources returns only sources the pipeline should scan.
func (s *PostgresStore) ListEnabledSources(ctx context.Context) ([]domain.ScanSource, error) {
	return s.querySources(ctx, s.selectSources().Where(sq.Eq{"enabled": true}))
}

func (s *PostgresStore) selectSources() sq.SelectBuilder {
	return s.sb.Select("id", "name", "type", "url", "enabled", "last_run_at", "created_at").
		From("scan_sources").
		OrderBy("created_at ASC")
}

func (s *PostgresStore) querySources(ctx context.Context, builder sq.SelectBuilder) ([]domain.ScanSource, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select sources: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	sources := make([]domain.ScanSource, 0)
	for rows.Next() {
		var src domain.ScanSource
		var typ string
		if err := rows.Scan(&src.ID, &src.Name, &typ, &src.URL, &src.Enabled, &src.LastRunAt, &src.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		src.Type = domain.SourceType(typ)
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return sources, nil
}

// DeleteSource removes a source permanently.
func (s *PostgresStore) DeleteSource(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scan_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// SetSourceEnabled toggles whether the pipeline scans a source.
func (s *PostgresStore) SetSourceEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE scan_sources SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set source enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// UpdateSourceLastRun stamps the source after its items were processed.
func (s *PostgresStore) UpdateSourceLastRun(ctx context.Context, id string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE scan_sources SET last_run_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("update source last run: %w", err)
	}
	return nil
}

// CreateLead inserts a scored lead. A dedupe-hash conflict comes back as
// ports.ErrDuplicateLead.
func (s *PostgresStore) CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	query, args, err := s.sb.Insert("leads").
		Columns("id", "type", "title", "summary", "city", "state", "event_date",
			"emails", "phones", "websites", "socials", "confidence",
			"source_name", "source_url", "dedupe_hash", "score", "status", "created_at").
		Values(lead.ID, string(lead.Type), lead.Title, lead.Summary, lead.City, lead.State, lead.EventDate,
			lead.Contacts.Emails, lead.Contacts.Phones, lead.Contacts.Websites, lead.Contacts.Socials, lead.Confidence,
			lead.SourceName, lead.SourceURL, lead.DedupeHash, lead.Score, string(lead.Status), lead.CreatedAt).
		ToSql()
	if err != nil {
		return domain.Lead{}, fmt.Errorf("build insert lead: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.Lead{}, ports.ErrDuplicateLead
		}
		return domain.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return lead, nil
}

// ListLeads returns leads newest first, optionally filtered by status.
func (s *PostgresStore) ListLeads(ctx context.Context, status domain.LeadStatus) ([]domain.Lead, error) {
	builder := s.sb.Select("id", "type", "title", "summary", "city", "state", "event_date",
		"emails", "phones", "websites", "socials", "confidence",
		"source_name", "source_url", "dedupe_hash", "score", "status", "created_at").
		From("leads").
		OrderBy("created_at DESC")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select leads: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		var lead domain.Lead
		var typ, leadStatus string
		if err := rows.Scan(&lead.ID, &typ, &lead.Title, &lead.Summary, &lead.City, &lead.State, &lead.EventDate,
			&lead.Contacts.Emails, &lead.Contacts.Phones, &lead.Contacts.Websites, &lead.Contacts.Socials, &lead.Confidence,
			&lead.SourceName, &lead.SourceURL, &lead.DedupeHash, &lead.Score, &leadStatus, &lead.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		lead.Type = domain.LeadType(typ)
		lead.Status = domain.LeadStatus(leadStatus)
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return leads, nil
}

// UpdateLeadStatus applies an operator review transition.
func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id string, status domain.LeadStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE leads SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// CreateRun opens the bookkeeping record for a scan.
func (s *PostgresStore) CreateRun(ctx context.Context, startedAt time.Time) (domain.ScanRun, error) {
	run := domain.ScanRun{ID: uuid.NewString(), StartedAt: startedAt, Errors: []domain.ScanError{}}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_runs (id, started_at) VALUES ($1, $2)`,
		run.ID, run.StartedAt)
	if err != nil {
		return domain.ScanRun{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinalizeRun closes the bookkeeping record with counts and the error list.
func (s *PostgresStore) FinalizeRun(ctx context.Context, id string, finishedAt time.Time, itemsFound, leadsCreated, sourcesScanned int, errs []domain.ScanError) error {
	if errs == nil {
		errs = []domain.ScanError{}
	}
	payload, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE scan_runs
		SET finished_at = $2, items_found = $3, leads_created = $4, sources_scanned = $5, errors = $6
		WHERE id = $1`,
		id, finishedAt, itemsFound, leadsCreated, sourcesScanned, payload)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// ListRuns returns recent runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context) ([]domain.ScanRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, finished_at, items_found, leads_created, sources_scanned, errors
		FROM scan_runs
		ORDER BY started_at DESC
		LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.ScanRun, 0)
	for rows.Next() {
		var run domain.ScanRun
		var errsPayload []byte
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt,
			&run.ItemsFound, &run.LeadsCreated, &run.SourcesScanned, &errsPayload); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if err := json.Unmarshal(errsPayload, &run.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal run errors: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return runs, nil
}

// GetRun fetches one run with its full error list.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (domain.ScanRun, error) {
	var run domain.ScanRun
	var errsPayload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, started_at, finished_at, items_found, leads_created, sources_scanned, errors
		FROM scan_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.StartedAt, &run.FinishedAt,
			&run.ItemsFound, &run.LeadsCreated, &run.SourcesScanned, &errsPayload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScanRun{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.ScanRun{}, fmt.Errorf("query run: %w", err)
	}
	if err := json.Unmarshal(errsPayload, &run.Errors); err != nil {
		return domain.ScanRun{}, fmt.Errorf("unmarshal run errors: %w", err)
	}
	return run, nil
}
