package domain

import "time"

// SourceType selects the adapter used to fetch a configured source.
type SourceType string

const (
	SourceRSS SourceType = "RSS"
	SourceURL SourceType = "URL"
)

// LeadType classifies what kind of prospect a lead describes.
type LeadType string

const (
	LeadEvent     LeadType = "EVENT"
	LeadVendor    LeadType = "VENDOR"
	LeadOrganizer LeadType = "ORGANIZER"
)

// LeadStatus tracks operator review of a persisted lead.
type LeadStatus string

const (
	StatusNew      LeadStatus = "NEW"
	StatusReviewed LeadStatus = "REVIEWED"
	StatusIgnored  LeadStatus = "IGNORED"
)

// ScanSource is an operator-configured content origin (feed or page).
type ScanSource struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      SourceType `json:"type"`
	URL       string     `json:"url"`
	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// CandidateItem is raw text pulled from a source, consumed immediately by
// extraction and never persisted.
type CandidateItem struct {
	Text        string
	Link        string
	PublishedAt time.Time
	SourceTitle string
}

// ContactHints groups the contact details the extractor spotted in the text.
type ContactHints struct {
	Emails   []string `json:"emails"`
	Phones   []string `json:"phones"`
	Websites []string `json:"websites"`
	Socials  []string `json:"socials"`
}

// ExtractedLead is a structured, unscored candidate produced by extraction.
// EventDate uses YYYY-MM-DD when present.
type ExtractedLead struct {
	Type       LeadType     `json:"type"`
	Title      string       `json:"title"`
	Summary    string       `json:"summary"`
	City       string       `json:"city,omitempty"`
	State      string       `json:"state,omitempty"`
	EventDate  string       `json:"eventDate,omitempty"`
	Contacts   ContactHints `json:"contactHints"`
	Confidence int          `json:"confidence"`
}

// Lead is the persisted, scored, deduplicated record shown to operators.
type Lead struct {
	ID string `json:"id"`
	ExtractedLead
	SourceName string     `json:"sourceName"`
	SourceURL  string     `json:"sourceUrl"`
	DedupeHash string     `json:"dedupeHash"`
	Score      int        `json:"score"`
	Status     LeadStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ScanError attributes a recoverable failure to the source it came from.
type ScanError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// ScanRun records one orchestrator execution with aggregate counts and
// error provenance.
type ScanRun struct {
	ID             string      `json:"id"`
	StartedAt      time.Time   `json:"startedAt"`
	FinishedAt     *time.Time  `json:"finishedAt,omitempty"`
	ItemsFound     int         `json:"itemsFound"`
	LeadsCreated   int         `json:"leadsCreated"`
	SourcesScanned int         `json:"sourcesScanned"`
	Errors         []ScanError `json:"errors"`
}

// ScanSummary is what a scan trigger returns to the caller.
type ScanSummary struct {
	LeadsCreated int `json:"leadsCreated"`
	ItemsFound   int `json:"itemsFound"`
}

// ValidLeadStatus reports whether s is one of the review states.
func ValidLeadStatus(s LeadStatus) bool {
	switch s {
	case StatusNew, StatusReviewed, StatusIgnored:
		return true
	}
	return false
}

// ValidSourceType reports whether t names a registered adapter kind.
func ValidSourceType(t SourceType) bool {
	return t == SourceRSS || t == SourceURL
}
