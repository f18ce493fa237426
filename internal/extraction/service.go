package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"leadscanner/internal/domain"
	"leadscanner/internal/ports"
)

// maxInputChars bounds what one extraction call sends upstream; anything
// past it adds latency and cost without adding leads.
const maxInputChars = 8000

const systemPrompt = `You identify business leads for the car-show industry: car shows and
automotive events (EVENT), automotive vendors and shops (VENDOR), and car
clubs or event organizers (ORGANIZER).

Given source text, respond with a JSON array only, no prose. Each element:
{
  "type": "EVENT" | "VENDOR" | "ORGANIZER",
  "title": "name of the event, vendor, or organizer",
  "summary": "one or two sentences on why this is a lead",
  "city": "city if mentioned, else omit",
  "state": "state or region if mentioned, else omit",
  "eventDate": "YYYY-MM-DD if a date is mentioned, else omit",
  "contactHints": {"emails": [], "phones": [], "websites": [], "socials": []},
  "confidence": 0-100 integer
}

Return [] or use confidence 0 when the text has nothing to do with car
shows, automotive vendors, or car culture. A single text may describe
several leads; return one element per lead.`

// Service converts raw source text into validated lead candidates through
// an injected completion client.
type Service struct {
	client ports.CompletionClient
	logger *slog.Logger
}

var _ ports.Extractor = (*Service)(nil)

// NewService wires the completion client. The client is passed in by the
// process entry point; the service never reaches for global state.
func NewService(client ports.CompletionClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, logger: logger}
}

// Extract sends one completion request for the text and returns every lead
// that survives validation. The upstream generator is probabilistic and
// occasionally malformed: a response that cannot be parsed or validated
// means the item yielded no usable lead, not a failed scan.
func (s *Service) Extract(ctx context.Context, text, sourceURL string) ([]domain.ExtractedLead, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no completion client configured")
	}

	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	user := fmt.Sprintf("Source URL: %s\n\nText:\n%s", sourceURL, text)
	raw, err := s.client.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}

	leads, err := parseLeads(raw)
	if err != nil {
		s.logger.Debug("discarding unusable extraction output", "source", sourceURL, "error", err)
		return nil, nil
	}
	return leads, nil
}

type leadPayload struct {
	Type         string       `json:"type"`
	Title        string       `json:"title"`
	Summary      string       `json:"summary"`
	City         string       `json:"city"`
	State        string       `json:"state"`
	EventDate    string       `json:"eventDate"`
	ContactHints payloadHints `json:"contactHints"`
	Confidence   *int         `json:"confidence"`
}

type payloadHints struct {
	Emails   []string `json:"emails"`
	Phones   []string `json:"phones"`
	Websites []string `json:"websites"`
	Socials  []string `json:"socials"`
}

func parseLeads(raw string) ([]domain.ExtractedLead, error) {
	raw = stripCodeFence(raw)

	var decoded []leadPayload
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal leads: %w", err)
	}

	leads := make([]domain.ExtractedLead, 0, len(decoded))
	for i, p := range decoded {
		lead, err := validateLead(p)
		if err != nil {
			return nil, fmt.Errorf("lead %d: %w", i, err)
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func validateLead(p leadPayload) (domain.ExtractedLead, error) {
	typ := domain.LeadType(strings.ToUpper(strings.TrimSpace(p.Type)))
	switch typ {
	case domain.LeadEvent, domain.LeadVendor, domain.LeadOrganizer:
	default:
		return domain.ExtractedLead{}, fmt.Errorf("unknown type %q", p.Type)
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		return domain.ExtractedLead{}, fmt.Errorf("missing title")
	}
	summary := strings.TrimSpace(p.Summary)
	if summary == "" {
		return domain.ExtractedLead{}, fmt.Errorf("missing summary")
	}

	if p.Confidence == nil {
		return domain.ExtractedLead{}, fmt.Errorf("missing confidence")
	}
	if *p.Confidence < 0 || *p.Confidence > 100 {
		return domain.ExtractedLead{}, fmt.Errorf("confidence %d out of range", *p.Confidence)
	}

	return domain.ExtractedLead{
		Type:      typ,
		Title:     title,
		Summary:   summary,
		City:      strings.TrimSpace(p.City),
		State:     strings.TrimSpace(p.State),
		EventDate: strings.TrimSpace(p.EventDate),
		Contacts: domain.ContactHints{
			Emails:   cleanList(p.ContactHints.Emails),
			Phones:   cleanList(p.ContactHints.Phones),
			Websites: cleanList(p.ContactHints.Websites),
			Socials:  cleanList(p.ContactHints.Socials),
		},
		Confidence: *p.Confidence,
	}, nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// stripCodeFence removes a wrapping markdown fence the model sometimes adds
// despite instructions.
func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
