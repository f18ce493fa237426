package scoring

import (
	"strings"
	"time"

	"leadscanner/internal/domain"
)

const (
	confidenceWeight   = 0.6
	upcomingEventBonus = 20
	emailBonus         = 10
	phoneBonus         = 5
	upcomingWindow     = 90 * 24 * time.Hour
	maxScore           = 100
)

const eventDateLayout = "2006-01-02"

// Score maps an extracted lead to a 0-100 relevance score. Pure and
// deterministic: now comes in as a parameter, never from the clock.
// Weights: 60% of the reported confidence, plus bonuses for an event date
// inside the next 90 days and for email/phone contact hints.
func Score(lead domain.ExtractedLead, now time.Time) int {
	score := float64(lead.Confidence) * confidenceWeight

	if date, ok := parseEventDate(lead.EventDate); ok {
		if date.After(now) && date.Before(now.Add(upcomingWindow)) {
			score += upcomingEventBonus
		}
	}
	if len(lead.Contacts.Emails) > 0 {
		score += emailBonus
	}
	if len(lead.Contacts.Phones) > 0 {
		score += phoneBonus
	}

	if score > maxScore {
		return maxScore
	}
	return int(score)
}

func parseEventDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	date, err := time.Parse(eventDateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
