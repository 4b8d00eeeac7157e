// Package matcher decides which alert configurations a tender satisfies and
// groups the results per owner for notification fan-out.
package matcher

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"tender-alerts/internal/models"
)

// check is one independent predicate in the evaluation chain. All checks are
// AND-combined; the first failing check decides the outcome.
type check func(cfg *models.AlertConfig, t *models.Tender, now time.Time) bool

var checks = []check{
	checkActive,
	checkKeywords,
	checkExcludeKeywords,
	checkCategory,
	checkLocation,
	checkOrganizationType,
	checkValueRange,
	checkClosingWindow,
	checkStatus,
	checkPriority,
}

// Matches reports whether the tender satisfies every filter of the
// configuration. Pure: no I/O, no panics; a filter the tender cannot be
// evaluated against counts as not applicable rather than a failure.
func Matches(cfg *models.AlertConfig, t *models.Tender) bool {
	return MatchesAt(cfg, t, time.Now())
}

// MatchesAt is Matches with an explicit evaluation time for the
// days-until-closing window.
func MatchesAt(cfg *models.AlertConfig, t *models.Tender, now time.Time) bool {
	for _, c := range checks {
		if !c(cfg, t, now) {
			return false
		}
	}
	return true
}

func checkActive(cfg *models.AlertConfig, _ *models.Tender, _ time.Time) bool {
	return cfg.Active
}

func checkKeywords(cfg *models.AlertConfig, t *models.Tender, _ time.Time) bool {
	if len(cfg.Keywords) == 0 {
		return true
	}

	buffer := searchBuffer(t)
	for _, clause := range cfg.Keywords {
		if clauseMatches(buffer, clause) {
			return true
		}
	}

	return false
}

func checkExcludeKeywords(cfg *models.AlertConfig, t *models.Tender, _ time.Time) bool {
	if len(cfg.ExcludeKeywords) == 0 {
		return true
	}

	buffer := searchBuffer(t)
	for _, kw := range cfg.ExcludeKeywords {
		term := strings.ToLower(strings.TrimSpace(kw))
		if term == "" {
			continue
		}
		if strings.Contains(buffer, term) {
			return false
		}
	}

	return true
}

func checkCategory(cfg *models.AlertConfig, t *models.Tender, _ time.Time) bool {
	if len(cfg.Categories) == 0 {
		return true
	}
	return containsFold(cfg.Categories, t.Category)
}

func checkLocation(cfg *models.AlertConfig, t *models.Tender, _ time.Time) bool {
	if len(cfg.Provinces) > 0 && !containsFold(cfg.Provinces, t.Province) {
		return false
	}

	if len(cfg.Districts) > 0 && !containsFold(cfg.Districts, t.District) {
		return false
	}

	// The city constraint only applies when the tender carries a city.
	if len(cfg.Cities) > 0 && t.City != nil && !containsFold(cfg.Cities, *t.City) {
		return false
	}

	return true
}

func checkOrganizationType(cfg *models.AlertConfig, t *models.Tender, _ time.Time) bool {
	if len(cfg.OrganizationTypes) == 0 {
		return true
	}
	return containsFold(cfg.OrganizationTypes, t.OrganizationType)
}

func checkValueRange(cfg *models.AlertConfig, t *models.Tender, _ time.Time) bool {
	// A tender with no estimate is never rejected on value.
	if t.EstimatedValue == nil {
		return true
	}

	if cfg.MinValue != nil && *t.EstimatedValue < *cfg.MinValue {
		return false
	}

	if cfg.MaxValue != nil && *t.EstimatedValue > *cfg.MaxValue {
		return false
	}

	return true
}

func checkClosingWindow(cfg *models.AlertConfig, t *models.Tender, now time.Time) bool {
	if cfg.MinDaysUntilClosing == nil && cfg.MaxDaysUntilClosing == nil {
		return true
	}

	if t.ClosingAt.IsZero() {
		return true
	}

	days := int(math.Ceil(t.ClosingAt.Sub(now).Hours() / 24))

	if cfg.MinDaysUntilClosing != nil && days < *cfg.MinDaysUntilClosing {
		return false
	}

	if cfg.MaxDaysUntilClosing != nil && days > *cfg.MaxDaysUntilClosing {
		return false
	}

	return true
}

func checkStatus(cfg *models.AlertConfig, t *models.Tender, _ time.Time) bool {
	if len(cfg.Statuses) == 0 {
		return true
	}
	return containsFold(cfg.Statuses, t.Status)
}

func checkPriority(cfg *models.AlertConfig, t *models.Tender, _ time.Time) bool {
	if len(cfg.Priorities) == 0 {
		return true
	}
	return containsFold(cfg.Priorities, t.Priority)
}

// searchBuffer is the lowercased haystack keyword clauses run against.
func searchBuffer(t *models.Tender) string {
	return strings.ToLower(t.Title + " " + t.Description + " " + t.Requirements)
}

func clauseMatches(buffer string, clause models.KeywordClause) bool {
	term := strings.ToLower(strings.TrimSpace(clause.Term))
	if term == "" {
		return false
	}

	switch clause.MatchType {
	case models.MatchExact:
		return wordMatch(buffer, term, true, true)
	case models.MatchStartsWith:
		return wordMatch(buffer, term, true, false)
	case models.MatchEndsWith:
		return wordMatch(buffer, term, false, true)
	default:
		// contains, and the lenient fallback for unknown modes
		return strings.Contains(buffer, term)
	}
}

// wordMatch finds an occurrence of term in buffer whose requested sides sit
// on word boundaries, so "IT" does not leak into "DIGITAL".
func wordMatch(buffer, term string, anchorStart, anchorEnd bool) bool {
	for from := 0; ; {
		i := strings.Index(buffer[from:], term)
		if i < 0 {
			return false
		}
		i += from

		before, _ := utf8.DecodeLastRuneInString(buffer[:i])
		startOK := !anchorStart || i == 0 || isBoundary(before)

		end := i + len(term)
		after, _ := utf8.DecodeRuneInString(buffer[end:])
		endOK := !anchorEnd || end == len(buffer) || isBoundary(after)

		if startOK && endOK {
			return true
		}

		from = i + 1
	}
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func containsFold(set []string, value string) bool {
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}
