package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type MatchType string

const (
	MatchContains   MatchType = "contains"
	MatchExact      MatchType = "exact"
	MatchStartsWith MatchType = "starts_with"
	MatchEndsWith   MatchType = "ends_with"
)

type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
)

// KeywordClause is one OR'd keyword rule of an alert configuration.
type KeywordClause struct {
	Term      string    `json:"term"`
	MatchType MatchType `json:"matchType"`
}

// AlertConfig is an owner-scoped set of tender filters plus delivery
// preferences. Created and edited through the API service; this engine only
// reads it and increments its stats counters.
type AlertConfig struct {
	ID      int64  `db:"id"`
	OwnerID int64  `db:"owner_id"`
	Name    string `db:"name"`
	Active  bool   `db:"active"`

	Keywords          KeywordClauses `db:"keywords"`
	Categories        StringList     `db:"categories"`
	Provinces         StringList     `db:"provinces"`
	Districts         StringList     `db:"districts"`
	Cities            StringList     `db:"cities"`
	OrganizationTypes StringList     `db:"organization_types"`

	MinValue      *float64 `db:"min_value"`
	MaxValue      *float64 `db:"max_value"`
	ValueCurrency *string  `db:"value_currency"`

	EmailEnabled      bool       `db:"email_enabled"`
	Frequency         Frequency  `db:"frequency"`
	RecipientOverride *string    `db:"recipient_override"`
	LastSentAt        *time.Time `db:"last_sent_at"`
	DailyTime         string     `db:"daily_time"` // "HH:MM", 24h

	ExcludeKeywords     StringList `db:"exclude_keywords"`
	MinDaysUntilClosing *int       `db:"min_days_until_closing"`
	MaxDaysUntilClosing *int       `db:"max_days_until_closing"`
	Statuses            StringList `db:"statuses"`
	Priorities          StringList `db:"priorities"`

	TotalMatches        int64      `db:"total_matches"`
	EmailsSent          int64      `db:"emails_sent"`
	LastMatchedTenderID *string    `db:"last_matched_tender_id"`
	LastMatchedAt       *time.Time `db:"last_matched_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	// Joined owner identity, populated by the registry queries.
	OwnerEmail   string `db:"owner_email"`
	OwnerPremium bool   `db:"owner_premium"`
}

// Recipient returns the delivery address: the per-config override when set,
// otherwise the owner's address.
func (c *AlertConfig) Recipient() string {
	if c.RecipientOverride != nil && *c.RecipientOverride != "" {
		return *c.RecipientOverride
	}
	return c.OwnerEmail
}

// WeeklyDue reports whether a weekly configuration is eligible as of the
// given time: never sent, or last sent at least seven days ago.
func (c *AlertConfig) WeeklyDue(asOf time.Time) bool {
	if c.LastSentAt == nil {
		return true
	}
	return asOf.Sub(*c.LastSentAt) >= 7*24*time.Hour
}

type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, l)
}

type KeywordClauses []KeywordClause

func (k KeywordClauses) Value() (driver.Value, error) {
	if k == nil {
		return "[]", nil
	}
	return json.Marshal(k)
}

func (k *KeywordClauses) Scan(value interface{}) error {
	if value == nil {
		*k = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, k)
}
