package models

import "time"

// Tender is a candidate procurement record. Read-only input to the matching
// engine; ingestion and editing happen elsewhere.
type Tender struct {
	ID               string    `db:"id"`
	Title            string    `db:"title"`
	Description      string    `db:"description"`
	Requirements     string    `db:"requirements"` // extended free text
	Category         string    `db:"category"`
	OrganizationName string    `db:"organization_name"`
	OrganizationType string    `db:"organization_type"`
	Province         string    `db:"province"`
	District         string    `db:"district"`
	City             *string   `db:"city"`
	PublishedAt      time.Time `db:"published_at"`
	ClosingAt        time.Time `db:"closing_at"`
	EstimatedValue   *float64  `db:"estimated_value"`
	Currency         *string   `db:"currency"`
	Status           string    `db:"status"`
	Priority         string    `db:"priority"`
	CreatedAt        time.Time `db:"created_at"`
}
