// Package store persists completed assessments and their decision rationale.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Assessment is the summary record for one completed run.
type Assessment struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Address           string    `json:"address"`
	Postcode          string    `json:"postcode"`
	Decision          string    `json:"decision"`
	OverallRiskScore  float64   `json:"overall_risk_score"`
	PremiumMultiplier float64   `json:"premium_multiplier"`
	Degraded          bool      `json:"degraded"`
	Warnings          []string  `json:"warnings,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// RiskFactor is one entry in a rationale's risk breakdown.
type RiskFactor struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Reasoning string  `json:"reasoning"`
}

// Rationale is the explainability record linked to an assessment.
type Rationale struct {
	AssessmentID    string       `json:"assessment_id"`
	RiskFactors     []RiskFactor `json:"risk_factors"`
	PolicyCitations []string     `json:"policy_citations"`
	Narrative       string       `json:"plain_english_narrative"`
	Reasoning       string       `json:"underwriter_reasoning"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Store is the persistence contract for assessment results.
type Store interface {
	// SaveAssessment persists the summary record.
	SaveAssessment(ctx context.Context, a Assessment) error
	// SaveRationale persists the rationale keyed by its assessment id.
	SaveRationale(ctx context.Context, r Rationale) error
	// Assessment fetches one summary record by id.
	Assessment(ctx context.Context, id string) (Assessment, error)
	// Rationale fetches the rationale for an assessment id.
	Rationale(ctx context.Context, assessmentID string) (Rationale, error)
	// History lists a user's assessments, newest first.
	History(ctx context.Context, userID string) ([]Assessment, error)
}
