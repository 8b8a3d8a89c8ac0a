package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
	"github.com/aurea-hq/underwriting/internal/pipeline"
	"github.com/aurea-hq/underwriting/internal/stage"
	"github.com/aurea-hq/underwriting/internal/store"
)

// ErrInvalidRequest marks request validation failures so transport layers
// can map them to client errors.
var ErrInvalidRequest = errors.New("invalid request")

// AssessRequest is one property to assess.
type AssessRequest struct {
	Address  string `json:"address"`
	Postcode string `json:"postcode"`
	UserID   string `json:"-"`
}

// Validate checks the request fields.
func (r AssessRequest) Validate() error {
	if r.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidRequest)
	}
	if r.Postcode == "" {
		return fmt.Errorf("%w: postcode is required", ErrInvalidRequest)
	}
	return nil
}

// AssessResponse is the persisted outcome of one assessment.
type AssessResponse struct {
	AssessmentID string       `json:"assessment_id"`
	Result       stage.Result `json:"result"`
}

// Assess runs one assessment to completion and persists the outcome.
func (a *App) Assess(ctx context.Context, req AssessRequest) (AssessResponse, error) {
	if err := req.Validate(); err != nil {
		return AssessResponse{}, err
	}
	ctx = ctxlog.WithLogger(ctx, a.logger.With("address", req.Address, "user_id", req.UserID))

	final, err := a.exec.Run(ctx, initialUpdate(req), a.observeEvent())
	if err != nil {
		return AssessResponse{}, err
	}
	return a.persist(ctx, req, final)
}

// AssessStream runs one assessment and streams its lifecycle events. The
// stream ends with a result event carrying the persisted AssessResponse and a
// done sentinel; the error channel reports merge or persistence failures that
// prevented a result.
func (a *App) AssessStream(ctx context.Context, req AssessRequest) (<-chan pipeline.Event, <-chan error) {
	if err := req.Validate(); err != nil {
		errc := make(chan error, 1)
		errc <- err
		close(errc)
		events := make(chan pipeline.Event)
		close(events)
		return events, errc
	}
	ctx = ctxlog.WithLogger(ctx, a.logger.With("address", req.Address, "user_id", req.UserID))

	a.metrics.ActiveStreams.Inc()
	events, errc := pipeline.Stream(ctx, a.exec, initialUpdate(req), func(ctx context.Context, final pipeline.State) (any, error) {
		resp, err := a.persist(ctx, req, final)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})

	observe := a.observeEvent()
	out := make(chan pipeline.Event)
	go func() {
		defer close(out)
		defer a.metrics.ActiveStreams.Dec()
		for ev := range events {
			observe(ev)
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errc
}

// History lists the caller's past assessments, newest first.
func (a *App) History(ctx context.Context, userID string) ([]store.Assessment, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	return a.store.History(ctx, userID)
}

// Assessment fetches one persisted assessment with its rationale.
func (a *App) Assessment(ctx context.Context, id string) (store.Assessment, store.Rationale, error) {
	assessment, err := a.store.Assessment(ctx, id)
	if err != nil {
		return store.Assessment{}, store.Rationale{}, err
	}
	rationale, err := a.store.Rationale(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.Assessment{}, store.Rationale{}, err
	}
	return assessment, rationale, nil
}

func initialUpdate(req AssessRequest) pipeline.Update {
	return pipeline.Update{
		stage.FieldAddress:  req.Address,
		stage.FieldPostcode: req.Postcode,
		stage.FieldUserID:   req.UserID,
	}
}

// observeEvent returns an event callback that records stage durations and
// degradations. The executor invokes it from a single goroutine.
func (a *App) observeEvent() func(pipeline.Event) {
	started := map[string]time.Time{}
	return func(ev pipeline.Event) {
		switch ev.Kind {
		case pipeline.EventStart:
			started[ev.Stage] = time.Now()
		case pipeline.EventEnd:
			end, ok := ev.Payload.(pipeline.EndPayload)
			if !ok {
				return
			}
			start, ok := started[ev.Stage]
			if !ok {
				return
			}
			a.metrics.ObserveStage(ev.Stage, time.Since(start), end.Status == pipeline.StatusDegraded.String())
		}
	}
}

// persist writes the assessment summary and rationale, then counts it.
func (a *App) persist(ctx context.Context, req AssessRequest, final pipeline.State) (AssessResponse, error) {
	logger := ctxlog.FromContext(ctx)
	result := stage.Project(final)

	id := uuid.NewString()
	now := time.Now().UTC()

	assessment := store.Assessment{
		ID:                id,
		UserID:            req.UserID,
		Address:           result.Address,
		Postcode:          result.Postcode,
		Decision:          result.Decision,
		OverallRiskScore:  result.OverallScore,
		PremiumMultiplier: result.PremiumMultiplier,
		Degraded:          len(result.Warnings) > 0,
		Warnings:          result.Warnings,
		CreatedAt:         now,
	}
	if err := a.store.SaveAssessment(ctx, assessment); err != nil {
		return AssessResponse{}, fmt.Errorf("persisting assessment: %w", err)
	}

	factors := make([]store.RiskFactor, len(result.RiskFactors))
	for i, f := range result.RiskFactors {
		factors[i] = store.RiskFactor{Name: f.Name, Score: f.Score, Weight: f.Weight, Reasoning: f.Reasoning}
	}
	rationale := store.Rationale{
		AssessmentID:    id,
		RiskFactors:     factors,
		PolicyCitations: result.PolicyCitations,
		Narrative:       result.Narrative,
		Reasoning:       result.UnderwriterReasoning,
		CreatedAt:       now,
	}
	if err := a.store.SaveRationale(ctx, rationale); err != nil {
		return AssessResponse{}, fmt.Errorf("persisting rationale: %w", err)
	}

	a.metrics.ObserveAssessment(result.Decision)
	logger.Info("Assessment persisted.",
		"assessment_id", id,
		"decision", result.Decision,
		"overall_score", result.OverallScore)
	return AssessResponse{AssessmentID: id, Result: result}, nil
}
