package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/JonMunkholm/reviewflow/internal/logging"
	"github.com/JonMunkholm/reviewflow/internal/normalize"
	"github.com/JonMunkholm/reviewflow/internal/status"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultBatchSize caps the submissions selected by one stage run.
const DefaultBatchSize = 500

// Failure is the structured record of one submission that did not advance.
type Failure struct {
	SubmissionID string   `json:"submissionId,omitempty"`
	Label        string   `json:"label"`
	Kind         Kind     `json:"kind"`
	Code         string   `json:"code"`
	Error        string   `json:"error"`
	Field        string   `json:"field,omitempty"`
	Value        string   `json:"value,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

// Summary reports the outcome of one stage run. Batch operations return a
// Summary even when items fail; only run-level problems are errors.
type Summary struct {
	RunID            string       `json:"runId"`
	Stage            Stage        `json:"stage"`
	Attempted        int          `json:"attempted"`
	Succeeded        int          `json:"succeeded"`
	Failed           int          `json:"failed"`
	Skipped          int          `json:"skipped"`
	FailuresByReason map[Kind]int `json:"failuresByReason"`
	Failures         []Failure    `json:"failures"`
	StartedAt        time.Time    `json:"startedAt"`
	Duration         Duration     `json:"durationMs"`
}

func newSummary(r *run, started time.Time) *Summary {
	return &Summary{
		RunID:            r.id.String(),
		Stage:            r.stage,
		FailuresByReason: make(map[Kind]int),
		Failures:         []Failure{},
		StartedAt:        started,
	}
}

func (s *Summary) addFailure(f Failure) {
	s.Failed++
	s.FailuresByReason[f.Kind]++
	s.Failures = append(s.Failures, f)
}

// Duration marshals as whole milliseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%d", time.Duration(d).Milliseconds())), nil
}

// PipelineResult holds the summaries of a full pipeline run, in stage order.
type PipelineResult struct {
	RunID    string     `json:"runId"`
	Stages   []*Summary `json:"stages"`
	Duration Duration   `json:"durationMs"`
}

// ItemResult is the outcome of running one stage for one submission.
type ItemResult struct {
	RunID           string   `json:"runId"`
	SubmissionID    string   `json:"submissionId"`
	Stage           Stage    `json:"stage"`
	OK              bool     `json:"ok"`
	Status          string   `json:"status"`
	SpecificationID int64    `json:"specificationId,omitempty"`
	Failure         *Failure `json:"failure,omitempty"`
}

// ============================================================================
// Runs
// ============================================================================

func (s *Service) newRun(ctx context.Context, id uuid.UUID, stage Stage, cache *enum.Cache) (*run, error) {
	r := &run{
		id:      id,
		stage:   stage,
		cache:   cache,
		aliases: s.Aliases(),
		logger:  logging.WithFields(ctx, "run_id", id.String(), "stage", string(stage)),
	}
	if stage == StageCleanTitle {
		set, err := s.ActiveRuleSet(ctx)
		if err != nil {
			return nil, err
		}
		if r.cleaner, err = normalize.New(set); err != nil {
			return nil, validationError("title_rules", "", fmt.Errorf("invalid rules: %w", err))
		}
	}
	return r, nil
}

// RunStage runs stage over every eligible submission, one transaction per
// submission. Item failures are reported in the Summary; an error means the
// run itself could not proceed.
func (s *Service) RunStage(ctx context.Context, stage Stage) (*Summary, error) {
	if _, ok := s.handlers[stage]; !ok && stage != StageIngest {
		return nil, validationError("stage", string(stage), fmt.Errorf("unknown stage %q", stage))
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	// Once started, a batch runs to completion; only RunTimeout bounds it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RunTimeout)
	defer cancel()

	r, err := s.newRun(ctx, uuid.New(), stage, enum.NewCache(s.cacheTTL))
	if err != nil {
		return nil, err
	}
	if stage == StageIngest {
		return s.ingest(ctx, r)
	}
	return s.runBatch(ctx, r)
}

// RunPipeline runs every stage in order. The lookup cache is created for
// this run and shared by its stages. An ingest failure stops the pipeline.
func (s *Service) RunPipeline(ctx context.Context) (*PipelineResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	// Once started, a batch runs to completion; only RunTimeout bounds it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RunTimeout)
	defer cancel()

	start := s.now()
	id := uuid.New()
	cache := enum.NewCache(s.cacheTTL)
	result := &PipelineResult{RunID: id.String(), Stages: []*Summary{}}
	logger := logging.WithFields(ctx, "run_id", result.RunID)
	logger.Info("pipeline started")

	for _, stage := range Stages() {
		if stage == StageIngest && s.forms == nil {
			logger.Warn("ingest skipped, forms client not configured")
			continue
		}

		r, err := s.newRun(ctx, id, stage, cache)
		if err != nil {
			return result, err
		}

		var summary *Summary
		if stage == StageIngest {
			summary, err = s.ingest(ctx, r)
		} else {
			summary, err = s.runBatch(ctx, r)
		}
		if summary != nil {
			result.Stages = append(result.Stages, summary)
		}
		if err != nil {
			result.Duration = Duration(s.now().Sub(start))
			logger.Error("pipeline stopped", "stage", stage, "error", err)
			return result, err
		}
	}

	result.Duration = Duration(s.now().Sub(start))
	hits, misses := cache.Stats()
	logger.Info("pipeline completed",
		"duration_ms", time.Duration(result.Duration).Milliseconds(),
		"cache_hits", hits,
		"cache_misses", misses,
	)
	return result, nil
}

// runBatch processes the eligible submissions for r.stage strictly one at a
// time.
func (s *Service) runBatch(ctx context.Context, r *run) (*Summary, error) {
	h := s.handlers[r.stage]
	summary := newSummary(r, s.now())

	params := h.eligibility()
	params.Limit = s.batchSize
	if params.Limit <= 0 {
		params.Limit = DefaultBatchSize
	}
	items, err := s.db.ListEligible(ctx, params)
	if err != nil {
		return nil, infraError(fmt.Errorf("list eligible submissions: %w", err))
	}
	r.logger.Info("stage started", "eligible", len(items))

	var tracker *progressTracker
	if r.stage == StageGenerateSpecification {
		tracker = newProgressTracker(s.progress, s.progressInterval, s.now, summary.RunID, r.stage, len(items))
	}

	for i, sub := range items {
		if err := ctx.Err(); err != nil {
			summary.Skipped += len(items) - i
			r.logger.Warn("stage interrupted", "remaining", len(items)-i, "error", err)
			break
		}

		summary.Attempted++
		if f, _ := s.processItem(ctx, r, h, sub); f != nil {
			summary.addFailure(*f)
		} else {
			summary.Succeeded++
		}
		tracker.tick(i + 1)
	}
	if len(items) == 0 {
		tracker.tick(0)
	}

	summary.Duration = Duration(s.now().Sub(summary.StartedAt))
	r.logger.Info("stage completed",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration_ms", time.Duration(summary.Duration).Milliseconds(),
	)
	return summary, nil
}

// ============================================================================
// Single submissions
// ============================================================================

// GenerateSpecification materializes one submission. A submission that
// already has a specification is refreshed in place.
func (s *Service) GenerateSpecification(ctx context.Context, id string) (*ItemResult, error) {
	return s.RerunStage(ctx, id, StageGenerateSpecification)
}

// RerunStage runs stage for one submission, outside any batch, under the
// same transition rules as a batch run. Item failures are returned in the
// result; an error means the submission or stage could not be found.
func (s *Service) RerunStage(ctx context.Context, id string, stage Stage) (*ItemResult, error) {
	if stage == StageIngest {
		return nil, stateError(fmt.Errorf("stage cannot run for a single submission: %s", stage))
	}
	h, ok := s.handlers[stage]
	if !ok {
		return nil, validationError("stage", string(stage), fmt.Errorf("unknown stage %q", stage))
	}

	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	sub, err := s.db.GetSubmission(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, submissionNotFound(id)
	}
	if err != nil {
		return nil, infraError(fmt.Errorf("get submission: %w", err))
	}

	r, err := s.newRun(ctx, uuid.New(), stage, enum.NewCache(s.cacheTTL))
	if err != nil {
		return nil, err
	}
	r.logger = r.logger.With("submission_id", id)

	result := &ItemResult{RunID: r.id.String(), SubmissionID: id, Stage: stage}
	f, item := s.processItem(ctx, r, h, sub)
	result.Failure = f
	result.OK = f == nil
	if item != nil {
		result.SpecificationID = item.specID
	}

	if after, err := s.db.GetSubmission(ctx, id); err == nil {
		result.Status = after.Status
	} else {
		result.Status = sub.Status
	}
	return result, nil
}

// ============================================================================
// Per-item unit of work
// ============================================================================

// processItem runs one submission through h. On failure every write made
// for it is rolled back, the failure is logged to the event table and the
// submission's error message is set.
func (s *Service) processItem(ctx context.Context, r *run, h stageHandler, sub database.Submission) (*Failure, *workItem) {
	item := &workItem{sub: sub}

	err := checkStage(r.stage, sub)
	if err == nil {
		err = h.prepare(ctx, r, item)
	}
	if err == nil {
		err = s.db.InTx(ctx, func(q database.Store) error {
			return s.executeItem(ctx, r, h, q, item)
		})
	}
	if err == nil {
		r.logger.Debug("submission advanced", "submission_id", sub.ID)
		return nil, item
	}

	f := s.recordFailure(ctx, r, sub, err)
	return &f, item
}

func (s *Service) executeItem(ctx context.Context, r *run, h stageHandler, q database.Store, item *workItem) error {
	id := item.sub.ID
	if err := q.LockSubmission(ctx, id); err != nil {
		return infraError(fmt.Errorf("lock submission: %w", err))
	}
	cur, err := q.GetSubmissionForUpdate(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return submissionNotFound(id)
	}
	if err != nil {
		return infraError(fmt.Errorf("get submission: %w", err))
	}
	if err := checkStage(r.stage, cur); err != nil {
		return err
	}
	item.sub = cur

	if err := h.execute(ctx, r, q, item); err != nil {
		return err
	}

	target := r.stage.Target()
	if cur.Status != string(target) {
		if err := q.SetStatus(ctx, id, string(target)); err != nil {
			return infraError(fmt.Errorf("set status: %w", err))
		}
	}
	if cur.ErrorMessage.Valid {
		if err := q.SetErrorMessage(ctx, id, ""); err != nil {
			return infraError(fmt.Errorf("clear error message: %w", err))
		}
	}
	return nil
}

// checkStage applies the transition rule for entering the stage's target.
// Regenerating a specification is allowed from the terminal state.
func checkStage(stage Stage, sub database.Submission) error {
	current := status.Status(sub.Status)
	target := stage.Target()
	if stage == StageGenerateSpecification && current == target {
		return nil
	}
	if err := status.Check(current, target); err != nil {
		var te *status.TransitionError
		if errors.As(err, &te) {
			te.SubmissionID = sub.ID
		}
		return stateError(err)
	}
	return nil
}

// recordFailure converts err into a Failure and persists it. Persistence
// problems are logged, never returned: the failure itself is what matters.
func (s *Service) recordFailure(ctx context.Context, r *run, sub database.Submission, err error) Failure {
	pe := Classify(err)
	f := Failure{
		SubmissionID: sub.ID,
		Label:        submissionLabel(sub),
		Kind:         pe.Kind,
		Code:         MapError(pe).Code,
		Error:        pe.Error(),
		Field:        pe.Field,
		Value:        pe.Value,
		Suggestions:  pe.Suggestions,
	}

	// The work context may have expired; the record should still land.
	wctx := context.WithoutCancel(ctx)
	s.logEvent(wctx, r, f)
	// A state violation attempted nothing; the submission keeps its message.
	if sub.ID != "" && f.Kind != KindStateViolation {
		if err := s.db.SetErrorMessage(wctx, sub.ID, f.Error); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Error("failed to set error message", "submission_id", sub.ID, "error", err)
		}
	}

	level := slog.LevelWarn
	if f.Kind == KindInfra || f.Kind == KindUpstream {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "submission failed",
		"submission_id", f.SubmissionID,
		"kind", f.Kind,
		"code", f.Code,
		"field", f.Field,
		"error", f.Error,
	)
	return f
}

func (s *Service) logEvent(ctx context.Context, r *run, f Failure) {
	_, err := s.db.InsertEvent(ctx, database.InsertEventParams{
		RunID:        r.id,
		SubmissionID: ToPgText(f.SubmissionID),
		Stage:        string(r.stage),
		Kind:         string(f.Kind),
		Code:         f.Code,
		Message:      f.Error,
		Field:        ToPgText(f.Field),
		Value:        ToPgText(f.Value),
		Suggestions:  f.Suggestions,
	})
	if err != nil {
		r.logger.Error("failed to record pipeline event", "submission_id", f.SubmissionID, "error", err)
	}
}

// submissionLabel is the human-readable name shown next to a failure.
func submissionLabel(sub database.Submission) string {
	if l := firstNonBlank(sub.CleanedTitle.String, sub.ProductTitle.String); l != "" {
		return l
	}
	return sub.ID
}

