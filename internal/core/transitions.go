package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/logging"
	"github.com/JonMunkholm/reviewflow/internal/status"
	"github.com/jackc/pgx/v5"
)

// Transition moves one submission to target. Without force the move must
// satisfy the transition table; with force any known status is accepted.
// Force is an administrative override and is never used by the pipeline.
func (s *Service) Transition(ctx context.Context, id string, target status.Status, force bool) (*SubmissionView, error) {
	if !target.Valid() {
		return nil, validationError("status", string(target), fmt.Errorf("unknown target status %q", target))
	}

	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	logger := logging.WithFields(ctx, "submission_id", id, "target", string(target))

	var updated database.Submission
	err := s.db.InTx(ctx, func(q database.Store) error {
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

		if force {
			logger.Warn("status override", "from", cur.Status)
		} else if err := status.Check(status.Status(cur.Status), target); err != nil {
			var te *status.TransitionError
			if errors.As(err, &te) {
				te.SubmissionID = id
			}
			return stateError(err)
		}

		if err := q.SetStatus(ctx, id, string(target)); err != nil {
			return infraError(fmt.Errorf("set status: %w", err))
		}
		if updated, err = q.GetSubmission(ctx, id); err != nil {
			return infraError(fmt.Errorf("reload submission: %w", err))
		}
		return nil
	})
	if err != nil {
		logger.Log(ctx, levelFor(err), "transition rejected", "error", err)
		return nil, err
	}

	logger.Info("status changed", "forced", force)
	v := newSubmissionView(updated)
	return &v, nil
}

// BulkTransitionResult reports a set-based transition.
type BulkTransitionResult struct {
	Target   status.Status      `json:"target"`
	Updated  []string           `json:"updated"`
	Rejected []status.Rejection `json:"rejected"`
}

// TransitionMany moves every id that may legally enter target with one
// update and itemizes the rest. The outcome equals applying Transition to
// each id on its own.
func (s *Service) TransitionMany(ctx context.Context, ids []string, target status.Status) (*BulkTransitionResult, error) {
	if !target.Valid() {
		return nil, validationError("status", string(target), fmt.Errorf("unknown target status %q", target))
	}

	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	result := &BulkTransitionResult{Target: target}
	err := s.db.InTx(ctx, func(q database.Store) error {
		rows, err := q.StatusesByID(ctx, ids)
		if err != nil {
			return infraError(fmt.Errorf("read statuses: %w", err))
		}
		current := make(map[string]status.Status, len(rows))
		for _, row := range rows {
			current[row.ID] = status.Status(row.Status)
		}

		valid, rejected := status.Partition(ids, current, target)
		result.Updated, result.Rejected = valid, rejected
		if len(valid) == 0 {
			return nil
		}

		n, err := q.SetStatuses(ctx, valid, string(target))
		if err != nil {
			return infraError(fmt.Errorf("update statuses: %w", err))
		}
		if int(n) != len(valid) {
			return infraError(fmt.Errorf("update statuses: %d of %d rows changed", n, len(valid)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Updated == nil {
		result.Updated = []string{}
	}
	if result.Rejected == nil {
		result.Rejected = []status.Rejection{}
	}
	logging.WithFields(ctx, "target", string(target)).Info("bulk transition",
		"requested", len(ids),
		"updated", len(result.Updated),
		"rejected", len(result.Rejected),
	)
	return result, nil
}

// levelFor logs caller mistakes as warnings and everything else as errors.
func levelFor(err error) slog.Level {
	switch KindOf(err) {
	case KindNotFound, KindStateViolation, KindValidation:
		return slog.LevelWarn
	}
	return slog.LevelError
}
