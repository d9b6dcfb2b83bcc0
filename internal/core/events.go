package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/google/uuid"
)

// Event is one entry of the append-only pipeline event log.
type Event struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"runId"`
	SubmissionID string    `json:"submissionId,omitempty"`
	Stage        Stage     `json:"stage"`
	Kind         Kind      `json:"kind"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	Field        string    `json:"field,omitempty"`
	Value        string    `json:"value,omitempty"`
	Suggestions  []string  `json:"suggestions,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EventFilter selects events. Zero fields match everything.
type EventFilter struct {
	SubmissionID string
	RunID        string
	Stage        Stage
	Kind         Kind
	Limit        int
}

// ListEvents returns matching events, newest first.
func (s *Service) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	params := database.ListEventsParams{
		SubmissionID: filter.SubmissionID,
		Stage:        string(filter.Stage),
		Kind:         string(filter.Kind),
		Limit:        filter.Limit,
	}
	if params.Limit <= 0 {
		params.Limit = database.DefaultEventLimit
	}
	if filter.RunID != "" {
		id, err := uuid.Parse(filter.RunID)
		if err != nil {
			return nil, validationError("run_id", filter.RunID, fmt.Errorf("invalid run id: %w", err))
		}
		params.RunID = id
	}

	rows, err := s.db.ListEvents(ctx, params)
	if err != nil {
		return nil, infraError(fmt.Errorf("list events: %w", err))
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, eventFromRow(row))
	}
	return events, nil
}

func eventFromRow(row database.PipelineEvent) Event {
	return Event{
		ID:           row.ID,
		RunID:        row.RunID.String(),
		SubmissionID: row.SubmissionID.String,
		Stage:        Stage(row.Stage),
		Kind:         Kind(row.Kind),
		Code:         row.Code,
		Message:      row.Message,
		Field:        row.Field.String,
		Value:        row.Value.String,
		Suggestions:  row.Suggestions,
		CreatedAt:    row.CreatedAt,
	}
}
