package core

import (
	"context"
	"testing"

	"github.com/JonMunkholm/reviewflow/internal/status"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name     string
		current  status.Status
		target   status.Status
		force    bool
		wantKind Kind
	}{
		{"single predecessor", status.Fetched, status.TitleCleaned, false, ""},
		{"skipping a step", status.Fetched, status.ShopifyMapped, false, KindStateViolation},
		{"backwards", status.ShopifyMapped, status.TitleCleaned, false, KindStateViolation},
		{"into ignore", status.Fetched, status.Ignore, false, KindStateViolation},
		{"override backwards", status.SpecificationGenerated, status.Fetched, true, ""},
		{"override into ignore", status.TitleCleaned, status.Ignore, true, ""},
		{"unknown target", status.Fetched, status.Status("archived"), true, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m, _ := newTestService(t, Options{})
			sub := readySubmission("sub-1")
			sub.Status = string(tt.current)
			m.PutSubmission(sub)

			view, err := svc.Transition(context.Background(), "sub-1", tt.target, tt.force)
			if KindOf(err) != tt.wantKind {
				t.Fatalf("Transition() error = %v, want kind %q", err, tt.wantKind)
			}

			want := tt.target
			if tt.wantKind != "" {
				want = tt.current
			} else if view.Status != string(tt.target) {
				t.Errorf("view status = %q, want %q", view.Status, tt.target)
			}
			if got := mustGet(t, m, "sub-1").Status; got != string(want) {
				t.Errorf("stored status = %q, want %q", got, want)
			}
		})
	}
}

func TestTransition_UnknownSubmission(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	_, err := svc.Transition(context.Background(), "missing", status.TitleCleaned, false)
	if !IsNotFound(err) {
		t.Errorf("Transition() error = %v, want not found", err)
	}
}

func TestTransitionMany(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	current := map[string]status.Status{
		"a": status.Fetched,
		"b": status.TitleCleaned,
		"c": status.Fetched,
		"d": status.Ignore,
	}
	for id, st := range current {
		sub := readySubmission(id)
		sub.Status = string(st)
		m.PutSubmission(sub)
	}

	ids := []string{"c", "b", "missing", "a", "c", "d"}
	res, err := svc.TransitionMany(context.Background(), ids, status.TitleCleaned)
	if err != nil {
		t.Fatalf("TransitionMany() error = %v", err)
	}

	if len(res.Updated) != 2 || res.Updated[0] != "a" || res.Updated[1] != "c" {
		t.Errorf("Updated = %v, want [a c]", res.Updated)
	}
	rejected := map[string]status.Rejection{}
	for _, r := range res.Rejected {
		rejected[r.SubmissionID] = r
	}
	if len(rejected) != 3 {
		t.Fatalf("Rejected = %+v, want b, d and missing", res.Rejected)
	}
	if !rejected["missing"].NotFound {
		t.Errorf("missing rejection = %+v, want NotFound", rejected["missing"])
	}
	if rejected["b"].Current != status.TitleCleaned {
		t.Errorf("b rejection current = %q, want %q", rejected["b"].Current, status.TitleCleaned)
	}

	// Same outcome as one Transition per id.
	for id, before := range current {
		got := status.Status(mustGet(t, m, id).Status)
		want := before
		if status.CanTransition(before, status.TitleCleaned) {
			want = status.TitleCleaned
		}
		if got != want {
			t.Errorf("%s status = %q, want %q", id, got, want)
		}
	}
}

func TestTransitionMany_NothingEligible(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	m.PutSubmission(readySubmission("sub-1"))

	res, err := svc.TransitionMany(context.Background(), []string{"sub-1"}, status.TitleCleaned)
	if err != nil {
		t.Fatalf("TransitionMany() error = %v", err)
	}
	if len(res.Updated) != 0 || len(res.Rejected) != 1 {
		t.Errorf("result = %+v, want one rejection", res)
	}
}

func TestTransitionMany_UpdateFailureRollsBack(t *testing.T) {
	svc, m, _ := newTestService(t, Options{})
	sub := readySubmission("sub-1")
	sub.Status = string(status.Fetched)
	m.PutSubmission(sub)
	m.FailNext("SetStatuses", errTest("connection reset by peer"))

	if _, err := svc.TransitionMany(context.Background(), []string{"sub-1"}, status.TitleCleaned); KindOf(err) != KindInfra {
		t.Fatalf("TransitionMany() error = %v, want infra", err)
	}
	if got := mustGet(t, m, "sub-1").Status; got != string(status.Fetched) {
		t.Errorf("status = %q, want unchanged", got)
	}
}
