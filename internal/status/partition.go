package status

import "sort"

// Rejection explains why one identifier was left out of a bulk transition.
type Rejection struct {
	SubmissionID string `json:"submissionId"`
	Current      Status `json:"current,omitempty"`
	Reason       string `json:"reason"`
	NotFound     bool   `json:"notFound,omitempty"`
}

// Partition splits ids into those whose current state may move to target and
// those that may not. current holds the persisted state of every id that
// exists; ids missing from it are rejected as not found. Duplicate ids are
// considered once. The result does not depend on the order of ids: both
// slices are sorted by identifier.
func Partition(ids []string, current map[string]Status, target Status) ([]string, []Rejection) {
	seen := make(map[string]struct{}, len(ids))
	var valid []string
	var rejected []Rejection

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		st, ok := current[id]
		if !ok {
			rejected = append(rejected, Rejection{
				SubmissionID: id,
				Reason:       "submission not found",
				NotFound:     true,
			})
			continue
		}
		if err := Check(st, target); err != nil {
			te, isTE := err.(*TransitionError)
			if isTE {
				te.SubmissionID = id
			}
			rejected = append(rejected, Rejection{
				SubmissionID: id,
				Current:      st,
				Reason:       err.Error(),
			})
			continue
		}
		valid = append(valid, id)
	}

	sort.Strings(valid)
	sort.Slice(rejected, func(i, j int) bool {
		return rejected[i].SubmissionID < rejected[j].SubmissionID
	})
	return valid, rejected
}
