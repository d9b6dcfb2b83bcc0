// Package testsupport holds test doubles shared across packages.
package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type lookupRow struct {
	id   int64
	name string
}

type linkKey struct {
	junction database.Junction
	specID   int64
}

type memState struct {
	users       map[int64]database.User
	submissions map[string]database.Submission
	matches     map[string]database.CatalogMatch
	specs       map[int64]database.Specification
	links       map[linkKey]map[int64]bool
	lookups     map[enum.Table][]lookupRow
	events      []database.PipelineEvent
	rules       []database.TitleRule
	exceptions  []database.TitleRuleException
	nextID      int64
}

func (s *memState) clone() *memState {
	c := &memState{
		users:       make(map[int64]database.User, len(s.users)),
		submissions: make(map[string]database.Submission, len(s.submissions)),
		matches:     make(map[string]database.CatalogMatch, len(s.matches)),
		specs:       make(map[int64]database.Specification, len(s.specs)),
		links:       make(map[linkKey]map[int64]bool, len(s.links)),
		lookups:     make(map[enum.Table][]lookupRow, len(s.lookups)),
		events:      append([]database.PipelineEvent(nil), s.events...),
		rules:       append([]database.TitleRule(nil), s.rules...),
		exceptions:  append([]database.TitleRuleException(nil), s.exceptions...),
		nextID:      s.nextID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.submissions {
		c.submissions[k] = v
	}
	for k, v := range s.matches {
		c.matches[k] = v
	}
	for k, v := range s.specs {
		c.specs[k] = v
	}
	for k, set := range s.links {
		cs := make(map[int64]bool, len(set))
		for id := range set {
			cs[id] = true
		}
		c.links[k] = cs
	}
	for k, v := range s.lookups {
		c.lookups[k] = append([]lookupRow(nil), v...)
	}
	return c
}

// MemStore is an in-memory database.DB. Transactions run one at a time
// and restore a snapshot when fn fails, so tests can assert atomicity.
type MemStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	state    *memState
	failures map[string]error
	now      func() time.Time

	// Commits and Rollbacks count finished transactions.
	Commits   int
	Rollbacks int
}

var _ database.DB = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		state: &memState{
			users:       map[int64]database.User{},
			submissions: map[string]database.Submission{},
			matches:     map[string]database.CatalogMatch{},
			specs:       map[int64]database.Specification{},
			links:       map[linkKey]map[int64]bool{},
			lookups:     map[enum.Table][]lookupRow{},
		},
		failures: map[string]error{},
		now:      time.Now,
	}
}

// FailNext makes the next call to method return err.
func (m *MemStore) FailNext(method string, err error) {
	m.mu.Lock()
	m.failures[method] = err
	m.mu.Unlock()
}

// fail must be called with mu held.
func (m *MemStore) fail(method string) error {
	if err, ok := m.failures[method]; ok {
		delete(m.failures, method)
		return err
	}
	return nil
}

func (m *MemStore) id() int64 {
	m.state.nextID++
	return m.state.nextID
}

func (m *MemStore) InTx(ctx context.Context, fn func(database.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	if err := m.fail("InTx"); err != nil {
		m.mu.Unlock()
		return err
	}
	snapshot := m.state.clone()
	m.mu.Unlock()

	err := fn(m)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = snapshot
		m.Rollbacks++
		return err
	}
	m.Commits++
	return nil
}

// ============================================================================
// Seeding
// ============================================================================

// AddUser inserts a user and returns its id.
func (m *MemStore) AddUser(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.state.users[id] = database.User{ID: id, Name: name, CreatedAt: m.now()}
	return id
}

// AddLookup inserts lookup rows and returns their ids in order.
func (m *MemStore) AddLookup(table enum.Table, names ...string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, len(names))
	for i, name := range names {
		ids[i] = m.id()
		m.state.lookups[table] = append(m.state.lookups[table], lookupRow{id: ids[i], name: name})
	}
	return ids
}

// PutSubmission stores s as-is, replacing any existing row.
func (m *MemStore) PutSubmission(s database.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	m.state.submissions[s.ID] = s
}

// PutCatalogMatch stores a catalog match as-is.
func (m *MemStore) PutCatalogMatch(c database.CatalogMatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.matches[c.SubmissionID] = c
}

// Specifications returns every stored specification ordered by id.
func (m *MemStore) Specifications() []database.Specification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.Specification, 0, len(m.state.specs))
	for _, s := range m.state.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LinkCount returns the number of junction rows across all junctions.
func (m *MemStore) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, set := range m.state.links {
		n += len(set)
	}
	return n
}

// Events returns the event log in insertion order.
func (m *MemStore) Events() []database.PipelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.PipelineEvent(nil), m.state.events...)
}

// ============================================================================
// Lookups and users
// ============================================================================

func (m *MemStore) LookupID(_ context.Context, table enum.Table, name string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("LookupID"); err != nil {
		return 0, false, err
	}
	for _, row := range m.state.lookups[table] {
		if strings.EqualFold(row.name, name) {
			return row.id, true, nil
		}
	}
	return 0, false, nil
}

func (m *MemStore) ListNames(_ context.Context, table enum.Table) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.state.lookups[table]))
	for _, row := range m.state.lookups[table] {
		names = append(names, row.name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemStore) FindUserIDByName(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = strings.TrimSpace(name)
	for _, u := range m.state.users {
		if strings.EqualFold(u.Name, name) {
			return u.ID, nil
		}
	}
	return 0, pgx.ErrNoRows
}

// ============================================================================
// Submissions
// ============================================================================

func (m *MemStore) InsertSubmission(_ context.Context, arg database.InsertSubmissionParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertSubmission"); err != nil {
		return false, err
	}
	if _, ok := m.state.submissions[arg.ID]; ok {
		return false, nil
	}
	now := m.now()
	m.state.submissions[arg.ID] = database.Submission{
		ID:              arg.ID,
		SubmittedAt:     arg.SubmittedAt,
		ReviewerName:    arg.ReviewerName,
		ProductTitle:    arg.ProductTitle,
		ProductType:     arg.ProductType,
		Brand:           arg.Brand,
		MoistureLevel:   arg.MoistureLevel,
		Grind:           arg.Grind,
		NicotineLevel:   arg.NicotineLevel,
		ExperienceLevel: arg.ExperienceLevel,
		TobaccoTypes:    arg.TobaccoTypes,
		Cures:           arg.Cures,
		TastingNotes:    arg.TastingNotes,
		Review:          arg.Review,
		Rating:          arg.Rating,
		Status:          arg.Status,
		StatusUpdatedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return true, nil
}

func (m *MemStore) LatestSubmission(_ context.Context) (database.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest database.Submission
	found := false
	for _, s := range m.state.submissions {
		if !found || s.SubmittedAt.After(latest.SubmittedAt) ||
			(s.SubmittedAt.Equal(latest.SubmittedAt) && s.ID > latest.ID) {
			latest, found = s, true
		}
	}
	if !found {
		return database.Submission{}, pgx.ErrNoRows
	}
	return latest, nil
}

func (m *MemStore) GetSubmission(_ context.Context, id string) (database.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetSubmission"); err != nil {
		return database.Submission{}, err
	}
	s, ok := m.state.submissions[id]
	if !ok {
		return database.Submission{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *MemStore) GetSubmissionForUpdate(ctx context.Context, id string) (database.Submission, error) {
	return m.GetSubmission(ctx, id)
}

func (m *MemStore) ListEligible(_ context.Context, arg database.ListEligibleParams) ([]database.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListEligible"); err != nil {
		return nil, err
	}
	var out []database.Submission
	for _, s := range m.state.submissions {
		if s.Status != arg.Status {
			continue
		}
		if arg.RequireTitle && strings.TrimSpace(s.ProductTitle.String) == "" {
			continue
		}
		if arg.RequireCleanedTitle && strings.TrimSpace(s.CleanedTitle.String) == "" {
			continue
		}
		if _, ok := m.state.matches[s.ID]; arg.RequireCatalogMatch && !ok {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	if arg.Limit > 0 && len(out) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (m *MemStore) update(id string, fn func(*database.Submission)) error {
	s, ok := m.state.submissions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(&s)
	s.UpdatedAt = m.now()
	m.state.submissions[id] = s
	return nil
}

func (m *MemStore) UpdateCleanedTitle(_ context.Context, id string, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateCleanedTitle"); err != nil {
		return err
	}
	return m.update(id, func(s *database.Submission) {
		s.CleanedTitle.String, s.CleanedTitle.Valid = title, true
	})
}

func (m *MemStore) SetStatus(_ context.Context, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SetStatus"); err != nil {
		return err
	}
	return m.update(id, func(s *database.Submission) {
		s.Status = status
		s.StatusUpdatedAt = m.now()
	})
}

func (m *MemStore) SetStatuses(_ context.Context, ids []string, status string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SetStatuses"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		err := m.update(id, func(s *database.Submission) {
			s.Status = status
			s.StatusUpdatedAt = m.now()
		})
		if err == nil {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) StatusesByID(_ context.Context, ids []string) ([]database.SubmissionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.SubmissionStatus
	seen := map[string]bool{}
	for _, id := range ids {
		s, ok := m.state.submissions[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, database.SubmissionStatus{ID: id, Status: s.Status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) SetErrorMessage(_ context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(id, func(s *database.Submission) {
		s.ErrorMessage.String, s.ErrorMessage.Valid = message, message != ""
	})
}

func (m *MemStore) LockSubmission(context.Context, string) error {
	return nil
}

// ============================================================================
// Catalog matches and specifications
// ============================================================================

func (m *MemStore) UpsertCatalogMatch(_ context.Context, arg database.UpsertCatalogMatchParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertCatalogMatch"); err != nil {
		return err
	}
	if _, ok := m.state.submissions[arg.SubmissionID]; !ok {
		return errors.New("insert or update on table \"catalog_matches\" violates foreign key constraint")
	}
	m.state.matches[arg.SubmissionID] = database.CatalogMatch{
		SubmissionID: arg.SubmissionID,
		ProductID:    arg.ProductID,
		Handle:       arg.Handle,
		Title:        arg.Title,
		ProductType:  arg.ProductType,
		Vendor:       arg.Vendor,
		MatchedAt:    m.now(),
	}
	return nil
}

func (m *MemStore) GetCatalogMatch(_ context.Context, submissionID string) (database.CatalogMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.matches[submissionID]
	if !ok {
		return database.CatalogMatch{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *MemStore) GetSpecificationBySubmission(_ context.Context, submissionID string) (database.Specification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.state.specs {
		if s.SubmissionID == submissionID {
			return s, nil
		}
	}
	return database.Specification{}, pgx.ErrNoRows
}

func specFromParams(id int64, arg database.SpecificationParams) database.Specification {
	return database.Specification{
		ID:                id,
		SubmissionID:      arg.SubmissionID,
		UserID:            arg.UserID,
		ProductHandle:     arg.ProductHandle,
		ProductTitle:      arg.ProductTitle,
		ProductTypeID:     arg.ProductTypeID,
		BrandID:           arg.BrandID,
		MoistureLevelID:   arg.MoistureLevelID,
		GrindID:           arg.GrindID,
		NicotineLevelID:   arg.NicotineLevelID,
		ExperienceLevelID: arg.ExperienceLevelID,
		Review:            arg.Review,
		Rating:            arg.Rating,
		BoostedRating:     arg.BoostedRating,
	}
}

func (m *MemStore) InsertSpecification(_ context.Context, arg database.SpecificationParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertSpecification"); err != nil {
		return 0, err
	}
	for _, s := range m.state.specs {
		if s.SubmissionID == arg.SubmissionID {
			return 0, errors.New("duplicate key value violates unique constraint \"specifications_submission_id_key\"")
		}
	}
	id := m.id()
	spec := specFromParams(id, arg)
	spec.CreatedAt = m.now()
	spec.UpdatedAt = spec.CreatedAt
	m.state.specs[id] = spec
	return id, nil
}

func (m *MemStore) UpdateSpecification(_ context.Context, id int64, arg database.SpecificationParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateSpecification"); err != nil {
		return err
	}
	old, ok := m.state.specs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	spec := specFromParams(id, arg)
	spec.SubmissionID = old.SubmissionID
	spec.CreatedAt = old.CreatedAt
	spec.UpdatedAt = m.now()
	m.state.specs[id] = spec
	return nil
}

func (m *MemStore) DeleteSpecificationLinks(_ context.Context, j database.Junction, specID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := linkKey{junction: j, specID: specID}
	n := int64(len(m.state.links[key]))
	delete(m.state.links, key)
	return n, nil
}

func (m *MemStore) InsertSpecificationLink(_ context.Context, j database.Junction, specID, lookupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertSpecificationLink"); err != nil {
		return err
	}
	if !j.Valid() {
		return fmt.Errorf("unknown junction %q", j)
	}
	if _, ok := m.state.specs[specID]; !ok {
		return errors.New("insert on junction violates foreign key constraint")
	}
	key := linkKey{junction: j, specID: specID}
	if m.state.links[key] == nil {
		m.state.links[key] = map[int64]bool{}
	}
	m.state.links[key][lookupID] = true
	return nil
}

func (m *MemStore) ListSpecificationLinks(_ context.Context, j database.Junction, specID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.state.links[linkKey{junction: j, specID: specID}] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

// ============================================================================
// Events and rules
// ============================================================================

func (m *MemStore) InsertEvent(_ context.Context, arg database.InsertEventParams) (database.PipelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertEvent"); err != nil {
		return database.PipelineEvent{}, err
	}
	e := database.PipelineEvent{
		ID:           m.id(),
		RunID:        arg.RunID,
		SubmissionID: arg.SubmissionID,
		Stage:        arg.Stage,
		Kind:         arg.Kind,
		Code:         arg.Code,
		Message:      arg.Message,
		Field:        arg.Field,
		Value:        arg.Value,
		Suggestions:  append([]string(nil), arg.Suggestions...),
		CreatedAt:    m.now(),
	}
	m.state.events = append(m.state.events, e)
	return e, nil
}

func (m *MemStore) ListEvents(_ context.Context, arg database.ListEventsParams) ([]database.PipelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := arg.Limit
	if limit <= 0 {
		limit = database.DefaultEventLimit
	}
	var out []database.PipelineEvent
	for i := len(m.state.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.state.events[i]
		if arg.SubmissionID != "" && e.SubmissionID.String != arg.SubmissionID {
			continue
		}
		if arg.Stage != "" && e.Stage != arg.Stage {
			continue
		}
		if arg.Kind != "" && e.Kind != arg.Kind {
			continue
		}
		if arg.RunID != uuid.Nil && e.RunID != arg.RunID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemStore) ListTitleRules(context.Context) ([]database.TitleRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.TitleRule(nil), m.state.rules...), nil
}

func (m *MemStore) ListTitleRuleExceptions(context.Context) ([]database.TitleRuleException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.TitleRuleException(nil), m.state.exceptions...), nil
}

func (m *MemStore) ReplaceTitleRules(_ context.Context, rules []database.TitleRule, exceptions []database.TitleRuleException) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ReplaceTitleRules"); err != nil {
		return err
	}
	m.state.rules = append([]database.TitleRule(nil), rules...)
	m.state.exceptions = nil
	for _, e := range exceptions {
		e.ID = m.id()
		m.state.exceptions = append(m.state.exceptions, e)
	}
	return nil
}
