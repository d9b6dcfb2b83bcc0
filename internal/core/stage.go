package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/JonMunkholm/reviewflow/internal/normalize"
	"github.com/JonMunkholm/reviewflow/internal/services/catalog"
	"github.com/JonMunkholm/reviewflow/internal/status"
	"github.com/google/uuid"
)

// Stage is one step of the pipeline.
type Stage string

const (
	StageIngest                Stage = "ingest"
	StageCleanTitle            Stage = "clean_title"
	StageMatchProduct          Stage = "match_product"
	StageGenerateSpecification Stage = "generate_specification"
)

// Stages returns the pipeline in execution order.
func Stages() []Stage {
	return []Stage{StageIngest, StageCleanTitle, StageMatchProduct, StageGenerateSpecification}
}

var stageAliases = map[string]Stage{
	"clean":    StageCleanTitle,
	"match":    StageMatchProduct,
	"generate": StageGenerateSpecification,
}

// ParseStage converts a stage name, or its short form, into a Stage.
func ParseStage(name string) (Stage, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, s := range Stages() {
		if key == string(s) {
			return s, nil
		}
	}
	if s, ok := stageAliases[key]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown stage %q", name)
}

// Target is the status a submission holds after the stage succeeds.
func (s Stage) Target() status.Status {
	switch s {
	case StageIngest:
		return status.Fetched
	case StageCleanTitle:
		return status.TitleCleaned
	case StageMatchProduct:
		return status.ShopifyMapped
	case StageGenerateSpecification:
		return status.SpecificationGenerated
	}
	return ""
}

// run is the state owned by one batch or single-submission run. The enum
// cache lives here so nothing leaks between runs.
type run struct {
	id      uuid.UUID
	stage   Stage
	cache   *enum.Cache
	aliases enum.Aliases
	cleaner *normalize.Cleaner
	logger  *slog.Logger
}

func (r *run) resolver(src enum.Source) *enum.Resolver {
	return enum.NewResolver(src, r.cache, r.aliases)
}

// workItem carries one submission through prepare and execute.
type workItem struct {
	sub        database.Submission
	title      string
	candidates []catalog.Product
	specID     int64
}

// stageHandler is implemented by every per-submission stage. prepare runs
// outside the transaction and may call external services; execute runs
// inside it and must only touch q.
type stageHandler interface {
	eligibility() database.ListEligibleParams
	prepare(ctx context.Context, r *run, item *workItem) error
	execute(ctx context.Context, r *run, q database.Store, item *workItem) error
}

// ============================================================================
// Title cleaning
// ============================================================================

// emptySegment matches a delimiter directly followed by another, which
// leaves an empty brand or product segment.
var emptySegment = regexp.MustCompile(`\|\s*\|`)

type cleanStage struct{}

func (cleanStage) eligibility() database.ListEligibleParams {
	return database.ListEligibleParams{Status: string(status.Fetched), RequireTitle: true}
}

func (cleanStage) prepare(context.Context, *run, *workItem) error {
	return nil
}

func (cleanStage) execute(ctx context.Context, r *run, q database.Store, item *workItem) error {
	raw := strings.TrimSpace(item.sub.ProductTitle.String)
	if raw == "" {
		return validationError("product_title", "", errors.New("required field product_title is empty"))
	}
	if emptySegment.MatchString(raw) {
		return validationError("product_title", raw, errors.New("illegal delimiter sequence in product title"))
	}

	cleaned, ok := r.cleaner.Clean(raw)
	if !ok || cleaned == "" {
		return validationError("product_title", raw, errors.New("title is empty after cleaning"))
	}

	if err := q.UpdateCleanedTitle(ctx, item.sub.ID, cleaned); err != nil {
		return infraError(fmt.Errorf("update cleaned title: %w", err))
	}
	item.title = cleaned
	return nil
}

// ============================================================================
// Catalog matching
// ============================================================================

// MatchThreshold is the minimum resemblance for a fuzzy catalog match.
const MatchThreshold = 0.5

type matchStage struct {
	catalog catalog.Searcher
}

func (matchStage) eligibility() database.ListEligibleParams {
	return database.ListEligibleParams{Status: string(status.TitleCleaned), RequireCleanedTitle: true}
}

func (m matchStage) prepare(ctx context.Context, r *run, item *workItem) error {
	title := strings.TrimSpace(item.sub.CleanedTitle.String)
	if title == "" {
		return validationError("cleaned_title", "", errors.New("required field cleaned_title is empty"))
	}
	if m.catalog == nil {
		return infraError(errors.New("catalog client not configured"))
	}

	vendor := strings.TrimSpace(item.sub.Brand.String)
	candidates, err := m.catalog.SearchProducts(ctx, title, vendor)
	if err != nil {
		return upstreamError(err)
	}
	if len(candidates) == 0 && vendor != "" {
		if candidates, err = m.catalog.SearchProducts(ctx, title, ""); err != nil {
			return upstreamError(err)
		}
	}

	item.title = title
	item.candidates = candidates
	return nil
}

func (matchStage) execute(ctx context.Context, r *run, q database.Store, item *workItem) error {
	if strings.TrimSpace(item.sub.CleanedTitle.String) != item.title {
		return stateError(fmt.Errorf("cleaned title of %s changed during run", item.sub.ID))
	}

	product, ok := pickProduct(item.title, item.candidates)
	if !ok {
		titles := make([]string, len(item.candidates))
		for i, c := range item.candidates {
			titles[i] = c.Title
		}
		pe := validationError("cleaned_title", item.title, fmt.Errorf("no catalog match for %q", item.title))
		pe.Suggestions = enum.Rank(item.title, titles, enum.MaxSuggestions)
		return pe
	}

	err := q.UpsertCatalogMatch(ctx, database.UpsertCatalogMatchParams{
		SubmissionID: item.sub.ID,
		ProductID:    product.ID,
		Handle:       product.Handle,
		Title:        product.Title,
		ProductType:  product.ProductType,
		Vendor:       product.Vendor,
	})
	if err != nil {
		return infraError(fmt.Errorf("store catalog match: %w", err))
	}
	return nil
}

// pickProduct prefers an exact case-folded title, then a lone candidate,
// then the closest candidate above MatchThreshold.
func pickProduct(title string, candidates []catalog.Product) (catalog.Product, bool) {
	key := enum.Fold(title)
	for _, c := range candidates {
		if enum.Fold(c.Title) == key {
			return c, true
		}
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	best, bestScore := -1, MatchThreshold
	for i, c := range candidates {
		if score := enum.Score(title, c.Title); score >= bestScore {
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
	}
	if best < 0 {
		return catalog.Product{}, false
	}
	return candidates[best], true
}

// ============================================================================
// Specification generation
// ============================================================================

type generateStage struct{}

func (generateStage) eligibility() database.ListEligibleParams {
	return database.ListEligibleParams{Status: string(status.ShopifyMapped), RequireCatalogMatch: true}
}

func (generateStage) prepare(context.Context, *run, *workItem) error {
	return nil
}

func (generateStage) execute(ctx context.Context, r *run, q database.Store, item *workItem) error {
	id, err := materialize(ctx, q, r.resolver(q), item.sub)
	if err != nil {
		return err
	}
	item.specID = id
	return nil
}
