// Package forms reads review submissions from a Typeform-style responses API.
//
// Answers are keyed by field ref. Multi-choice answers are joined with
// newlines, which is the multi-value encoding the rest of the pipeline
// expects. Rich-text answers are reduced to plain text.
package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultPageSize is the page size used when a Query leaves it unset.
const DefaultPageSize = 200

// maxPages bounds FetchAll against a server that never stops paging.
const maxPages = 1000

// Field identifies which submission attribute an answer fills.
type Field string

const (
	FieldReviewer        Field = "reviewer"
	FieldProductTitle    Field = "product_title"
	FieldProductType     Field = "product_type"
	FieldBrand           Field = "brand"
	FieldMoistureLevel   Field = "moisture_level"
	FieldGrind           Field = "grind"
	FieldNicotineLevel   Field = "nicotine_level"
	FieldExperienceLevel Field = "experience_level"
	FieldTobaccoTypes    Field = "tobacco_types"
	FieldCures           Field = "cures"
	FieldTastingNotes    Field = "tasting_notes"
	FieldReview          Field = "review"
	FieldRating          Field = "rating"
)

// DefaultFieldRefs maps form field refs to submission attributes. The
// form's refs are set to the attribute names.
func DefaultFieldRefs() map[string]Field {
	fields := []Field{
		FieldReviewer, FieldProductTitle, FieldProductType, FieldBrand,
		FieldMoistureLevel, FieldGrind, FieldNicotineLevel, FieldExperienceLevel,
		FieldTobaccoTypes, FieldCures, FieldTastingNotes, FieldReview, FieldRating,
	}
	refs := make(map[string]Field, len(fields))
	for _, f := range fields {
		refs[string(f)] = f
	}
	return refs
}

// Response is one submission as the pipeline consumes it.
type Response struct {
	ID              string
	SubmittedAt     time.Time
	Reviewer        string
	ProductTitle    string
	ProductType     string
	Brand           string
	MoistureLevel   string
	Grind           string
	NicotineLevel   string
	ExperienceLevel string
	TobaccoTypes    string
	Cures           string
	TastingNotes    string
	Review          string
	Rating          int
}

// Query selects responses submitted at or after Since, minus ExcludeID.
type Query struct {
	Since     time.Time
	ExcludeID string
	PageSize  int
}

// Lister fetches responses.
type Lister interface {
	FetchAll(ctx context.Context, q Query) ([]Response, error)
}

// Client talks to the responses API.
type Client struct {
	baseURL    string
	formID     string
	token      string
	refs       map[string]Field
	httpClient *http.Client
}

var _ Lister = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithFieldRefs replaces the ref -> attribute mapping.
func WithFieldRefs(refs map[string]Field) Option {
	return func(c *Client) {
		if len(refs) > 0 {
			c.refs = refs
		}
	}
}

// New creates a forms client.
func New(baseURL, formID, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("forms base url required")
	}
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return nil, errors.New("forms form id required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		formID:     formID,
		token:      strings.TrimSpace(token),
		refs:       DefaultFieldRefs(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type page struct {
	TotalItems int    `json:"total_items"`
	PageCount  int    `json:"page_count"`
	Items      []item `json:"items"`
}

type item struct {
	ResponseID  string    `json:"response_id"`
	Token       string    `json:"token"`
	SubmittedAt time.Time `json:"submitted_at"`
	Answers     []answer  `json:"answers"`
}

type answer struct {
	Field struct {
		ID   string `json:"id"`
		Ref  string `json:"ref"`
		Type string `json:"type"`
	} `json:"field"`
	Type    string   `json:"type"`
	Text    string   `json:"text"`
	Email   string   `json:"email"`
	Number  *float64 `json:"number"`
	Boolean *bool    `json:"boolean"`
	Choice  *struct {
		Label string `json:"label"`
		Other string `json:"other"`
	} `json:"choice"`
	Choices *struct {
		Labels []string `json:"labels"`
		Other  string   `json:"other"`
	} `json:"choices"`
}

// FetchAll pages through every response matching q. Any failed page fails
// the whole call so callers never see a partial listing.
func (c *Client) FetchAll(ctx context.Context, q Query) ([]Response, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var out []Response
	before := ""
	for n := 0; n < maxPages; n++ {
		p, err := c.listPage(ctx, q, pageSize, before)
		if err != nil {
			return nil, err
		}
		for _, it := range p.Items {
			out = append(out, c.convert(it))
		}
		if len(p.Items) < pageSize {
			return out, nil
		}
		last := p.Items[len(p.Items)-1]
		before = last.Token
		if before == "" {
			before = last.ResponseID
		}
		if before == "" {
			return out, nil
		}
	}
	return nil, fmt.Errorf("forms listing exceeded %d pages", maxPages)
}

func (c *Client) listPage(ctx context.Context, q Query, pageSize int, before string) (*page, error) {
	endpoint, err := url.Parse(c.baseURL + "/forms/" + url.PathEscape(c.formID) + "/responses")
	if err != nil {
		return nil, fmt.Errorf("parse forms url: %w", err)
	}
	params := url.Values{}
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("completed", "true")
	if !q.Since.IsZero() {
		params.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if q.ExcludeID != "" {
		params.Set("excluded_response_ids", q.ExcludeID)
	}
	if before != "" {
		params.Set("before", before)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forms responses returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var payload page
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode forms response: %w", err)
	}
	return &payload, nil
}

func (c *Client) convert(it item) Response {
	r := Response{ID: it.ResponseID, SubmittedAt: it.SubmittedAt}
	if r.ID == "" {
		r.ID = it.Token
	}
	for _, a := range it.Answers {
		field, ok := c.refs[a.Field.Ref]
		if !ok {
			continue
		}
		if field == FieldRating {
			if a.Number != nil {
				r.Rating = int(*a.Number)
			}
			continue
		}
		value := answerText(a)
		switch field {
		case FieldReviewer:
			r.Reviewer = value
		case FieldProductTitle:
			r.ProductTitle = value
		case FieldProductType:
			r.ProductType = value
		case FieldBrand:
			r.Brand = value
		case FieldMoistureLevel:
			r.MoistureLevel = value
		case FieldGrind:
			r.Grind = value
		case FieldNicotineLevel:
			r.NicotineLevel = value
		case FieldExperienceLevel:
			r.ExperienceLevel = value
		case FieldTobaccoTypes:
			r.TobaccoTypes = value
		case FieldCures:
			r.Cures = value
		case FieldTastingNotes:
			r.TastingNotes = value
		case FieldReview:
			r.Review = value
		}
	}
	return r
}

func answerText(a answer) string {
	switch a.Type {
	case "choice":
		if a.Choice == nil {
			return ""
		}
		if a.Choice.Label != "" {
			return a.Choice.Label
		}
		return strings.TrimSpace(a.Choice.Other)
	case "choices":
		if a.Choices == nil {
			return ""
		}
		labels := append([]string(nil), a.Choices.Labels...)
		if other := strings.TrimSpace(a.Choices.Other); other != "" {
			labels = append(labels, other)
		}
		return strings.Join(labels, "\n")
	case "email":
		return a.Email
	case "number":
		if a.Number == nil {
			return ""
		}
		return strconv.FormatFloat(*a.Number, 'f', -1, 64)
	case "boolean":
		if a.Boolean == nil {
			return ""
		}
		return strconv.FormatBool(*a.Boolean)
	default:
		return PlainText(a.Text)
	}
}
