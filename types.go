package mealscore

import (
	"context"
	"net/http"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackClient interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// ImageRef points at a meal photo the generator should look at.
type ImageRef struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type,omitempty"`
}

// GenerationRequest is a single prompt sent to a text generator.
type GenerationRequest struct {
	System string     `json:"system"`
	User   string     `json:"user"`
	Images []ImageRef `json:"images,omitempty"`
}

// TextGenerator is the untrusted generative capability. Implementations return
// the raw completion text; they never validate it.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Assessment is the structured nutritional evaluation of a meal. The JSON
// shape is flat and snake_case because it is stored unchanged in a document
// column.
type Assessment struct {
	Headline         string   `json:"headline"`
	MetabolicScore   float64  `json:"metabolic_score"`
	TagKeys          []string `json:"tag_keys"`
	GetsRight        []string `json:"gets_right"`
	ThingsToWatch    []string `json:"things_to_watch"`
	ExplanationShort string   `json:"explanation_short"`
	Confidence       float64  `json:"confidence"`
	ModelVersion     string   `json:"model_version"`
}

// Category is the dimension bucket a tag belongs to.
type Category string

const (
	CategoryBalance   Category = "balance"
	CategoryEnergy    Category = "energy"
	CategoryDigestion Category = "digestion"
	CategoryGeneral   Category = "general"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBalance, CategoryEnergy, CategoryDigestion, CategoryGeneral:
		return true
	}
	return false
}

// TagDefinition is one entry of the tag catalog.
type TagDefinition struct {
	TagKey      string   `json:"tag_key"`
	Category    Category `json:"category"`
	DisplayName string   `json:"display_name"`
	SortOrder   int      `json:"sort_order"`
}

// TagCatalog reads the currently active tag definitions.
type TagCatalog interface {
	ActiveTags(ctx context.Context) ([]TagDefinition, error)
}

// Dimension is an axis a meal is compared along.
type Dimension string

const (
	DimensionBalance   Dimension = "balance"
	DimensionEnergy    Dimension = "energy"
	DimensionDigestion Dimension = "digestion"
)

// Dimensions lists the scored dimensions in presentation order.
var Dimensions = []Dimension{DimensionBalance, DimensionEnergy, DimensionDigestion}

// Band is the three-way ordinal standing of a value within a population.
type Band int

const (
	BandAbout Band = iota
	BandHigher
	BandLower
)

// SelfLabel words the band relative to the user's own history.
func (b Band) SelfLabel() string {
	switch b {
	case BandHigher:
		return "higher than usual"
	case BandLower:
		return "lower than usual"
	default:
		return "about usual"
	}
}

// CohortLabel words the band relative to the peer cohort.
func (b Band) CohortLabel() string {
	switch b {
	case BandHigher:
		return "above most"
	case BandLower:
		return "below most"
	default:
		return "about average"
	}
}

func (b Band) String() string {
	switch b {
	case BandHigher:
		return "higher"
	case BandLower:
		return "lower"
	default:
		return "about"
	}
}

// DimensionComparison holds the two bands computed for one dimension.
type DimensionComparison struct {
	VsSelf   Band
	VsCohort Band
}

// ComparisonResult is the per-dimension standing of one assessment.
type ComparisonResult struct {
	Balance   DimensionComparison
	Energy    DimensionComparison
	Digestion DimensionComparison
}

// Get returns the comparison for d.
func (r ComparisonResult) Get(d Dimension) DimensionComparison {
	switch d {
	case DimensionEnergy:
		return r.Energy
	case DimensionDigestion:
		return r.Digestion
	default:
		return r.Balance
	}
}

// Set stores the comparison for d.
func (r *ComparisonResult) Set(d Dimension, c DimensionComparison) {
	switch d {
	case DimensionEnergy:
		r.Energy = c
	case DimensionDigestion:
		r.Digestion = c
	default:
		r.Balance = c
	}
}

// Labels renders the result in the response shape used by clients:
// {"vs_user": {...}, "vs_cohort": {...}}.
func (r ComparisonResult) Labels() map[string]map[string]string {
	self := make(map[string]string, len(Dimensions))
	cohort := make(map[string]string, len(Dimensions))
	for _, d := range Dimensions {
		c := r.Get(d)
		self[string(d)] = c.VsSelf.SelfLabel()
		cohort[string(d)] = c.VsCohort.CohortLabel()
	}
	return map[string]map[string]string{
		"vs_user":   self,
		"vs_cohort": cohort,
	}
}

// EntityKind distinguishes scored meals from scored photo scans.
type EntityKind string

const (
	EntityMeal EntityKind = "meal"
	EntityScan EntityKind = "scan"
)

// Scope selects a historical population.
type Scope struct {
	UserID   string
	CohortID string
	// ExcludeID drops one entity (usually the one being compared) from the result.
	ExcludeID string
}

// ScoredEntity is a stored assessment with its ownership metadata.
type ScoredEntity struct {
	ID         string     `json:"id"`
	Kind       EntityKind `json:"kind"`
	UserID     string     `json:"user_id"`
	CohortID   string     `json:"cohort_id"`
	CreatedAt  time.Time  `json:"created_at"`
	Assessment Assessment `json:"assessment"`
}

// HistoryReader fetches the scored population for a scope within a window.
type HistoryReader interface {
	FetchScoredEntities(ctx context.Context, scope Scope, window time.Duration) ([]Assessment, error)
}

// EntityReader loads the stored assessment of a single entity.
type EntityReader interface {
	GetAssessment(ctx context.Context, userID, entityID string, kind EntityKind) (ScoredEntity, error)
}
