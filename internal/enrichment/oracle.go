package enrichment

import (
	"context"
	"errors"
)

// ErrUnknown is returned when a lookup cannot infer anything from its input.
var ErrUnknown = errors.New("no enrichment data for input")

// Oracle produces enrichment data for one input per topic. Implementations
// must honour ctx cancellation.
type Oracle interface {
	Jurisdiction(ctx context.Context, location string) (*JurisdictionIntelligence, error)
	Company(ctx context.Context, name string) (*CompanyIntelligence, error)
	JobTitle(ctx context.Context, title string) (*JobTitleAnalysis, error)
}
