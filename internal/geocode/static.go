package geocode

import (
	"context"
	"fmt"

	"github.com/homepin/mapsession/internal/geo"
	"github.com/homepin/mapsession/pkg/core"
)

// Static answers every lookup locally with a synthetic address. It keeps the
// controller usable offline and in demos without a Google key.
type Static struct {
	status Status
}

// NewStatic returns a resolver that always answers with status. Pass StatusOK for normal use.
func NewStatic(status Status) *Static {
	if status == "" {
		status = StatusOK
	}
	return &Static{status: status}
}

// ReverseGeocode returns a synthetic address, or status with no results if it is not OK.
func (s *Static) ReverseGeocode(ctx context.Context, at core.Coordinate) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if err := geo.Validate(at); err != nil {
		return Response{Status: StatusInvalidRequest}, nil
	}
	if s.status != StatusOK {
		return Response{Status: s.status}, nil
	}
	return Response{
		Status: StatusOK,
		Results: []Result{{
			FormattedAddress: fmt.Sprintf("Dropped pin %s", geo.CellKey(at, 5)),
			Types:            []string{"plus_code"},
		}},
	}, nil
}
