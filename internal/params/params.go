// Package params derives secondary run parameters from the primary grid
// configuration. All derivations are closed-form arithmetic over RunConfig
// values; nothing here performs I/O or depends on pipeline state.
package params

import (
	"fmt"
	"math"

	"github.com/polarmet/wrfpipe/internal/domain"
)

// NudgingScaleM is the physical length scale, in meters, of the
// large-scale forcing correction. Spectral nudging is applied to waves
// longer than this scale.
const NudgingScaleM = 1_000_000.0

// InvalidParameterError reports a grid value the derivation cannot accept
type InvalidParameterError struct {
	Field string
	Value float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s = %g: must be positive", e.Field, e.Value)
}

// Derived holds the parameters computed for one domain
type Derived struct {
	// WavenumberX and WavenumberY are the spectral nudging truncation
	// wavenumbers along the west-east and south-north axes
	WavenumberX int
	WavenumberY int
}

// Derive computes the derived parameters for the given domain index.
// Safe to call redundantly; the result depends only on the arguments.
func Derive(cfg *domain.RunConfig, domainIndex int) (Derived, error) {
	if domainIndex < 0 || domainIndex >= len(cfg.Domains) {
		return Derived{}, &InvalidParameterError{Field: "domain_index", Value: float64(domainIndex)}
	}
	d := cfg.Domains[domainIndex]

	if d.SpacingM <= 0 {
		return Derived{}, &InvalidParameterError{Field: "spacing", Value: d.SpacingM}
	}
	if d.ExtentWE <= 0 {
		return Derived{}, &InvalidParameterError{Field: "extent_we", Value: float64(d.ExtentWE)}
	}
	if d.ExtentSN <= 0 {
		return Derived{}, &InvalidParameterError{Field: "extent_sn", Value: float64(d.ExtentSN)}
	}

	return Derived{
		WavenumberX: wavenumber(d.SpacingM, d.ExtentWE),
		WavenumberY: wavenumber(d.SpacingM, d.ExtentSN),
	}, nil
}

// wavenumber is floor(spacing * extent / scale): the count of whole
// nudging wavelengths that fit across the domain
func wavenumber(spacingM float64, extent int) int {
	return int(math.Floor(spacingM * float64(extent) / NudgingScaleM))
}
