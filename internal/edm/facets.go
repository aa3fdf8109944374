package edm

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Facets contains metadata attributes that constrain EDM type values
type Facets struct {
	Precision *int // Decimal: total digits; DateTimeOffset/TimeOfDay: fractional second digits
	Scale     *int // Decimal: digits after decimal point
	MaxLength *int // String, Binary: maximum length
}

func intPtr(v int) *int {
	return &v
}

// ValidateDecimalFacets validates that a decimal value conforms to precision and scale facets
func ValidateDecimalFacets(value decimal.Decimal, facets Facets) error {
	if facets.Precision == nil && facets.Scale == nil {
		return nil // No constraints
	}

	scale := 0
	if exp := value.Exponent(); exp < 0 {
		scale = int(-exp)
	}
	coefficient := value.Coefficient().String()
	if coefficient[0] == '-' {
		coefficient = coefficient[1:]
	}
	totalDigits := len(coefficient)
	if exp := value.Exponent(); exp > 0 {
		totalDigits += int(exp)
	}
	if totalDigits < scale {
		totalDigits = scale
	}
	intDigits := totalDigits - scale
	if value.Coefficient().Sign() == 0 {
		intDigits = 0
	}

	if facets.Scale != nil && scale > *facets.Scale {
		// Trailing zeros beyond the declared scale do not change the value.
		if !value.Equal(value.Truncate(int32(*facets.Scale))) {
			return fmt.Errorf("value exceeds scale: %d fractional digits (max %d)", scale, *facets.Scale)
		}
	}

	if facets.Precision != nil {
		maxInt := *facets.Precision
		if facets.Scale != nil {
			maxInt -= *facets.Scale
		}
		if intDigits > maxInt {
			return fmt.Errorf("value exceeds precision: %d integer digits (max %d)", intDigits, maxInt)
		}
	}

	return nil
}

// ValidateLengthFacet validates that a value conforms to maxLength facet
func ValidateLengthFacet(length int, facets Facets) error {
	if facets.MaxLength != nil && length > *facets.MaxLength {
		return fmt.Errorf("value exceeds maxLength: %d (max %d)", length, *facets.MaxLength)
	}
	return nil
}
