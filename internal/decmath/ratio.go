package decmath

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Undefined is the rendering of a ratio whose denominator is zero.
const Undefined = "N/A"

// Ratio is a quotient that may be undefined. A zero denominator yields the
// Undefined sentinel instead of an error or an infinite value.
type Ratio struct {
	Value   decimal.Decimal
	Defined bool
}

// NewRatio returns num/den, or an undefined ratio when den is zero.
func NewRatio(num, den decimal.Decimal) Ratio {
	if den.IsZero() {
		return Ratio{}
	}
	return Ratio{Value: Div(num, den), Defined: true}
}

// Percent returns the ratio scaled by 100.
func (r Ratio) Percent() Ratio {
	if !r.Defined {
		return r
	}
	return Ratio{Value: r.Value.Mul(hundred), Defined: true}
}

// Format renders the ratio with the given fractional digits, or Undefined.
func (r Ratio) Format(places int32) string {
	if !r.Defined {
		return Undefined
	}
	return Format(r.Value, places)
}

func (r Ratio) String() string {
	if !r.Defined {
		return Undefined
	}
	return r.Value.String()
}

// Equal reports whether both ratios are undefined or have equal values.
func (r Ratio) Equal(o Ratio) bool {
	if r.Defined != o.Defined {
		return false
	}
	return !r.Defined || r.Value.Equal(o.Value)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == Undefined || s == "" {
		*r = Ratio{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*r = Ratio{Value: d, Defined: true}
	return nil
}
