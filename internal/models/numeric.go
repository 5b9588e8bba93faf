package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Ledger and snapshot files carry plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Rounding precision per field class.
const (
	MoneyPlaces    int32 = 2
	PricePlaces    int32 = 4
	QuantityPlaces int32 = 6
	RatioPlaces    int32 = 6
)

// RoundMoney rounds a currency total to pence.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// RoundPrice rounds a per-share price.
func RoundPrice(d decimal.Decimal) decimal.Decimal { return d.Round(PricePlaces) }

// RoundQuantity rounds a (fractional) share quantity.
func RoundQuantity(d decimal.Decimal) decimal.Decimal { return d.Round(QuantityPlaces) }

// BpsFraction converts basis points to a decimal fraction.
func BpsFraction(bps float64) decimal.Decimal {
	return decimal.NewFromFloat(bps).Div(decimal.NewFromInt(10000))
}

// NullFloat is an optional float64. Invalid values serialise as null in JSON
// and as an empty cell in CSV.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Some returns a valid NullFloat, or an invalid one for NaN and infinities.
func Some(v float64) NullFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat{}
	}
	return NullFloat{Float64: v, Valid: true}
}

// Null is the absent value.
func Null() NullFloat { return NullFloat{} }

// Round returns the value rounded half away from zero to places decimals.
func (n NullFloat) Round(places int32) NullFloat {
	if !n.Valid {
		return n
	}
	f, _ := decimal.NewFromFloat(n.Float64).Round(places).Float64()
	return Some(f)
}

// Decimal converts a valid value to a decimal.
func (n NullFloat) Decimal() (decimal.Decimal, bool) {
	if !n.Valid {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(n.Float64), true
}

func (n NullFloat) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Float64, 'f', -1, 64)
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*n = NullFloat{}
		return nil
	}
	*n = Some(*v)
	return nil
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (n NullFloat) MarshalCSV() (string, error) { return n.String(), nil }

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (n *NullFloat) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		*n = NullFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// Flag is a boolean that reads the loose spellings found in hand-edited CSV
// files ("true", "TRUE", "1", "yes"). Empty reads as false.
type Flag bool

func (f Flag) MarshalCSV() (string, error) {
	return strconv.FormatBool(bool(f)), nil
}

func (f *Flag) UnmarshalCSV(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		*f = true
	case "", "false", "0", "no", "n":
		*f = false
	default:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		*f = Flag(b)
	}
	return nil
}
