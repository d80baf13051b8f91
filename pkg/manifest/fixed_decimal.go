package manifest

import (
	"strconv"
)

// decimalPrecision is the number of digits after the decimal point a
// FixedDecimal renders with, so re-serializing a manifest is byte-for-byte
// idempotent regardless of how the in-memory float64 arrived (no scientific
// notation, no variable trailing-zero trimming the way Go's default float
// formatting does).
const decimalPrecision = 6

// FixedDecimal is a float64 that marshals to JSON with a fixed number of
// digits after the decimal point, as an unquoted JSON number.
type FixedDecimal float64

func (d FixedDecimal) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(d), 'f', decimalPrecision, 64)), nil
}

func (d *FixedDecimal) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*d = FixedDecimal(v)
	return nil
}
