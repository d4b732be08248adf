// Package types provides JSON shims for the number and time encodings the
// exchange uses on the wire.
package types

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Number handles float64 values that may arrive quoted as strings, which is
// how Kraken encodes every decimal field.
type Number float64

// UnmarshalJSON deserializes a quoted or bare JSON number.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case "null", `""`:
		*n = 0
		return nil
	}
	if s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w for `%v`", strconv.ErrSyntax, string(data))
	}
	*n = Number(f)
	return nil
}

// MarshalJSON serializes the number quoted, matching the inbound encoding.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(`"` + n.String() + `"`), nil
}

// Float64 returns the value as a float64.
func (n Number) Float64() float64 {
	return float64(n)
}

// Int64 returns the truncated integer value.
func (n Number) Int64() int64 {
	return int64(n)
}

// Decimal returns the value as a decimal.
func (n Number) Decimal() decimal.Decimal {
	return decimal.NewFromFloat(float64(n))
}

// String implements stringer.
func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

// Time handles Kraken's decimal unix timestamps, e.g. 1616666559.8974.
type Time time.Time

// UnmarshalJSON deserializes a decimal unix timestamp, quoted or bare.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case "null", "0", `""`, `"0"`:
		*t = Time(time.Time{})
		return nil
	}
	if s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w for `%v`", strconv.ErrSyntax, string(data))
	}
	sec, frac := math.Modf(f)
	*t = Time(time.Unix(int64(sec), int64(frac*1e9)))
	return nil
}

// MarshalJSON serializes the time back to a decimal unix timestamp.
func (t Time) MarshalJSON() ([]byte, error) {
	u := time.Time(t)
	if u.IsZero() {
		return []byte("0"), nil
	}
	f := float64(u.UnixNano()) / 1e9
	return []byte(strconv.FormatFloat(f, 'f', 4, 64)), nil
}

// Time returns the underlying time.Time.
func (t Time) Time() time.Time {
	return time.Time(t)
}

// String implements stringer.
func (t Time) String() string {
	return time.Time(t).String()
}
