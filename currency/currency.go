// Package currency provides asset code and trading pair value types plus
// Kraken asset-name translation.
package currency

import (
	"errors"
	"strings"
)

// ErrCurrencyPairEmpty is returned when an operation requires a populated pair
var ErrCurrencyPairEmpty = errors.New("currency pair is empty")

// Code is an upper-case asset identifier, e.g. XBT or USD
type Code string

// Common asset codes
var (
	XBT       = NewCode("XBT")
	ETH       = NewCode("ETH")
	USD       = NewCode("USD")
	EUR       = NewCode("EUR")
	USDT      = NewCode("USDT")
	EMPTYCODE = Code("")
)

// NewCode returns a normalized asset code
func NewCode(c string) Code {
	return Code(strings.ToUpper(strings.TrimSpace(c)))
}

// String implements stringer
func (c Code) String() string {
	return string(c)
}

// IsEmpty returns true when the code is unset
func (c Code) IsEmpty() bool {
	return c == ""
}

// Equal checks two codes for equality, ignoring case
func (c Code) Equal(o Code) bool {
	return strings.EqualFold(string(c), string(o))
}

// Pair holds a base and quote asset pairing
type Pair struct {
	Delimiter string
	Base      Code
	Quote     Code
}

// EMPTYPAIR is an empty pair
var EMPTYPAIR = Pair{}

// NewPair returns a pair from base and quote codes
func NewPair(base, quote Code) Pair {
	return Pair{Base: base, Quote: quote}
}

// NewPairWithDelimiter returns a pair with a display delimiter
func NewPairWithDelimiter(base, quote, delimiter string) Pair {
	return Pair{Base: NewCode(base), Quote: NewCode(quote), Delimiter: delimiter}
}

// NewPairFromString parses a pair from a delimited string such as "XBT/USD"
// or "XBT-USD". Undelimited strings are not guessed at.
func NewPairFromString(s string) (Pair, error) {
	for _, d := range []string{"/", "-", "_"} {
		if i := strings.Index(s, d); i > 0 {
			return Pair{
				Base:      NewCode(s[:i]),
				Quote:     NewCode(s[i+len(d):]),
				Delimiter: d,
			}, nil
		}
	}
	return EMPTYPAIR, errors.New("unable to derive base and quote from " + s)
}

// String implements stringer
func (p Pair) String() string {
	return p.Base.String() + p.Delimiter + p.Quote.String()
}

// IsEmpty returns true when base or quote is unset
func (p Pair) IsEmpty() bool {
	return p.Base.IsEmpty() || p.Quote.IsEmpty()
}

// Equal checks two pairs for equality, ignoring delimiter
func (p Pair) Equal(o Pair) bool {
	return p.Base.Equal(o.Base) && p.Quote.Equal(o.Quote)
}
