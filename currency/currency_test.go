package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Code("XBT"), NewCode("xbt"), "NewCode should upper-case")
	assert.Equal(t, Code("USD"), NewCode(" usd "), "NewCode should trim whitespace")
	assert.True(t, NewCode("").IsEmpty(), "empty input should yield an empty code")
	assert.True(t, NewCode("xbt").Equal(XBT), "Equal should ignore case")
}

func TestNewPairFromString(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"XBT/USD", "xbt-usd", "XBT_USD"} {
		p, err := NewPairFromString(in)
		require.NoErrorf(t, err, "NewPairFromString must not error for %s", in)
		assert.True(t, p.Base.Equal(XBT), "base should be XBT")
		assert.True(t, p.Quote.Equal(USD), "quote should be USD")
	}

	_, err := NewPairFromString("XBTUSD")
	assert.Error(t, err, "NewPairFromString should reject undelimited strings")
}

func TestPairString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "XBTUSD", NewPair(XBT, USD).String(), "String should concatenate without delimiter")
	assert.Equal(t, "XBT/USD", NewPairWithDelimiter("XBT", "USD", "/").String(), "String should include delimiter")
	assert.True(t, EMPTYPAIR.IsEmpty(), "empty pair should report empty")
}

func TestTranslator(t *testing.T) {
	t.Parallel()
	tr := NewTranslator()
	require.True(t, tr.Seeded(), "NewTranslator must pre-seed legacy names")

	assert.Equal(t, "XBT", tr.LookupAltname("XXBT"), "LookupAltname should strip legacy prefix")
	assert.Equal(t, "USD", tr.LookupAltname("ZUSD"), "LookupAltname should strip fiat prefix")
	assert.Equal(t, "USDT", tr.LookupAltname("USDT"), "LookupAltname should pass unknown names through")
	assert.Equal(t, "ZUSD", tr.LookupCurrency("USD"), "LookupCurrency should restore the classic name")

	tr.Seed("XTEST", "TEST")
	assert.Equal(t, "TEST", tr.LookupAltname("XTEST"), "Seed should register new translations")
}
