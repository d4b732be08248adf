package currency

import "sync"

// Translator converts between Kraken's classic asset names and their
// altnames, e.g. XXBT <-> XBT and ZUSD <-> USD.
type Translator struct {
	mu     sync.RWMutex
	assets map[string]string
}

// NewTranslator returns a translator pre-seeded with the fiat and legacy
// crypto prefixes Kraken still reports on balances and ledgers.
func NewTranslator() *Translator {
	t := &Translator{assets: make(map[string]string)}
	for orig, alt := range map[string]string{
		"XXBT": "XBT",
		"XETH": "ETH",
		"XLTC": "LTC",
		"XXRP": "XRP",
		"XXLM": "XLM",
		"XXMR": "XMR",
		"XZEC": "ZEC",
		"XXDG": "XDG",
		"ZUSD": "USD",
		"ZEUR": "EUR",
		"ZGBP": "GBP",
		"ZCAD": "CAD",
		"ZJPY": "JPY",
		"ZAUD": "AUD",
	} {
		t.assets[orig] = alt
	}
	return t
}

// Seed adds a translation pair
func (t *Translator) Seed(orig, alt string) {
	t.mu.Lock()
	t.assets[orig] = alt
	t.mu.Unlock()
}

// LookupAltname converts a classic name into its altname (ZUSD -> USD).
// Unknown names are returned unchanged; Kraken only prefixes legacy assets.
func (t *Translator) LookupAltname(target string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if alt, ok := t.assets[target]; ok {
		return alt
	}
	return target
}

// LookupCurrency converts an altname to its classic name (USD -> ZUSD)
func (t *Translator) LookupCurrency(target string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for orig, alt := range t.assets {
		if alt == target {
			return orig
		}
	}
	return target
}

// Seeded returns whether the translator holds any entries
func (t *Translator) Seeded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.assets) > 0
}
