package index

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/newthinker/valscreen/internal/core"
)

// DefaultMinConstituents is the table size a candidate table must exceed.
const DefaultMinConstituents = 10

// DefaultColumns are the header names recognised as identifier columns.
var DefaultColumns = []string{
	"ticker",
	"tickers",
	"symbol",
	"ticker symbol",
	"stock symbol",
	"trading symbol",
	"code",
	"stock code",
	"epic",
	"sehk",
}

// Descriptor is static metadata about one index.
type Descriptor struct {
	Key             string   `mapstructure:"key" json:"key"`
	Name            string   `mapstructure:"name" json:"name"`
	URL             string   `mapstructure:"url" json:"url"`
	Venue           Venue    `mapstructure:"venue" json:"venue"`
	Columns         []string `mapstructure:"columns" json:"columns,omitempty"`
	ShapePattern    string   `mapstructure:"shape_pattern" json:"shape_pattern,omitempty"`
	MinConstituents int      `mapstructure:"min_constituents" json:"min_constituents,omitempty"`
}

// Threshold returns the minimum-constituent threshold with the default applied.
func (d Descriptor) Threshold() int {
	if d.MinConstituents <= 0 {
		return DefaultMinConstituents
	}
	return d.MinConstituents
}

// Matchers builds the column matcher chain for this index: header
// synonyms first, then the content-shape heuristic if one is configured.
func (d Descriptor) Matchers() (MatcherChain, error) {
	cols := d.Columns
	if len(cols) == 0 {
		cols = DefaultColumns
	}
	chain := MatcherChain{NewSynonymMatcher(cols...)}

	if d.ShapePattern != "" {
		shape, err := NewShapeMatcher(d.ShapePattern)
		if err != nil {
			return nil, err
		}
		chain = append(chain, shape)
	}
	return chain, nil
}

// Validate checks the descriptor for required fields.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Key) == "" {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("index descriptor without key"))
	}
	if strings.TrimSpace(d.URL) == "" {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("index %s: url is required", d.Key))
	}
	if d.Venue.ClassSeparator != "" && d.Venue.ClassSeparator != "-" && d.Venue.ClassSeparator != "." {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("index %s: class_separator must be \"-\" or \".\"", d.Key))
	}
	if d.Venue.PadDigits < 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("index %s: pad_digits must be non-negative", d.Key))
	}
	if d.ShapePattern != "" {
		if _, err := regexp.Compile(d.ShapePattern); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("index %s: shape_pattern: %w", d.Key, err))
		}
	}
	return nil
}

// DefaultDescriptors returns the built-in index table.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			Key:   "sp500",
			Name:  "S&P 500",
			URL:   "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies",
			Venue: Venue{ClassSeparator: "-"},
		},
		{
			Key:   "nasdaq100",
			Name:  "Nasdaq-100",
			URL:   "https://en.wikipedia.org/wiki/Nasdaq-100",
			Venue: Venue{ClassSeparator: "-"},
		},
		{
			Key:             "dow",
			Name:            "Dow Jones Industrial Average",
			URL:             "https://en.wikipedia.org/wiki/Dow_Jones_Industrial_Average",
			Venue:           Venue{ClassSeparator: "-"},
			MinConstituents: 20,
		},
		{
			Key:   "ftse100",
			Name:  "FTSE 100",
			URL:   "https://en.wikipedia.org/wiki/FTSE_100_Index",
			Venue: Venue{Suffix: ".L", ClassSeparator: "-"},
		},
		{
			Key:   "cac40",
			Name:  "CAC 40",
			URL:   "https://en.wikipedia.org/wiki/CAC_40",
			Venue: Venue{Suffix: ".PA"},
		},
		{
			Key:   "dax",
			Name:  "DAX",
			URL:   "https://en.wikipedia.org/wiki/DAX",
			Venue: Venue{Suffix: ".DE"},
		},
		{
			// Constituents already carry their home-venue suffix.
			Key:  "eurostoxx50",
			Name: "Euro Stoxx 50",
			URL:  "https://en.wikipedia.org/wiki/EURO_STOXX_50",
		},
		{
			Key:          "nikkei225",
			Name:         "Nikkei 225",
			URL:          "https://en.wikipedia.org/wiki/Nikkei_225",
			Venue:        Venue{Suffix: ".T"},
			ShapePattern: `^\d{4}$`,
		},
		{
			Key:   "hangseng",
			Name:  "Hang Seng Index",
			URL:   "https://en.wikipedia.org/wiki/Hang_Seng_Index",
			Venue: Venue{Suffix: ".HK", PadDigits: 4},
		},
		{
			Key:   "smi",
			Name:  "Swiss Market Index",
			URL:   "https://en.wikipedia.org/wiki/Swiss_Market_Index",
			Venue: Venue{Suffix: ".SW"},
		},
		{
			Key:   "aex",
			Name:  "AEX",
			URL:   "https://en.wikipedia.org/wiki/AEX_index",
			Venue: Venue{Suffix: ".AS"},
		},
		{
			Key:   "ibex35",
			Name:  "IBEX 35",
			URL:   "https://en.wikipedia.org/wiki/IBEX_35",
			Venue: Venue{Suffix: ".MC"},
		},
	}
}

// Catalog is an immutable, key-addressed set of descriptors.
type Catalog struct {
	byKey map[string]Descriptor
	keys  []string
}

// NewCatalog validates descriptors and freezes them. A later descriptor
// with the same key replaces an earlier one, so configuration can
// override built-in entries.
func NewCatalog(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		d.Key = canonicalKey(d.Key)
		d.Columns = append([]string(nil), d.Columns...)
		if _, exists := c.byKey[d.Key]; !exists {
			c.keys = append(c.keys, d.Key)
		}
		c.byKey[d.Key] = d
	}
	sort.Strings(c.keys)
	return c, nil
}

// Get returns the descriptor for a key, case-insensitively.
func (c *Catalog) Get(key string) (Descriptor, bool) {
	d, ok := c.byKey[canonicalKey(key)]
	if ok {
		d.Columns = append([]string(nil), d.Columns...)
	}
	return d, ok
}

// List returns all descriptors ordered by key.
func (c *Catalog) List() []Descriptor {
	out := make([]Descriptor, 0, len(c.keys))
	for _, k := range c.keys {
		d, _ := c.Get(k)
		out = append(out, d)
	}
	return out
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int { return len(c.keys) }

func canonicalKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
