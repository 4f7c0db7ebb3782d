package valuation

// MinorUnit declares a currency code quoted in a fraction of its major unit.
// Codes are case-sensitive: GBp is pence, GBP is pounds.
type MinorUnit struct {
	Code    string  `mapstructure:"code" json:"code"`
	Divisor float64 `mapstructure:"divisor" json:"divisor"`
}

// DefaultMinorUnits lists the sub-unit quotations reported by the source.
func DefaultMinorUnits() []MinorUnit {
	return []MinorUnit{
		{Code: "GBp", Divisor: 100},
		{Code: "GBX", Divisor: 100},
		{Code: "ILA", Divisor: 100},
		{Code: "ZAc", Divisor: 100},
		{Code: "ZAC", Divisor: 100},
	}
}

// Currencies maps currency codes to price divisors.
type Currencies struct {
	divisors map[string]float64
}

// NewCurrencies builds the table from the defaults plus extra entries.
// Extra entries override defaults; non-positive divisors are ignored.
func NewCurrencies(extra ...MinorUnit) *Currencies {
	c := &Currencies{divisors: make(map[string]float64)}
	for _, mu := range append(DefaultMinorUnits(), extra...) {
		if mu.Code == "" || mu.Divisor <= 0 {
			continue
		}
		c.divisors[mu.Code] = mu.Divisor
	}
	return c
}

// Divisor returns the factor that converts quoted prices to major units.
func (c *Currencies) Divisor(code string) float64 {
	if c == nil {
		return 1
	}
	if d, ok := c.divisors[code]; ok {
		return d
	}
	return 1
}
