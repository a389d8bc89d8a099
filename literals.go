package tiny

// literalPool interns numeric and string constants so that bytecode
// can address them by a small integer index (spec.md §4.1 "Literal
// Pools"). The original implementation kept these process-wide; here
// they live on the State (spec.md §9's design note: "a reimplementation
// should move them onto the State so that multiple States can be
// compiled concurrently and so that tearing a State down reclaims its
// literals").
type literalPool struct {
	numbers    []float64
	numberIdx  map[float64]int
	strings    []string
	stringIdx  map[string]int
	maxNumbers int
	maxStrings int
}

func newLiteralPool(maxNumbers, maxStrings int) *literalPool {
	return &literalPool{
		numberIdx:  map[float64]int{},
		stringIdx:  map[string]int{},
		maxNumbers: maxNumbers,
		maxStrings: maxStrings,
	}
}

// RegisterNumber interns n and returns its pool index. Idempotent:
// repeated calls with an equal value return the same index (P5).
func (p *literalPool) RegisterNumber(n float64) (int, error) {
	if idx, ok := p.numberIdx[n]; ok {
		return idx, nil
	}
	if p.maxNumbers > 0 && len(p.numbers) >= p.maxNumbers {
		return 0, errLimitExceeded("too many distinct number literals (max %d)", p.maxNumbers)
	}
	idx := len(p.numbers)
	p.numbers = append(p.numbers, n)
	p.numberIdx[n] = idx
	return idx, nil
}

// RegisterString interns s and returns its pool index. Idempotent,
// like RegisterNumber (P5).
func (p *literalPool) RegisterString(s string) (int, error) {
	if idx, ok := p.stringIdx[s]; ok {
		return idx, nil
	}
	if p.maxStrings > 0 && len(p.strings) >= p.maxStrings {
		return 0, errLimitExceeded("too many distinct string literals (max %d)", p.maxStrings)
	}
	idx := len(p.strings)
	p.strings = append(p.strings, s)
	p.stringIdx[s] = idx
	return idx, nil
}

func (p *literalPool) Number(idx int) float64 { return p.numbers[idx] }
func (p *literalPool) String(idx int) string  { return p.strings[idx] }
