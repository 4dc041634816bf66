package bucketing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrProportionSum is returned when group percentages do not add up to 100.
	ErrProportionSum = errors.New("group proportions must sum to 100")
	// ErrInvalidInput is returned for malformed groups, rows or search settings.
	ErrInvalidInput = errors.New("invalid input")
)

// Group is a named share of the bucket space.
type Group struct {
	Name    string `json:"name" yaml:"name"`
	Percent int    `json:"percent" yaml:"percent"`
}

// Proportions is an ordered list of groups. The order defines the bucket
// ranges: the first group owns [0, p1), the second [p1, p1+p2), and so on.
// The first group is the control.
type Proportions []Group

// ParsePercent accepts "50%", "50" and fractional "0.5". Unsuffixed values in
// [0, 1] are read as fractions, so "1" means 100%.
func ParsePercent(s string) (int, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutSuffix(s, "%"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return 0, fmt.Errorf("%w: invalid percentage %q", ErrInvalidInput, s)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: invalid percentage %q", ErrInvalidInput, s)
	}
	if f >= 0 && f <= 1 {
		f *= 100
	}
	rounded := math.Round(f)
	if math.Abs(f-rounded) > 1e-9 {
		return 0, fmt.Errorf("%w: percentage %q is not a whole number", ErrInvalidInput, s)
	}
	return int(rounded), nil
}

// ParseProportions parses "control:50,treatment:50" (or "name=50%") into
// validated Proportions that sum to 100.
func ParseProportions(s string) (Proportions, error) {
	var p Proportions
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			name, value, ok = strings.Cut(part, "=")
		}
		if !ok {
			return nil, fmt.Errorf("%w: expected name:percent, got %q", ErrInvalidInput, part)
		}
		pct, err := ParsePercent(value)
		if err != nil {
			return nil, err
		}
		p = append(p, Group{Name: strings.TrimSpace(name), Percent: pct})
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Total() != Buckets {
		return nil, fmt.Errorf("%w: got %d", ErrProportionSum, p.Total())
	}
	return p, nil
}

// EvenSplit returns n groups named control, treatment_1, ... sharing the
// buckets as evenly as possible. Leftover buckets go to the earliest groups.
func EvenSplit(n int) Proportions {
	if n < 1 {
		return nil
	}
	p := make(Proportions, n)
	base, extra := Buckets/n, Buckets%n
	for i := range p {
		p[i].Name = "control"
		if i > 0 {
			p[i].Name = "treatment_" + strconv.Itoa(i)
		}
		p[i].Percent = base
		if i < extra {
			p[i].Percent++
		}
	}
	return p
}

// Validate checks names and ranges. It does not require a sum of 100; see
// Assign for how a shortfall is handled.
func (p Proportions) Validate() error {
	if len(p) < 2 {
		return fmt.Errorf("%w: need at least 2 groups, got %d", ErrInvalidInput, len(p))
	}
	seen := make(map[string]bool, len(p))
	for _, g := range p {
		if g.Name == "" {
			return fmt.Errorf("%w: group name is empty", ErrInvalidInput)
		}
		if seen[g.Name] {
			return fmt.Errorf("%w: duplicate group %q", ErrInvalidInput, g.Name)
		}
		seen[g.Name] = true
		if g.Percent < 0 || g.Percent > Buckets {
			return fmt.Errorf("%w: group %q percentage %d out of range", ErrInvalidInput, g.Name, g.Percent)
		}
	}
	return nil
}

// Total returns the sum of all percentages.
func (p Proportions) Total() int {
	total := 0
	for _, g := range p {
		total += g.Percent
	}
	return total
}

// Names returns the group names in order.
func (p Proportions) Names() []string {
	names := make([]string, len(p))
	for i, g := range p {
		names[i] = g.Name
	}
	return names
}

// Control returns the name of the first group.
func (p Proportions) Control() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].Name
}

// Assign returns the group whose range contains the bucket of (seed, id).
// When the percentages sum to less than 100 the uncovered buckets fall
// through to the last group, which over-weights it.
func (p Proportions) Assign(h Hasher, seed, id string) string {
	if len(p) == 0 {
		return ""
	}
	if h == nil {
		h = DefaultHasher
	}
	return p.groupFor(h.Bucket(seed, id))
}

func (p Proportions) groupFor(bucket int) string {
	start := 0
	for _, g := range p {
		if bucket >= start && bucket < start+g.Percent {
			return g.Name
		}
		start += g.Percent
	}
	return p[len(p)-1].Name
}

// String formats the groups the way ParseProportions reads them.
func (p Proportions) String() string {
	parts := make([]string, len(p))
	for i, g := range p {
		parts[i] = g.Name + ":" + strconv.Itoa(g.Percent)
	}
	return strings.Join(parts, ",")
}
