package bucketing

import "github.com/gkobilansky/abgoat/internal/dataset"

// Assignment is the result of splitting rows into groups for one seed.
type Assignment map[string][]dataset.Row

// AssignRows partitions rows by group. Every group in p has an entry, even
// when it receives no rows.
func AssignRows(h Hasher, seed, idColumn string, rows []dataset.Row, p Proportions) Assignment {
	if h == nil {
		h = DefaultHasher
	}
	out := make(Assignment, len(p))
	for _, g := range p {
		out[g.Name] = nil
	}
	for _, r := range rows {
		g := p.Assign(h, seed, r.ID(idColumn))
		out[g] = append(out[g], r)
	}
	return out
}

// Counts returns the number of rows per group.
func (a Assignment) Counts() map[string]int {
	counts := make(map[string]int, len(a))
	for g, rows := range a {
		counts[g] = len(rows)
	}
	return counts
}
