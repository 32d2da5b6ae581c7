package result

import "sort"

// FieldRegistry is the grow-only set of columns seen so far.
type FieldRegistry struct {
	keys map[string]struct{}
}

func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{keys: map[string]struct{}{}}
}

func (f *FieldRegistry) Add(keys ...string) {
	for _, k := range keys {
		f.keys[k] = struct{}{}
	}
}

func (f *FieldRegistry) Has(key string) bool {
	_, ok := f.keys[key]
	return ok
}

func (f *FieldRegistry) Len() int { return len(f.keys) }

// Keys returns the registered columns in lexicographic order.
func (f *FieldRegistry) Keys() []string {
	out := make([]string, 0, len(f.keys))
	for k := range f.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Aggregator collects rows in arrival order.
type Aggregator struct {
	rows   []*Row
	fields *FieldRegistry
}

func NewAggregator() *Aggregator {
	return &Aggregator{fields: NewFieldRegistry()}
}

// Add appends r unconditionally and unions its columns into the registry.
func (a *Aggregator) Add(r *Row) {
	a.rows = append(a.rows, r)
	a.fields.Add(r.Keys()...)
}

func (a *Aggregator) Rows() []*Row { return a.rows }

func (a *Aggregator) Fields() *FieldRegistry { return a.fields }

// Failures counts rows carrying an error kind.
func (a *Aggregator) Failures() int {
	n := 0
	for _, r := range a.rows {
		if r.Failed() {
			n++
		}
	}
	return n
}
