package metadata

// Fields is the folded field map of one dataset. Keys keep the order in which
// they were first seen in the source table.
//
// Accumulation rule:
//   - Scalar fields overwrite: a repeated field keeps its position and the
//     last value wins.
//   - Multi-value fields append in row order. These are every field in the
//     resource namespace (first underscore token "resource") and "tags".
type Fields struct {
	keys   []string
	values map[string][]string
}

// NewFields returns an empty field map.
func NewFields() *Fields {
	return &Fields{values: make(map[string][]string)}
}

// IsMultiValue reports whether repeated rows for field accumulate.
func IsMultiValue(field string) bool {
	return field == "tags" || IsResourceField(field)
}

// Add folds one value into the map.
func (f *Fields) Add(field, value string) {
	existing, seen := f.values[field]
	if !seen {
		f.keys = append(f.keys, field)
	}
	if seen && IsMultiValue(field) {
		f.values[field] = append(existing, value)
		return
	}
	f.values[field] = []string{value}
}

// Keys returns the field names in first-seen order.
func (f *Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Has reports whether field was present in the source, even with an empty
// value.
func (f *Fields) Has(field string) bool {
	_, ok := f.values[field]
	return ok
}

// Value returns the last value of field, or "" when it is absent.
func (f *Fields) Value(field string) string {
	v, _ := f.Lookup(field)
	return v
}

// Lookup returns the last value of field and whether it was present.
func (f *Fields) Lookup(field string) (string, bool) {
	vals, ok := f.values[field]
	if !ok || len(vals) == 0 {
		return "", ok
	}
	return vals[len(vals)-1], true
}

// Values returns every value recorded for field in row order.
func (f *Fields) Values(field string) []string {
	vals := f.values[field]
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// Len returns the number of distinct fields.
func (f *Fields) Len() int {
	return len(f.keys)
}
