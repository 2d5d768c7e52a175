package tables

import (
	"net/url"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Order is one entry of a draw's sort order
type Order struct {
	Column int    `json:"column"`
	Dir    string `json:"dir"`
}

// Request is one DataTables server-side draw request
type Request struct {
	Draw   int     `json:"draw"`
	Start  int     `json:"start"`
	Length int     `json:"length"`
	Order  []Order `json:"order"`
}

// Field is one serialized form control
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Filters maps filter names to their values; a name may carry several values
type Filters map[string][]string

// MapFilters turns serialized form fields into filters. Empty values and names
// starting with "_" are skipped; repeated names accumulate in order.
func MapFilters(fields []Field) Filters {
	filters := Filters{}
	for _, field := range fields {
		if field.Value == "" || (len(field.Name) > 0 && field.Name[0] == '_') {
			continue
		}
		filters[field.Name] = append(filters[field.Name], field.Value)
	}
	return filters
}

// Values copies the filters into query values
func (f Filters) Values() url.Values {
	values := make(url.Values, len(f))
	for name, list := range f {
		values[name] = append([]string(nil), list...)
	}
	return values
}

// Clone returns a deep copy
func (f Filters) Clone() Filters {
	if f == nil {
		return nil
	}
	return Filters(f.Values())
}

// Equal deep-compares two filter sets; nil and empty sets are equal
func (f Filters) Equal(other Filters) bool {
	return cmp.Equal(f, other, cmpopts.EquateEmpty())
}

// MapSort builds the sort parameter from a draw's order: the column's data name,
// prefixed with "-" for descending.
func MapSort(order []Order, columns []Column) []string {
	sorts := make([]string, 0, len(order))
	for _, item := range order {
		if item.Column < 0 || item.Column >= len(columns) {
			continue
		}
		name := columns[item.Column].Data
		if item.Dir == "desc" {
			name = "-" + name
		}
		sorts = append(sorts, name)
	}
	return sorts
}

// CompareQuery reports whether two queries hold the same names with the same
// values, ignoring value order.
func CompareQuery(first, second url.Values) bool {
	if len(first) != len(second) {
		return false
	}
	for name, values := range first {
		other, ok := second[name]
		if !ok {
			return false
		}
		if !cmp.Equal(sorted(values), sorted(other), cmpopts.EquateEmpty()) {
			return false
		}
	}
	return true
}

func sorted(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
