package tables

import "net/url"

// AddressBar is the page's location query and history
type AddressBar interface {
	Query() url.Values
	Push(query url.Values)
}

// PushQuery writes the filter set into the address bar when it differs from the
// current query. Parameters owned by filterFields are cleared and replaced; all
// other parameters are kept. It reports whether a history entry was pushed.
func PushQuery(bar AddressBar, filters Filters, filterFields []string) bool {
	current := bar.Query()
	params := filters.Values()
	if CompareQuery(current, params) {
		return false
	}

	next := url.Values{}
	for name, values := range current {
		next[name] = append([]string(nil), values...)
	}
	for _, field := range filterFields {
		next.Del(field)
	}
	for name, values := range params {
		next[name] = values
	}

	bar.Push(next)
	return true
}
