package tables

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapFilters(t *testing.T) {
	filters := MapFilters([]Field{
		{Name: "committee_id", Value: "C001"},
		{Name: "cycle", Value: "2016"},
		{Name: "cycle", Value: "2014"},
		{Name: "state", Value: ""},
		{Name: "_internal", Value: "x"},
	})

	assert.Equal(t, Filters{
		"committee_id": {"C001"},
		"cycle":        {"2016", "2014"},
	}, filters)
}

func TestFilters_Equal(t *testing.T) {
	assert.True(t, Filters(nil).Equal(Filters{}))
	assert.True(t, Filters{"cycle": {"2016"}}.Equal(Filters{"cycle": {"2016"}}))
	assert.False(t, Filters{"cycle": {"2016"}}.Equal(Filters{"cycle": {"2014"}}))
	assert.False(t, Filters{"cycle": {"2016"}}.Equal(nil))
}

func TestMapSort(t *testing.T) {
	columns := []Column{{Data: "total"}, {Data: "name"}}

	assert.Equal(t, []string{"-total"}, MapSort([]Order{{Column: 0, Dir: "desc"}}, columns))
	assert.Equal(t, []string{"name", "-total"}, MapSort([]Order{{Column: 1, Dir: "asc"}, {Column: 0, Dir: "desc"}}, columns))
	assert.Empty(t, MapSort([]Order{{Column: 5, Dir: "asc"}}, columns))
}

func TestCompareQuery(t *testing.T) {
	tests := []struct {
		name   string
		first  url.Values
		second url.Values
		want   bool
	}{
		{"equal", url.Values{"cycle": {"2016"}}, url.Values{"cycle": {"2016"}}, true},
		{"value order ignored", url.Values{"cycle": {"2016", "2014"}}, url.Values{"cycle": {"2014", "2016"}}, true},
		{"both empty", url.Values{}, nil, true},
		{"extra key", url.Values{"cycle": {"2016"}, "tab": {"a"}}, url.Values{"cycle": {"2016"}}, false},
		{"different values", url.Values{"cycle": {"2016"}}, url.Values{"cycle": {"2014"}}, false},
		{"different keys", url.Values{"cycle": {"2016"}}, url.Values{"state": {"2016"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareQuery(tt.first, tt.second))
		})
	}
}

func TestPushQuery_NoopWhenEqual(t *testing.T) {
	bar := &memoryBar{query: url.Values{"cycle": {"2014", "2016"}}}

	pushed := PushQuery(bar, Filters{"cycle": {"2016", "2014"}}, []string{"cycle", "state"})

	assert.False(t, pushed)
	assert.Empty(t, bar.pushes)
}

func TestPushQuery_ReplacesFilterParamsAndKeepsOthers(t *testing.T) {
	bar := &memoryBar{query: url.Values{
		"tab":   {"receipts"},
		"state": {"VA"},
		"cycle": {"2012"},
	}}

	pushed := PushQuery(bar, Filters{"cycle": {"2016"}}, []string{"cycle", "state"})

	assert.True(t, pushed)
	assert.Equal(t, url.Values{
		"tab":   {"receipts"},
		"cycle": {"2016"},
	}, bar.query)
}
