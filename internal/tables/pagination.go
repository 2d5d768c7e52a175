package tables

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ternarybob/fecview/internal/fecapi"
)

// Strategy maps a draw request to paging parameters and reacts to the response.
// Both methods run with the session locked.
type Strategy interface {
	MapQuery(session *Session, req Request) url.Values
	HandleResponse(session *Session, req Request, resp *fecapi.Response)
}

// StrategyFor returns the strategy for a definition's pagination mode
func StrategyFor(mode string) (Strategy, error) {
	switch mode {
	case PaginationOffset:
		return OffsetStrategy{}, nil
	case PaginationSeek:
		return SeekStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown pagination mode %q", mode)
	}
}

// OffsetStrategy pages with per_page and a 1-based page number
type OffsetStrategy struct{}

func (OffsetStrategy) MapQuery(_ *Session, req Request) url.Values {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(req.Length))
	page := 1
	if req.Length > 0 {
		page = req.Start/req.Length + 1
	}
	query.Set("page", strconv.Itoa(page))
	return query
}

func (OffsetStrategy) HandleResponse(*Session, Request, *fecapi.Response) {}

// SeekStrategy pages with the cursor captured from the previous page's response
type SeekStrategy struct{}

// MapQuery merges the non-empty fields of the cursor cached for (length, start)
// into per_page. A miss sends per_page alone, which requests the first page.
func (SeekStrategy) MapQuery(session *Session, req Request) url.Values {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(req.Length))

	cursor, _ := session.seek.Lookup(session.filters, req.Length, req.Start)
	for name, value := range cursor {
		if s, ok := cursorValue(value); ok {
			query.Set(name, s)
		}
	}
	return query
}

// HandleResponse stores the next-page cursor under (length, start+length)
func (SeekStrategy) HandleResponse(session *Session, req Request, resp *fecapi.Response) {
	session.seek.Store(session.filters, req.Length, req.Start+req.Length, resp.Pagination.LastIndexes)
}

// cursorValue renders a cursor field, reporting false for empty values
// (nil, "", false, zero) which are left out of the query.
func cursorValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case bool:
		return "true", v
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 0 {
			return "", false
		}
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), v != 0
	default:
		return fmt.Sprint(v), true
	}
}
