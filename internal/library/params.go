package library

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	liberrors "github.com/lepinkainen/libsearch/internal/errors"
)

// Parameter names shared by the address-bar form and the aggregator's
// /search endpoint.
const (
	ParamFree      = "free"
	ParamISBN      = "isbn"
	ParamTitle     = "title"
	ParamAuthor    = "author"
	ParamPublisher = "publisher"
	ParamNDC       = "ndc"
	ParamYearStart = "year_start"
	ParamYearEnd   = "year_end"
)

// DetailParams lists the detail-search parameters in encoding order.
var DetailParams = []string{ParamTitle, ParamAuthor, ParamPublisher, ParamNDC, ParamYearStart, ParamYearEnd}

// Encode maps a query to its flat parameter form. Empty fields are omitted.
func Encode(q Query) map[string]string {
	out := make(map[string]string)
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			out[key] = value
		}
	}

	switch q.Mode {
	case ModeFreeText:
		set(ParamFree, q.Free)
	case ModeDetail:
		set(ParamTitle, q.Filters.Title)
		set(ParamAuthor, q.Filters.Author)
		set(ParamPublisher, q.Filters.Publisher)
		set(ParamNDC, q.Filters.NDC)
		set(ParamYearStart, q.Filters.YearStart)
		set(ParamYearEnd, q.Filters.YearEnd)
	case ModeISBN:
		set(ParamISBN, q.ISBN)
	}
	return out
}

// Decode rebuilds a query from its flat parameter form. The mode is implied
// by the keys present: isbn wins over free, which wins over detail filters.
func Decode(m map[string]string) (Query, error) {
	get := func(key string) string { return strings.TrimSpace(m[key]) }

	if isbn := get(ParamISBN); isbn != "" {
		return ISBN(isbn), nil
	}
	if free := get(ParamFree); free != "" {
		return FreeText(free), nil
	}

	f := Filters{
		Title:     get(ParamTitle),
		Author:    get(ParamAuthor),
		Publisher: get(ParamPublisher),
		NDC:       get(ParamNDC),
		YearStart: get(ParamYearStart),
		YearEnd:   get(ParamYearEnd),
	}
	if f.IsZero() {
		missing := append([]string{ParamFree, ParamISBN}, DetailParams...)
		return Query{}, liberrors.NewDecodeError("no search parameters present", missing...)
	}
	return Detail(f), nil
}

// EncodeValues is Encode over url.Values.
func EncodeValues(q Query) url.Values {
	values := url.Values{}
	for k, v := range Encode(q) {
		values.Set(k, v)
	}
	return values
}

// DecodeValues is Decode over url.Values; only the first value of each key
// is considered.
func DecodeValues(values url.Values) (Query, error) {
	m := make(map[string]string, len(values))
	for k := range values {
		m[k] = values.Get(k)
	}
	return Decode(m)
}

// ParseQueryString decodes an address-bar query string such as
// "?free=robot" or "title=go&author=pike".
func ParseQueryString(raw string) (Query, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(raw), "?"))
	if err != nil {
		return Query{}, liberrors.NewDecodeError(fmt.Sprintf("malformed query string: %v", err))
	}
	return DecodeValues(values)
}

// QueryString renders the address-bar form of q with keys sorted.
func QueryString(q Query) string {
	return EncodeValues(q).Encode()
}

// CacheKey derives the query-cache key for a session in slot. Values are
// case-folded, so "Go" and "go" share an entry even though Query.Equal
// tells them apart.
func CacheKey(slot Slot, q Query) string {
	params := Encode(q)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("library:")
	sb.WriteString(string(slot))
	sb.WriteString(":")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString("&")
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(url.QueryEscape(strings.ToLower(params[k])))
	}
	return sb.String()
}
