package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category identifies which part of a URL or response produced a finding.
type Category int

const (
	// CategoryHost covers scheme, host, domain and TLD checks.
	CategoryHost Category = iota
	// CategoryPath covers the URL path.
	CategoryPath
	// CategoryQuery covers the query string.
	CategoryQuery
	// CategoryFragment covers the fragment.
	CategoryFragment
	// CategoryResponseCode covers the HTTP status code.
	CategoryResponseCode
	// CategoryRedirect covers redirect handling between targets.
	CategoryRedirect
	// CategoryCookie covers Set-Cookie headers.
	CategoryCookie
	// CategoryBody covers the HTML body and inline scripts.
	CategoryBody
	// CategoryTLS covers the server certificate record.
	CategoryTLS
	// CategoryHeader covers response headers, including CSP.
	CategoryHeader
	// CategoryGetError covers network failures while fetching.
	CategoryGetError

	// CategoryPathFile is a sub-category for file name and extension checks.
	// It is reported under CategoryPath.
	CategoryPathFile
	// CategoryPathSegment is a sub-category for individual path segment checks.
	// It is reported under CategoryPath.
	CategoryPathSegment
)

// DisplayOrder is the fixed order categories are shown in reports.
var DisplayOrder = []Category{
	CategoryHost,
	CategoryPath,
	CategoryQuery,
	CategoryFragment,
	CategoryResponseCode,
	CategoryRedirect,
	CategoryCookie,
	CategoryBody,
	CategoryTLS,
	CategoryHeader,
	CategoryGetError,
}

var categoryNames = map[Category]string{
	CategoryHost:         "host",
	CategoryPath:         "path",
	CategoryQuery:        "query",
	CategoryFragment:     "fragment",
	CategoryResponseCode: "responseCode",
	CategoryRedirect:     "redirect",
	CategoryCookie:       "cookie",
	CategoryBody:         "body",
	CategoryTLS:          "tls",
	CategoryHeader:       "header",
	CategoryGetError:     "getError",
	CategoryPathFile:     "pathFile",
	CategoryPathSegment:  "pathSegment",
}

// Normalize folds sub-categories into their parent.
func (c Category) Normalize() Category {
	switch c {
	case CategoryPathFile, CategoryPathSegment:
		return CategoryPath
	default:
		return c
	}
}

// String returns the category name.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCategory converts a name into a Category.
func ParseCategory(name string) (Category, error) {
	for c, n := range categoryNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return CategoryHost, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// MarshalJSON encodes the category by name.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a category name.
func (c *Category) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseCategory(name)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// displayRank returns the position of the normalized category in DisplayOrder.
func (c Category) displayRank() int {
	n := c.Normalize()
	for i, d := range DisplayOrder {
		if d == n {
			return i
		}
	}
	return len(DisplayOrder)
}
