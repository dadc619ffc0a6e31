package keyword

import "strings"

// Category classifies a keyword type by how its matches are delimited in text.
// The category is resolved once when a record enters the index.
type Category uint8

const (
	// CategoryDefault covers names, emails, organizations, locations, ...
	CategoryDefault Category = iota
	// CategoryCountryCodeShort covers two/three-letter country codes, which only
	// count when quoted, dotted or space-delimited.
	CategoryCountryCodeShort
	// CategoryURLLike covers urls and domains, which sit between slashes and dots.
	CategoryURLLike
	// CategoryCommonName covers the full display name of a person.
	CategoryCommonName
)

// Keyword names with a dedicated category.
const (
	NameCountryShort = "location.country_short"
	NameCommon       = "name.common"
)

func (c Category) String() string {
	switch c {
	case CategoryCountryCodeShort:
		return "country-code-short"
	case CategoryURLLike:
		return "url-like"
	case CategoryCommonName:
		return "common-name"
	default:
		return "default"
	}
}

// CategoryOf maps a keyword name (e.g. "email.work", "url.homepage") to its category.
func CategoryOf(keywordName string) Category {
	switch {
	case keywordName == NameCountryShort:
		return CategoryCountryCodeShort
	case keywordName == NameCommon:
		return CategoryCommonName
	case strings.Contains(keywordName, "url"):
		return CategoryURLLike
	default:
		return CategoryDefault
	}
}

// boundarySet is a 256-entry lookup of bytes allowed to delimit a match.
type boundarySet [256]bool

func newBoundarySet(chars string) *boundarySet {
	var s boundarySet
	for i := 0; i < len(chars); i++ {
		s[chars[i]] = true
	}
	return &s
}

var (
	countryShortBoundary = newBoundarySet("\". ")
	urlLikeBoundary      = newBoundarySet("/. ()[]\r\n@\t!")
	defaultBoundary      = newBoundarySet(" ,.\r\n@\t!\"'()[]")
)

// Boundary returns the set of bytes allowed immediately before and after a
// match of this category.
func (c Category) boundary() *boundarySet {
	switch c {
	case CategoryCountryCodeShort:
		return countryShortBoundary
	case CategoryURLLike, CategoryCommonName:
		return urlLikeBoundary
	default:
		return defaultBoundary
	}
}

// IsBoundary reports whether b may delimit a match of this category.
func (c Category) IsBoundary(b byte) bool {
	return c.boundary()[b]
}
