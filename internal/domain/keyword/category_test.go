package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Category resolution
// =============================================================================

func TestCategoryOf(t *testing.T) {
	cases := map[string]Category{
		"location.country_short": CategoryCountryCodeShort,
		"name.common":            CategoryCommonName,
		"url":                    CategoryURLLike,
		"url.homepage":           CategoryURLLike,
		"email":                  CategoryDefault,
		"organization.name":      CategoryDefault,
		"location.country":       CategoryDefault,
		"name.first":             CategoryDefault,
	}
	for name, want := range cases {
		assert.Equal(t, want, CategoryOf(name), name)
	}
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "country-code-short", CategoryCountryCodeShort.String())
	assert.Equal(t, "url-like", CategoryURLLike.String())
	assert.Equal(t, "common-name", CategoryCommonName.String())
	assert.Equal(t, "default", CategoryDefault.String())
}

// =============================================================================
// Boundary sets
// =============================================================================

func TestBoundary_CountryShort(t *testing.T) {
	c := CategoryCountryCodeShort
	for _, b := range []byte("\". ") {
		assert.True(t, c.IsBoundary(b), "%q", b)
	}
	for _, b := range []byte(",/()@\t\n") {
		assert.False(t, c.IsBoundary(b), "%q", b)
	}
}

func TestBoundary_URLLikeAndCommonName(t *testing.T) {
	for _, c := range []Category{CategoryURLLike, CategoryCommonName} {
		for _, b := range []byte("/. ()[]\r\n@\t!") {
			assert.True(t, c.IsBoundary(b), "%s %q", c, b)
		}
		for _, b := range []byte(",\"'-a") {
			assert.False(t, c.IsBoundary(b), "%s %q", c, b)
		}
	}
}

func TestBoundary_Default(t *testing.T) {
	c := CategoryDefault
	for _, b := range []byte(" ,.\r\n@\t!\"'()[]") {
		assert.True(t, c.IsBoundary(b), "%q", b)
	}
	for _, b := range []byte("/-_a0") {
		assert.False(t, c.IsBoundary(b), "%q", b)
	}
}
