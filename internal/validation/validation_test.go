package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email string `json:"email" validate:"required,email"`
	Slug  string `json:"slug" validate:"required,slug"`
	Items []item `json:"items" validate:"dive"`
}

type item struct {
	Label string `json:"label" validate:"required,max=5"`
}

func TestStruct_FieldDetail(t *testing.T) {
	err := Struct(&sample{Email: "nope", Slug: "Bad Slug", Items: []item{{Label: "too long"}}})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "email", verr.Fields["email"])
	assert.Equal(t, "slug", verr.Fields["slug"])
	assert.Equal(t, "max=5", verr.Fields["items[0].label"])
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(&sample{Email: "a@b.co", Slug: "cafe-moda"}))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "cafe-moda", Slugify("  Café  Moda "))
	assert.Equal(t, "kadikoy-subesi", Slugify("Kadıköy Şubesi"))
	assert.Equal(t, "a-b", Slugify("a -- b--"))
}

func TestIsSlug(t *testing.T) {
	assert.True(t, IsSlug("downtown-2"))
	assert.False(t, IsSlug("-x"))
	assert.False(t, IsSlug("a--b"))
	assert.False(t, IsSlug("Upper"))
	assert.False(t, IsSlug(""))
}
