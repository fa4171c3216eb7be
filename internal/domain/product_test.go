package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func laptops() Category {
	return Category{
		ID:   1,
		Name: "Laptops",
		Attributes: []CategoryAttribute{
			{ID: 10, Name: "ram", IsKeyAttribute: true},
			{ID: 11, Name: "color", IsKeyAttribute: true},
			{ID: 12, Name: "warranty"},
		},
	}
}

func TestNewProduct(t *testing.T) {
	p, err := NewProduct(" ThinkPad X1 ", "", 99900, laptops(), map[int64]string{10: "16GB", 11: "black", 12: "2y"})
	require.NoError(t, err)

	assert.Equal(t, "ThinkPad X1", p.Name)
	assert.True(t, p.IsActive)
	assert.Len(t, p.Attributes, 3)

	keys := p.KeyAttributes()
	require.Len(t, keys, 2)
	assert.Equal(t, "color", keys[0].Name)
	assert.Equal(t, "ram", keys[1].Name)
}

func TestNewProduct_Validation(t *testing.T) {
	_, err := NewProduct("", "", 1, laptops(), nil)
	require.ErrorIs(t, err, ErrValidation)

	_, err = NewProduct("X1", "", -1, laptops(), nil)
	require.ErrorIs(t, err, ErrValidation)

	_, err = NewProduct("X1", "", 1, Category{}, nil)
	require.ErrorIs(t, err, ErrValidation)

	_, err = NewProduct("X1", "", 1, laptops(), map[int64]string{99: "foreign"})
	require.ErrorIs(t, err, ErrValidation)
}
