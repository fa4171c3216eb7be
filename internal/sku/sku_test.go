package sku

import (
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func laptop() *domain.Product {
	return &domain.Product{
		Name:     "ThinkPad X1 Carbon",
		Category: domain.Category{Name: "Laptops & Notebooks"},
		Attributes: []domain.AttributeValue{
			{Name: "ram", Value: "16GB", IsKeyAttribute: true},
			{Name: "color", Value: "black", IsKeyAttribute: true},
			{Name: "warranty", Value: "2 years"},
		},
	}
}

func TestAbbreviate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Laptops", 3, "LAP"},
		{"e-Book reader", 3, "EBO"},
		{"  4k tv", 3, "4KT"},
		{"TV", 3, "TVX"},
		{"!!!", 3, "XXX"},
		{"black", 2, "BL"},
		{"ż", 2, "XX"},
		{"Fuß", 3, "FUX"},
		{"Straße 1", 3, "STR"},
		{"Ärmel", 3, "RME"},
		{"٣٤", 2, "XX"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Abbreviate(tt.in, tt.n))
		})
	}
}

func TestGenerate_Format(t *testing.T) {
	got, err := NewGenerator().Generate(laptop())
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^LAP-THI-BL16-[A-Z0-9]{4}$`), got)
}

func TestGenerate_NonASCIINamesStayAlphanumeric(t *testing.T) {
	p := laptop()
	p.Name = "Fuß"
	p.Category.Name = "Straße"

	got, err := NewGenerator().Generate(p)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]+(-[A-Z0-9]+)+$`), got)
	assert.True(t, strings.HasPrefix(got, "STR-FUX-"), got)
}

func TestGenerate_NoKeyAttributes(t *testing.T) {
	p := laptop()
	p.Attributes = nil

	got, err := NewGenerator().Generate(p)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^LAP-THI-[A-Z0-9]{4}$`), got)
}

func TestGenerate_DeterministicPrefix(t *testing.T) {
	g := NewGenerator()

	first, err := g.Generate(laptop())
	require.NoError(t, err)

	reordered := laptop()
	reordered.Attributes[0], reordered.Attributes[1] = reordered.Attributes[1], reordered.Attributes[0]
	second, err := g.Generate(reordered)
	require.NoError(t, err)

	cut := strings.LastIndex(first, Separator)
	assert.Equal(t, first[:cut], second[:cut])
}

func TestGenerate_SeededSuffixRepeats(t *testing.T) {
	a, err := NewSeededGenerator(1, 2).Generate(laptop())
	require.NoError(t, err)
	b, err := NewSeededGenerator(1, 2).Generate(laptop())
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestGenerate_RequiresCategory(t *testing.T) {
	p := laptop()
	p.Category = domain.Category{}

	_, err := NewGenerator().Generate(p)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewGenerator().Generate(nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestGenerate_Concurrent(t *testing.T) {
	g := NewGenerator()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Generate(laptop())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
