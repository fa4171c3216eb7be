// Package sku derives stock keeping unit codes of the form CAT-PRD[-KEYS]-SUFX.
package sku

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
)

const (
	Separator  = "-"
	SuffixLen  = 4
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLen    = 3
	keyCodeLen = 2
	padding    = 'X'
)

type Generator struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func NewGenerator() *Generator {
	return &Generator{rand: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededGenerator returns a generator whose suffixes repeat for equal seeds.
func NewSeededGenerator(seed1, seed2 uint64) *Generator {
	return &Generator{rand: rand.New(rand.NewPCG(seed1, seed2))}
}

// Generate builds a SKU for p. The suffix is random, so uniqueness is probabilistic and
// callers must handle collisions.
func (g *Generator) Generate(p *domain.Product) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: product is required", domain.ErrValidation)
	}
	if strings.TrimSpace(p.Category.Name) == "" {
		return "", fmt.Errorf("%w: product %q has no category", domain.ErrValidation, p.Name)
	}

	segments := []string{
		Abbreviate(p.Category.Name, codeLen),
		Abbreviate(p.Name, codeLen),
	}

	var keys strings.Builder
	for _, attr := range p.KeyAttributes() {
		keys.WriteString(Abbreviate(attr.Value, keyCodeLen))
	}
	if keys.Len() > 0 {
		segments = append(segments, keys.String())
	}

	segments = append(segments, g.suffix())

	return strings.ToUpper(strings.Join(segments, Separator)), nil
}

func (g *Generator) suffix() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := make([]byte, SuffixLen)
	for i := range b {
		b[i] = alphabet[g.rand.IntN(len(alphabet))]
	}
	return string(b)
}

// Abbreviate keeps the first n ASCII letters or digits of s, uppercased. Other runes are
// skipped. Shorter inputs are right-padded with 'X' so every code has a fixed width.
func Abbreviate(s string, n int) string {
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count == n {
			break
		}
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		count++
	}
	for ; count < n; count++ {
		b.WriteRune(padding)
	}
	return b.String()
}
