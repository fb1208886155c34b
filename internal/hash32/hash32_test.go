package hash32_test

import (
	"testing"

	"github.com/consoletools/fudgebundle/internal/hash32"
	"github.com/stretchr/testify/assert"
)

func TestStringDeterministic(t *testing.T) {
	a := hash32.String("apple")
	b := hash32.String("apple")
	assert.Equal(t, a, b)
}

func TestStringDistinguishesNames(t *testing.T) {
	assert.NotEqual(t, hash32.String("apple"), hash32.String("banana"))
	assert.NotEqual(t, hash32.String("apple"), hash32.String("apple2"))
}

func TestStringCaseSensitive(t *testing.T) {
	assert.NotEqual(t, hash32.String("Apple"), hash32.String("apple"))
}

func TestStringMatchesReferenceRecurrence(t *testing.T) {
	// h' = byte + (h<<6) + (h<<16) - h, applied by hand for "ab".
	var h uint32
	h = uint32('a') + (h << 6) + (h << 16) - h
	h = uint32('b') + (h << 6) + (h << 16) - h

	assert.Equal(t, h, hash32.String("ab"))
}

func TestPaletteMasksLSBByDefault(t *testing.T) {
	a := []uint16{0x0000, 0x7fff}
	b := []uint16{0x0001, 0x7ffe}

	assert.Equal(t, hash32.Palette(a, false), hash32.Palette(b, false))
	assert.NotEqual(t, hash32.Palette(a, true), hash32.Palette(b, true))
}
