package semtok

import (
	"sort"

	"github.com/walteh/scrustls/pkg/position"
)

type builderEntry struct {
	place     position.Place
	length    uint32
	tokenType uint32
	modifiers uint32
}

// Builder accumulates tokens for one response and encodes them in the LSP
// relative format:
//
//	[deltaLine, deltaStartChar, length, tokenType, tokenModifiers] ...
//
// A Builder is not safe for concurrent use; create one per request.
type Builder struct {
	entries []builderEntry
	sorted  bool
}

func NewBuilder() *Builder {
	return &Builder{sorted: true}
}

// Push appends a token. Tokens pushed out of document order are sorted by Build.
func (b *Builder) Push(line, char, length uint32, tokenType TokenType, modifiers TokenModifier) {
	place := position.Place{Line: int(line), Character: int(char)}
	if n := len(b.entries); n > 0 && place.Before(b.entries[n-1].place) {
		b.sorted = false
	}

	b.entries = append(b.entries, builderEntry{
		place:     place,
		length:    length,
		tokenType: uint32(tokenType),
		modifiers: uint32(modifiers),
	})
}

// Len returns the number of pushed tokens.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Build returns the encoded token data.
func (b *Builder) Build() []uint32 {
	if !b.sorted {
		sort.SliceStable(b.entries, func(i, j int) bool {
			return b.entries[i].place.Before(b.entries[j].place)
		})
		b.sorted = true
	}

	data := make([]uint32, 0, len(b.entries)*5)
	var prevLine, prevChar uint32

	for _, e := range b.entries {
		line, char := uint32(e.place.Line), uint32(e.place.Character)

		deltaLine := line - prevLine
		deltaChar := char
		if deltaLine == 0 {
			deltaChar = char - prevChar
		}

		data = append(data, deltaLine, deltaChar, e.length, e.tokenType, e.modifiers)

		prevLine = line
		prevChar = char
	}

	return data
}

// Encode converts tokens found in text into LSP token data.
func Encode(tokens []Token, text string) []uint32 {
	m := position.NewMapper(text)
	b := NewBuilder()

	for _, tok := range tokens {
		start := m.PlaceAt(tok.Range.Offset)
		b.Push(uint32(start.Line), uint32(start.Character), uint32(tok.Range.UTF16Length()), tok.Type, tok.Modifier)
	}

	return b.Build()
}
