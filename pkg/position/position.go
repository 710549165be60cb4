package position

import (
	"sort"
	"unicode/utf8"
)

// Place is a zero-based LSP position. Character counts UTF-16 code units.
type Place struct {
	Line      int
	Character int
}

// Before reports whether p sorts strictly before other in document order.
func (p Place) Before(other Place) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

type Range struct {
	Start Place
	End   Place
}

// RawPosition represents a position in the source text
type RawPosition struct {
	// Offset is the byte offset in the source text
	Offset int
	// Text is the actual text at this position
	Text string
}

// Length returns the length of the text at this position in bytes
func (p RawPosition) Length() int {
	return len(p.Text)
}

// UTF16Length returns the length of the text at this position in UTF-16 code units
func (p RawPosition) UTF16Length() int {
	return UTF16Len(p.Text)
}

func NewBasicPosition(text string, offset int) RawPosition {
	return RawPosition{Text: text, Offset: offset}
}

func (p RawPosition) HasRangeOverlapWith(start RawPosition) bool {
	startOffset := start.Offset
	endOffset := startOffset + start.Length()

	posOffset := p.Offset
	posEndOffset := posOffset + p.Length()

	// zero-length positions overlap when they fall inside (or on the edge of) the other range
	if p.Length() == 0 {
		return posOffset >= startOffset && posOffset <= endOffset
	}
	if start.Length() == 0 {
		return startOffset >= posOffset && startOffset <= posEndOffset
	}

	return startOffset < posEndOffset && endOffset > posOffset
}

/*
Mapper converts between byte offsets and LSP places for one text.

	text:   "ab\r\ncd\ne"
	         0 1 2 3 4 5 6 7
	lines:  [0, 4, 7]

A line break is "\n", "\r\n" or a lone "\r", the same set editors use when
they split a document into lines. A "\r\n" pair belongs to the line it ends.
*/
type Mapper struct {
	text       string
	lineStarts []int
}

func NewMapper(text string) *Mapper {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			starts = append(starts, i+1)
		}
	}
	return &Mapper{text: text, lineStarts: starts}
}

// PlaceAt converts a byte offset into a place. Offsets are clamped to the text,
// and an offset inside a multi-byte rune or a "\r\n" pair snaps back to its start.
func (m *Mapper) PlaceAt(offset int) Place {
	if offset < 0 {
		offset = 0
	}
	if offset > len(m.text) {
		offset = len(m.text)
	}

	line := sort.Search(len(m.lineStarts), func(i int) bool {
		return m.lineStarts[i] > offset
	}) - 1

	end := m.lineContentEnd(line)
	if offset > end {
		offset = end
	}
	for offset > m.lineStarts[line] && offset < len(m.text) && !utf8.RuneStart(m.text[offset]) {
		offset--
	}

	return Place{
		Line:      line,
		Character: UTF16Len(m.text[m.lineStarts[line]:offset]),
	}
}

// OffsetAt converts a place into a byte offset. Lines past the end clamp to the
// end of the text and characters past the end of a line clamp to the line end.
func (m *Mapper) OffsetAt(place Place) int {
	if place.Line < 0 {
		return 0
	}
	if place.Line >= len(m.lineStarts) {
		return len(m.text)
	}

	start := m.lineStarts[place.Line]
	end := m.lineContentEnd(place.Line)

	units := 0
	offset := start
	for offset < end && units < place.Character {
		r, size := utf8.DecodeRuneInString(m.text[offset:end])
		units += utf16RuneLen(r)
		offset += size
	}
	return offset
}

// RangeOf returns the start and end places of p.
func (m *Mapper) RangeOf(p RawPosition) Range {
	return Range{
		Start: m.PlaceAt(p.Offset),
		End:   m.PlaceAt(p.Offset + p.Length()),
	}
}

// lineContentEnd returns the offset of the first line break byte of line, or
// the end of the text for the last line.
func (m *Mapper) lineContentEnd(line int) int {
	if line+1 >= len(m.lineStarts) {
		return len(m.text)
	}
	end := m.lineStarts[line+1] - 1
	if m.text[end] == '\n' && end > m.lineStarts[line] && m.text[end-1] == '\r' {
		end--
	}
	return end
}

// UTF16Len returns the number of UTF-16 code units needed to encode s.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16RuneLen(r)
	}
	return n
}

func utf16RuneLen(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}
