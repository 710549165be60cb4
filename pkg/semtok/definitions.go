package semtok

import (
	"context"
	"regexp"

	"gitlab.com/tozd/go/errors"
)

// space is the JavaScript \s class spelled for RE2, whose \s is ASCII only.
const space = `[\s\v\p{Zs}\x{FEFF}\x{2028}\x{2029}]`

// procDefinition matches the keyword that introduces a procedure followed by its name.
var procDefinition = regexp.MustCompile(`\bproc` + space + `+([a-zA-Z_][a-zA-Z0-9_]*)`)

// NameSet is the set of procedure names declared in a text
type NameSet map[string]struct{}

// Has reports whether name was declared.
func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Definitions is the result of the first pass over a text.
type Definitions struct {
	// Names holds every declared procedure name once
	Names NameSet

	// Offsets holds the byte offset of every declared name occurrence
	Offsets map[int]struct{}
}

func newDefinitions() *Definitions {
	return &Definitions{
		Names:   make(NameSet),
		Offsets: make(map[int]struct{}),
	}
}

func (d *Definitions) add(name string, offset int) {
	d.Names[name] = struct{}{}
	d.Offsets[offset] = struct{}{}
}

// IsDeclarationAt reports whether a declared name starts at offset.
func (d *Definitions) IsDeclarationAt(offset int) bool {
	_, ok := d.Offsets[offset]
	return ok
}

// CollectDefinitions scans text once for procedure declarations.
//
// A "proc" keyword without a following identifier is skipped; the only error
// this returns is the context's.
func CollectDefinitions(ctx context.Context, text string) (*Definitions, error) {
	defs := newDefinitions()

	err := scan(ctx, procDefinition, text, func(match []int) {
		defs.add(text[match[2]:match[3]], match[2])
	})
	if err != nil {
		return nil, errors.Errorf("collecting procedure definitions: %w", err)
	}

	return defs, nil
}

// scan calls fn with the submatch indexes of every non-overlapping match of re
// in text, left to right, checking ctx before each step.
//
// Resuming at the end of the previous match is safe for our patterns: both end
// with a character that is never followed by a word character in the match
// (the call pattern ends in '(' and the identifier group is greedy), so the
// leading \b sees the same boundary it would with the full text.
func scan(ctx context.Context, re *regexp.Regexp, text string, fn func(match []int)) error {
	pos := 0
	for pos <= len(text) {
		if err := ctx.Err(); err != nil {
			return err
		}

		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			return nil
		}

		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}

		fn(loc)

		if loc[1] == pos {
			// empty match; never happens with our patterns but must not spin
			pos++
			continue
		}
		pos = loc[1]
	}
	return nil
}
