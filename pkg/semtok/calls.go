package semtok

import (
	"context"
	"regexp"

	"github.com/walteh/scrustls/pkg/position"
	"gitlab.com/tozd/go/errors"
)

// callSite matches an identifier followed by an opening parenthesis, with
// optional whitespace (newlines included) in between.
var callSite = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)` + space + `*\(`)

// LocateCalls scans text for calls to the procedures in defs and returns one
// token per call, in document order.
//
// The declared name inside "proc name(...)" also looks like a call; it is
// skipped so that only call sites are classified.
func LocateCalls(ctx context.Context, text string, defs *Definitions) ([]Token, error) {
	tokens := make([]Token, 0)

	err := scan(ctx, callSite, text, func(match []int) {
		start, end := match[2], match[3]
		name := text[start:end]

		if !defs.Names.Has(name) || defs.IsDeclarationAt(start) {
			return
		}

		tokens = append(tokens, Token{
			Type:     TokenFunction,
			Modifier: ModifierDeclaration,
			Range:    position.NewBasicPosition(name, start),
		})
	})
	if err != nil {
		return nil, errors.Errorf("locating procedure calls: %w", err)
	}

	return tokens, nil
}
