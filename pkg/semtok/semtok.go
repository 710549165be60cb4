/*
Package semtok provides semantic token support for scrust sources.

Core Functions:
-------------

	       Input
	         |
	         v
	  +------------+
	  |  scrust    |
	  |  text      |
	  +------------+
	     |      |
	 pass 1   pass 2
	     |      |
	     v      v
	  +------+ +-------+
	  | proc | | calls |---> []Token (document order)
	  | names|>|       |
	  +------+ +-------+
*/
package semtok

import (
	"context"

	"github.com/walteh/scrustls/pkg/position"
	"gitlab.com/tozd/go/errors"
)

// GetTokensForText returns semantic tokens for the given scrust text.
// This is the main entry point for semantic token generation.
//
//	Example:
//	   tokens, err := GetTokensForText(ctx, []byte("proc f() {} f();"))
//	   if err != nil {
//	       return err
//	   }
//	   // Use tokens...
//
// When ctx is cancelled before both passes finish, the error wraps ctx.Err()
// and no tokens are returned.
func GetTokensForText(ctx context.Context, content []byte) ([]Token, error) {
	text := string(content)

	defs, err := CollectDefinitions(ctx, text)
	if err != nil {
		return nil, errors.Errorf("generating semantic tokens: %w", err)
	}

	tokens, err := LocateCalls(ctx, text, defs)
	if err != nil {
		return nil, errors.Errorf("generating semantic tokens: %w", err)
	}

	return tokens, nil
}

// GetTokensForRange returns the semantic tokens overlapping a byte range of the text.
// Procedures may be declared outside the range, so the whole text is always scanned.
//
//	Example:
//	   tokens, err := GetTokensForRange(ctx, content, position.NewBasicPosition(string(content[10:40]), 10))
func GetTokensForRange(ctx context.Context, content []byte, ranged position.RawPosition) ([]Token, error) {
	tokens, err := GetTokensForText(ctx, content)
	if err != nil {
		return nil, err
	}

	filtered := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Range.HasRangeOverlapWith(ranged) {
			filtered = append(filtered, tok)
		}
	}

	return filtered, nil
}
