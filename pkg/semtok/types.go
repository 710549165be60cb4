/*
Token Types and Modifiers:
------------------------
The legend advertised to the client is fixed. Token types and modifiers
are indices into it, so the values below ARE the wire encoding:

	+-------------+        +---------------+
	| TokenType   |  --->  | legend index  |
	+-------------+        +---------------+
	  function                   0

	+---------------+      +---------------+
	| TokenModifier |  ->  | bit in set    |
	+---------------+      +---------------+
	  declaration             1 << 0

Each token carries both its classification and position information.
*/
package semtok

import (
	"github.com/walteh/scrustls/pkg/position"
)

// TokenType is an index into the legend's token types
type TokenType uint32

const (
	// TokenFunction marks a call to a user-defined procedure (e.g. double(5))
	TokenFunction TokenType = 0
)

// TokenModifier is a bit set over the legend's token modifiers
type TokenModifier uint32

const (
	// ModifierNone indicates no modifiers
	ModifierNone TokenModifier = 0

	// ModifierDeclaration is the only modifier in the legend. Call sites carry it.
	ModifierDeclaration TokenModifier = 1 << 0
)

var (
	tokenTypes     = []string{"function"}
	tokenModifiers = []string{"declaration"}
)

// Legend returns the token type and modifier names, in index order.
// The returned slices are copies.
func Legend() (types []string, modifiers []string) {
	return append([]string(nil), tokenTypes...), append([]string(nil), tokenModifiers...)
}

// Token represents a semantic token with its type, modifiers, and position
type Token struct {
	// Type indicates the semantic meaning of the token
	Type TokenType

	// Modifier indicates any special characteristics
	Modifier TokenModifier

	// Range indicates the token's position in the source
	Range position.RawPosition
}

// String returns a human-readable representation of the token type
func (t TokenType) String() string {
	if int(t) < len(tokenTypes) {
		return tokenTypes[t]
	}
	return "unknown"
}

// String returns a human-readable representation of the token modifier set
func (m TokenModifier) String() string {
	switch m {
	case ModifierNone:
		return "none"
	case ModifierDeclaration:
		return "declaration"
	default:
		return "unknown"
	}
}
