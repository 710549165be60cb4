package semtok_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/scrustls/pkg/position"
	"github.com/walteh/scrustls/pkg/semtok"
)

/*
Test Organization:
----------------

	+----------------+
	|  Test Groups   |
	+----------------+
	       |
	+------+--------+
	|               |
	Passes        Output
	|               |
	Definitions   Call tokens
	Call sites    Ordering
	Cancellation  Encoding
*/

func call(name string, offset int) semtok.Token {
	return semtok.Token{
		Type:     semtok.TokenFunction,
		Modifier: semtok.ModifierDeclaration,
		Range:    position.NewBasicPosition(name, offset),
	}
}

func TestCallTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []semtok.Token
	}{
		{
			name:     "test_no_declarations",
			input:    "let z = unknown(3);\nprint(z);",
			expected: []semtok.Token{},
		},
		{
			name:  "test_declared_then_called",
			input: "proc double(x) { return x * 2; } let y = double(5);",
			expected: []semtok.Token{
				call("double", 41),
			},
		},
		{
			name:  "test_nested_calls",
			input: "proc f(a) {} proc g(b) { f(b); f(g(b)); }",
			expected: []semtok.Token{
				call("f", 25),
				call("f", 31),
				call("g", 33),
			},
		},
		{
			name:  "test_whitespace_before_paren",
			input: "proc go() {}\ngo  ();\ngo\n(\n);",
			expected: []semtok.Token{
				call("go", 13),
				call("go", 21),
			},
		},
		{
			name:  "test_vertical_tab_and_unicode_spaces_before_paren",
			input: "proc f() {}\nf\v(1);\nf\u00a0(2);\nf\u3000(3);",
			expected: []semtok.Token{
				call("f", 12),
				call("f", 19),
				call("f", 27),
			},
		},
		{
			name:  "test_no_break_space_after_keyword",
			input: "proc\u00a0g() {}\ng();",
			expected: []semtok.Token{
				call("g", 13),
			},
		},
		{
			name:     "test_zero_width_space_is_not_whitespace",
			input:    "proc f() {}\nf\u200b(1);",
			expected: []semtok.Token{},
		},
		{
			name:  "test_call_before_declaration",
			input: "when_flag_clicked { jump(); }\nproc jump() { say(\"hi\"); }",
			expected: []semtok.Token{
				call("jump", 20),
			},
		},
		{
			name:     "test_unknown_call_ignored",
			input:    "proc known() {}\nunknown();",
			expected: []semtok.Token{},
		},
		{
			name:  "test_duplicate_declaration",
			input: "proc dup() {}\nproc dup() {}\ndup();",
			expected: []semtok.Token{
				call("dup", 28),
			},
		},
		{
			name:     "test_name_without_call_is_ignored",
			input:    "proc f() {}\nlet h = f;",
			expected: []semtok.Token{},
		},
		{
			name:  "test_longer_identifier_is_not_a_prefix_match",
			input: "proc f() {}\nff(); f_1(); f();",
			expected: []semtok.Token{
				call("f", 25),
			},
		},
		{
			name:  "test_keyword_without_name",
			input: "proc (x) {}\nproc 9bad() {}\nbad();\nproc",
			expected: []semtok.Token{},
		},
		{
			name:  "test_keyword_must_be_a_whole_word",
			input: "subproc hidden() {}\nhidden();\nproc shown() {}\nshown();",
			expected: []semtok.Token{
				call("shown", 46),
			},
		},
		{
			name:  "test_unterminated_source",
			input: "proc draw(size) {\n  repeat 4 { move(size); turn(90); }\n  draw(",
			expected: []semtok.Token{
				call("draw", 57),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := semtok.GetTokensForText(context.Background(), []byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tokens)

			for _, tok := range tokens {
				assert.Equal(t, tok.Range.Text, tt.input[tok.Range.Offset:tok.Range.Offset+tok.Range.Length()], "token text must match the source at its offset")
			}
		})
	}
}

func TestCollectDefinitions(t *testing.T) {
	text := "proc a() {}\nproc  b(x) {}\nproc a() {}\nproc\tc_2() {}"

	defs, err := semtok.CollectDefinitions(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, semtok.NameSet{"a": {}, "b": {}, "c_2": {}}, defs.Names)
	assert.Len(t, defs.Offsets, 4)
	assert.True(t, defs.IsDeclarationAt(5))
	assert.True(t, defs.IsDeclarationAt(strings.Index(text, "b(x)")))
	assert.False(t, defs.IsDeclarationAt(0))
}

func TestCollectDefinitionsEmpty(t *testing.T) {
	defs, err := semtok.CollectDefinitions(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, defs.Names)
}

func TestLocateCallsSkipsDeclarationSites(t *testing.T) {
	text := "proc f(a) {}\nf(1);"

	defs, err := semtok.CollectDefinitions(context.Background(), text)
	require.NoError(t, err)

	tokens, err := semtok.LocateCalls(context.Background(), text, defs)
	require.NoError(t, err)
	assert.Equal(t, []semtok.Token{call("f", 13)}, tokens)
}

func TestTokensAreInDocumentOrder(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("proc a() {}\nproc b() {}\n")
	for i := 0; i < 200; i++ {
		sb.WriteString("a(b(a()));\r\n  b (a\t());\n")
	}
	text := sb.String()

	tokens, err := semtok.GetTokensForText(context.Background(), []byte(text))
	require.NoError(t, err)
	require.Len(t, tokens, 200*5)

	m := position.NewMapper(text)
	for i := 1; i < len(tokens); i++ {
		prev := m.PlaceAt(tokens[i-1].Range.Offset)
		cur := m.PlaceAt(tokens[i].Range.Offset)
		assert.True(t, prev.Before(cur), "token %d at %+v must come after %+v", i, cur, prev)
	}
}

func TestIdempotent(t *testing.T) {
	text := []byte("proc f(a) {} proc g(b) { f(b); f(g(b)); }")

	first, err := semtok.GetTokensForText(context.Background(), text)
	require.NoError(t, err)
	second, err := semtok.GetTokensForText(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGetTokensForRange(t *testing.T) {
	text := "proc f() {}\nf();\nf();\nf();"

	tokens, err := semtok.GetTokensForRange(context.Background(), []byte(text), position.NewBasicPosition("f();", 17))
	require.NoError(t, err)
	assert.Equal(t, []semtok.Token{call("f", 17)}, tokens)
}

// countdownContext reports cancellation after Err has been called n times,
// which lets a test cancel at an exact point in the middle of a scan.
type countdownContext struct {
	context.Context
	remaining atomic.Int64
}

func newCountdownContext(n int64) *countdownContext {
	c := &countdownContext{Context: context.Background()}
	c.remaining.Store(n)
	return c
}

func (c *countdownContext) Err() error {
	if c.remaining.Add(-1) < 0 {
		return context.Canceled
	}
	return nil
}

func TestCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("proc tick() {}\n")
	for i := 0; i < 50000; i++ {
		sb.WriteString("tick();\n")
	}
	text := []byte(sb.String())

	t.Run("test_cancelled_before_start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		tokens, err := semtok.GetTokensForText(ctx, text)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, tokens)
	})

	t.Run("test_cancelled_during_call_scan", func(t *testing.T) {
		// the definition pass checks twice: once for its only match and once for the final miss
		ctx := newCountdownContext(2 + 1000)

		tokens, err := semtok.GetTokensForText(ctx, text)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, tokens, "a cancelled scan must not return partial results")
	})

	t.Run("test_cancelled_during_definition_scan", func(t *testing.T) {
		ctx := newCountdownContext(1)

		defs, err := semtok.CollectDefinitions(ctx, string(text))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, defs)
	})
}

func TestEncode(t *testing.T) {
	text := "proc f(a) {} proc g(b) {\n  f(b);\n  f(g(b));\n}\n// 🎨 f(1)"

	tokens, err := semtok.GetTokensForText(context.Background(), []byte(text))
	require.NoError(t, err)

	data := semtok.Encode(tokens, text)
	assert.Equal(t, []uint32{
		1, 2, 1, 0, 1, // f(b)
		1, 2, 1, 0, 1, // f(g(b))
		0, 2, 1, 0, 1, // g(b)
		2, 6, 1, 0, 1, // f(1) after an astral rune
	}, data)
}

func TestBuilderSortsOutOfOrderPushes(t *testing.T) {
	b := semtok.NewBuilder()
	b.Push(3, 4, 2, semtok.TokenFunction, semtok.ModifierDeclaration)
	b.Push(0, 7, 3, semtok.TokenFunction, semtok.ModifierDeclaration)
	b.Push(3, 1, 1, semtok.TokenFunction, semtok.ModifierNone)

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []uint32{
		0, 7, 3, 0, 1,
		3, 1, 1, 0, 0,
		0, 3, 2, 0, 1,
	}, b.Build())
}

func TestBuilderEmpty(t *testing.T) {
	assert.Equal(t, []uint32{}, semtok.NewBuilder().Build())
}

func TestLegend(t *testing.T) {
	types, modifiers := semtok.Legend()
	assert.Equal(t, []string{"function"}, types)
	assert.Equal(t, []string{"declaration"}, modifiers)

	assert.Equal(t, "function", semtok.TokenFunction.String())
	assert.Equal(t, "declaration", semtok.ModifierDeclaration.String())
	assert.Equal(t, "none", semtok.ModifierNone.String())

	types[0] = "mutated"
	again, _ := semtok.Legend()
	assert.Equal(t, "function", again[0], "legend must not be mutable through returned slices")
}
