package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []Token) []Kind {
	out := make([]Kind, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.Kind)
	}
	return out
}

func TestTokenizeRoundTrip(t *testing.T) {
	src := "PROGRAM P\n  VAR c : INT := 0; END_VAR\nEND_PROGRAM\n"
	toks := Tokenize(src)

	var rebuilt string
	for _, tok := range toks {
		for _, tr := range tok.Leading {
			rebuilt += tr.Text
		}
		rebuilt += tok.Text
		for _, tr := range tok.Trailing {
			rebuilt += tr.Text
		}
	}
	assert.Equal(t, src, rebuilt, "concatenating every token's trivia+text must reproduce the source exactly")
}

func TestKeywordsCaseInsensitive(t *testing.T) {
	toks := Tokenize("program END_PROGRAM")
	require.Len(t, toks, 3) // program, END_PROGRAM, EOF
	assert.Equal(t, KwProgram, toks[0].Kind)
	assert.Equal(t, KwEndProgram, toks[1].Kind)
}

func TestIdentifierRejectsDoubleUnderscore(t *testing.T) {
	toks := Tokenize("foo__bar")
	require.Len(t, toks, 2)
	assert.Equal(t, Error, toks[0].Kind)
}

func TestIdentifierRejectsTrailingUnderscore(t *testing.T) {
	toks := Tokenize("foo_")
	require.Len(t, toks, 2)
	assert.Equal(t, Error, toks[0].Kind)
}

func TestBasedIntegerLiterals(t *testing.T) {
	for _, src := range []string{"2#1010", "8#17", "16#FF"} {
		toks := Tokenize(src)
		require.Len(t, toks, 2)
		assert.Equal(t, IntLiteral, toks[0].Kind)
		assert.Equal(t, src, toks[0].Text)
	}
}

func TestUnderscoresIgnoredInNumericLiterals(t *testing.T) {
	toks := Tokenize("1_000_000")
	require.Len(t, toks, 2)
	assert.Equal(t, IntLiteral, toks[0].Kind)
	assert.Equal(t, "1_000_000", toks[0].Text)
}

func TestTypedLiteralPrefixIsOneToken(t *testing.T) {
	toks := Tokenize("TIME#100ms")
	require.Len(t, toks, 2)
	assert.Equal(t, DurationLiteral, toks[0].Kind)
	assert.Equal(t, "TIME#100ms", toks[0].Text)
}

func TestDurationUnderscoresBetweenUnits(t *testing.T) {
	toks := Tokenize("T#1d_2h_3m")
	require.Equal(t, DurationLiteral, toks[0].Kind)
	assert.Equal(t, "T#1d_2h_3m", toks[0].Text)
}

func TestDateTimeLiteral(t *testing.T) {
	toks := Tokenize("DT#2024-01-02-10:11:12")
	assert.Equal(t, DateTimeLiteral, toks[0].Kind)
}

func TestStringEscapes(t *testing.T) {
	toks := Tokenize(`'a$$b$'c$N'`)
	require.Equal(t, StringLiteral, toks[0].Kind)
}

func TestWideString(t *testing.T) {
	toks := Tokenize(`"hello"`)
	assert.Equal(t, WideStringLiteral, toks[0].Kind)
}

func TestUnterminatedStringIsErrorNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		toks := Tokenize("'unterminated")
		assert.Equal(t, Error, toks[0].Kind)
	})
}

func TestDirectAddresses(t *testing.T) {
	cases := []string{"%IX1.2", "%QW4", "%MD10", "%I*", "%Q*", "%M*", "%IL7"}
	for _, c := range cases {
		toks := Tokenize(c)
		assert.Equal(t, DirectAddress, toks[0].Kind, c)
		assert.Equal(t, c, toks[0].Text, c)
	}
}

func TestOperators(t *testing.T) {
	toks := Tokenize(":= => <> <= >= ** . ..")
	want := []Kind{Assign, SendTo, Ne, Le, Ge, Pow, Dot, DotDot, EOF}
	assert.Equal(t, want, kinds(toks))
}

func TestNeverPanicsOnGarbage(t *testing.T) {
	assert.NotPanics(t, func() {
		Tokenize("\x00\xff$#@!~`中文")
	})
}

func TestBoolLiterals(t *testing.T) {
	toks := Tokenize("TRUE FALSE")
	assert.Equal(t, []Kind{BoolLiteral, BoolLiteral, EOF}, kinds(toks))
}
