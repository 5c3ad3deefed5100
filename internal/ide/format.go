package ide

import (
	"strings"

	"stlang/internal/lexer"
	"stlang/internal/syntax"
)

// FormatOptions holds the formatter's knobs. Format reads only
// IndentWidth; MaxLineLen is carried but not applied, so long lines are
// never wrapped. Operator spacing and keyword casing are fixed house
// style, same as gofmt's.
type FormatOptions struct {
	IndentWidth int
	MaxLineLen  int
}

func DefaultFormatOptions() FormatOptions {
	return FormatOptions{IndentWidth: 4, MaxLineLen: 120}
}

// indentOpeners open a nested block; the matching End* keyword closes
// it. VAR* blocks are included since their bodies indent too.
var indentOpeners = map[lexer.Kind]bool{
	lexer.KwProgram: true, lexer.KwFunction: true, lexer.KwFunctionBlock: true,
	lexer.KwClass: true, lexer.KwInterface: true, lexer.KwMethod: true,
	lexer.KwProperty: true, lexer.KwAction: true, lexer.KwNamespace: true,
	lexer.KwVar: true, lexer.KwVarInput: true, lexer.KwVarOutput: true,
	lexer.KwVarInOut: true, lexer.KwVarGlobal: true, lexer.KwVarExternal: true,
	lexer.KwVarTemp: true, lexer.KwVarConfig: true,
	lexer.KwIf: true, lexer.KwCase: true, lexer.KwFor: true, lexer.KwWhile: true,
	lexer.KwRepeat: true, lexer.KwType: true, lexer.KwStruct: true,
	lexer.KwGet: true, lexer.KwSet: true,
}

var indentClosers = map[lexer.Kind]bool{
	lexer.KwEndProgram: true, lexer.KwEndFunction: true, lexer.KwEndFunctionBlock: true,
	lexer.KwEndClass: true, lexer.KwEndInterface: true, lexer.KwEndMethod: true,
	lexer.KwEndProperty: true, lexer.KwEndAction: true, lexer.KwEndNamespace: true,
	lexer.KwEndVar: true, lexer.KwEndIf: true, lexer.KwEndCase: true,
	lexer.KwEndFor: true, lexer.KwEndWhile: true, lexer.KwEndRepeat: true,
	lexer.KwEndType: true, lexer.KwEndStruct: true,
}

// dedentBeforeKeywords are mid-block keywords that dedent one level for
// their own line before the following block re-indents: ELSE and
// ELSIF. CASE labels are not dedented.
var dedentBeforeKeywords = map[lexer.Kind]bool{
	lexer.KwElse: true, lexer.KwElsif: true,
}

// Format re-renders file's source in canonical style: one normalized
// indent level per nested block, fixed operator spacing, and
// canonicalized keyword casing — while leaving comment, pragma, and
// string-literal text untouched (spec.md §4.7 "formatting ...
// respects comment/pragma/string lines, never reflowed"). A line
// comment always ends its output line. VAR declaration columns are not
// aligned, and lines are not wrapped at opts.MaxLineLen. Running
// Format twice on its own output returns the same text unchanged.
func Format(root *syntax.Node, src string, opts FormatOptions) string {
	toks := allTokens(root)
	if len(toks) == 0 {
		return src
	}
	var b strings.Builder
	depth := 0
	atLineStart := true
	prevKind := lexer.EOF

	writeIndent := func(extra int) {
		for i := 0; i < (depth+extra)*opts.IndentWidth; i++ {
			b.WriteByte(' ')
		}
	}

	for _, t := range toks {
		text := canonicalText(t.Token)

		for _, tr := range t.Token.Leading {
			if tr.Kind == lexer.TriviaLineComment || tr.Kind == lexer.TriviaBlockComment || tr.Kind == lexer.TriviaPragma {
				if !atLineStart {
					b.WriteByte(' ')
				} else {
					writeIndent(0)
				}
				b.WriteString(tr.Text)
				atLineStart = false
				if tr.Kind == lexer.TriviaLineComment {
					b.WriteByte('\n')
					atLineStart = true
				}
			}
		}

		if indentClosers[t.Token.Kind] && depth > 0 {
			depth--
		}
		extra := 0
		if dedentBeforeKeywords[t.Token.Kind] {
			extra = -1
		}

		if atLineStart {
			writeIndent(extra)
		} else if needsSpace(prevKind, t.Token.Kind) {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		atLineStart = false
		for _, tr := range t.Token.Trailing {
			if tr.Kind == lexer.TriviaLineComment {
				b.WriteByte(' ')
				b.WriteString(tr.Text)
				b.WriteByte('\n')
				atLineStart = true
			}
		}

		if !atLineStart && (t.Token.Kind == lexer.Semicolon || indentOpeners[t.Token.Kind] || indentClosers[t.Token.Kind] || dedentBeforeKeywords[t.Token.Kind]) {
			b.WriteByte('\n')
			atLineStart = true
		}

		if indentOpeners[t.Token.Kind] {
			depth++
		}

		prevKind = t.Token.Kind
	}
	return b.String()
}

// allTokens flattens the whole CST into document-order tokens.
func allTokens(n *syntax.Node) []syntax.TokenAt {
	var out []syntax.TokenAt
	var walk func(n *syntax.Node)
	walk = func(n *syntax.Node) {
		out = append(out, n.Tokens()...)
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(n)
	return out
}

// canonicalText upper-cases keywords (IEC source is case-insensitive;
// house style canonicalizes to upper) and leaves everything else —
// identifiers, literals, string/char text — exactly as written.
func canonicalText(t *syntax.TokenData) string {
	if t.Kind > lexer.KeywordBegin && t.Kind < lexer.KeywordEnd {
		return strings.ToUpper(t.Text)
	}
	return t.Text
}

var noSpaceBefore = map[lexer.Kind]bool{
	lexer.Comma: true, lexer.Semicolon: true, lexer.RParen: true,
	lexer.RBracket: true, lexer.Dot: true, lexer.DotDot: true,
}

var noSpaceAfter = map[lexer.Kind]bool{
	lexer.LParen: true, lexer.LBracket: true, lexer.Dot: true, lexer.DotDot: true, lexer.Hat: true,
}

// needsSpace decides whether a single space belongs between two
// adjacent tokens already placed on the same line.
func needsSpace(prevKind, kind lexer.Kind) bool {
	if prevKind == lexer.EOF {
		return false
	}
	if noSpaceAfter[prevKind] || noSpaceBefore[kind] {
		return false
	}
	if prevKind == lexer.Ident && kind == lexer.LParen {
		return false // call/index syntax: Foo(
	}
	if kind == lexer.Hat {
		return false // Ptr^ dereference
	}
	return true
}
