package syntax

import "stlang/internal/lexer"

// TokenData is a green-tree leaf: it carries everything needed to
// reproduce its own source text, but no absolute offset — offsets are
// a red-tree concern (spec.md §3, §9 "Cyclic ownership in CST").
type TokenData struct {
	Kind     lexer.Kind
	Text     string
	Leading  []lexer.Trivia
	Trailing []lexer.Trivia
}

// Len is the total byte length this leaf contributes, trivia included.
func (t *TokenData) Len() int {
	n := len(t.Text)
	for _, tr := range t.Leading {
		n += len(tr.Text)
	}
	for _, tr := range t.Trailing {
		n += len(tr.Text)
	}
	return n
}

// FullText reconstructs this leaf's exact source slice, trivia included.
func (t *TokenData) FullText() string {
	var b []byte
	for _, tr := range t.Leading {
		b = append(b, tr.Text...)
	}
	b = append(b, t.Text...)
	for _, tr := range t.Trailing {
		b = append(b, tr.Text...)
	}
	return string(b)
}

// FromToken builds a green leaf from a lexer.Token.
func FromToken(tok lexer.Token) *TokenData {
	return &TokenData{Kind: tok.Kind, Text: tok.Text, Leading: tok.Leading, Trailing: tok.Trailing}
}

// Green is an immutable interior CST node: a Kind plus an ordered
// child list. Green nodes never carry absolute offsets, so the same
// Green subtree can be shared across multiple edited trees (spec.md
// §3's edit-sharing invariant) — an incremental reparse that only
// touches one statement reuses every other Green node verbatim.
type Green struct {
	Kind     NodeKind
	Children []Element
	length   int // memoized; computed once at construction
}

// NewGreen builds a Green node and memoizes its text length.
func NewGreen(kind NodeKind, children []Element) *Green {
	n := 0
	for _, c := range children {
		if c.Token != nil {
			n += c.Token.Len()
		} else if c.Node != nil {
			n += c.Node.Len()
		}
	}
	return &Green{Kind: kind, Children: children, length: n}
}

// Len is the total byte length of this node's subtree.
func (g *Green) Len() int { return g.length }

// Text reconstructs this node's exact source slice by concatenating
// every descendant token's full text in order.
func (g *Green) Text() string {
	var b []byte
	var walk func(*Green)
	walk = func(n *Green) {
		for _, c := range n.Children {
			if c.Token != nil {
				b = append(b, c.Token.FullText()...)
			} else if c.Node != nil {
				walk(c.Node)
			}
		}
	}
	walk(g)
	return string(b)
}

// Tok builds a single-token child element from a lexer.Token.
func Tok(tok lexer.Token) Element { return Element{Token: FromToken(tok)} }

// N builds a node child element.
func N(g *Green) Element { return Element{Node: g} }
