package syntax

import "stlang/internal/lexer"

// Node is a red-tree view over a Green subtree: it adds the absolute
// start offset and a parent pointer, computed lazily as callers
// descend from Root. Red nodes never outlive the Root they were
// built from and form a tree, never a cycle (spec.md §9): a child's
// Parent points up, but nothing in Green points down into a specific
// red instantiation.
type Node struct {
	Green  *Green
	Offset int
	Parent *Node
	index  int // this node's index within Parent's children, -1 at root
}

// NewRoot wraps a top-level Green node (offset 0, no parent).
func NewRoot(g *Green) *Node {
	return &Node{Green: g, Offset: 0, Parent: nil, index: -1}
}

// EndOffset is Offset + the subtree's total byte length.
func (n *Node) EndOffset() int { return n.Offset + n.Green.Len() }

// Kind is the underlying Green node's kind.
func (n *Node) Kind() NodeKind { return n.Green.Kind }

// Children materializes the red children of n, computing each one's
// absolute offset by walking n's Green children in order.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.Green.Children))
	offset := n.Offset
	for i, c := range n.Green.Children {
		if c.Node != nil {
			child := &Node{Green: c.Node, Offset: offset, Parent: n, index: i}
			out = append(out, child)
		}
		if c.Token != nil {
			offset += c.Token.Len()
		} else if c.Node != nil {
			offset += c.Node.Len()
		}
	}
	return out
}

// Tokens returns every token leaf directly under n (not recursive),
// each paired with its absolute start offset.
func (n *Node) Tokens() []TokenAt {
	out := make([]TokenAt, 0, len(n.Green.Children))
	offset := n.Offset
	for _, c := range n.Green.Children {
		if c.Token != nil {
			out = append(out, TokenAt{Token: c.Token, Offset: offset})
			offset += c.Token.Len()
		} else if c.Node != nil {
			offset += c.Node.Len()
		}
	}
	return out
}

// TokenAt pairs a green token leaf with its absolute source offset.
type TokenAt struct {
	Token  *TokenData
	Offset int
}

// FirstToken returns the first non-trivia token under n, recursing
// into children — this is the statement's location anchor per
// spec.md §4.8 ("the first non-trivia token (column 1-based)").
func (n *Node) FirstToken() (TokenAt, bool) {
	offset := n.Offset
	for _, c := range n.Green.Children {
		if c.Token != nil {
			return TokenAt{Token: c.Token, Offset: offset}, true
		}
		if c.Node != nil {
			if sub := (&Node{Green: c.Node, Offset: offset}).firstToken(offset); sub != nil {
				return *sub, true
			}
			offset += c.Node.Len()
		}
	}
	return TokenAt{}, false
}

func (n *Node) firstToken(offset int) *TokenAt {
	for _, c := range n.Green.Children {
		if c.Token != nil {
			return &TokenAt{Token: c.Token, Offset: offset}
		}
		if c.Node != nil {
			if sub := (&Node{Green: c.Node}).firstToken(offset); sub != nil {
				return sub
			}
			offset += c.Node.Len()
		}
	}
	return nil
}

// Text reconstructs n's exact source slice.
func (n *Node) Text() string { return n.Green.Text() }

// PositionOf converts a byte offset within the source to a 1-based
// line/column by scanning src once; callers cache this per file
// version rather than calling it per-token.
func PositionOf(src string, offset int) lexer.Position {
	line, col := 1, 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return lexer.Position{Line: line, Column: col}
}

// Contains reports whether offset falls within [n.Offset, n.EndOffset()).
func (n *Node) Contains(offset int) bool {
	return offset >= n.Offset && offset < n.EndOffset()
}

// FindToken walks down from root to the deepest node whose span
// contains offset and returns that red node (root itself when no child
// contains offset). Used by hover/completion/definition to resolve
// "what's at this cursor position" (spec.md §4.7).
func FindToken(root *Node, offset int) *Node {
	cur := root
	for {
		children := cur.Children()
		found := false
		for _, c := range children {
			if offset >= c.Offset && offset < c.EndOffset() {
				cur = c
				found = true
				break
			}
		}
		if !found {
			return cur
		}
	}
}
