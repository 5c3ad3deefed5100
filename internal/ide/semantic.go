package ide

import (
	"context"

	"stlang/internal/lexer"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

// TokenType classifies a semantic token by symbol kind, mirroring the
// LSP standard token type set closely enough to map 1:1 in
// internal/lsp.
type TokenType int

const (
	TokenVariable TokenType = iota
	TokenParameter
	TokenProperty
	TokenFunction
	TokenMethod
	TokenClass
	TokenInterface
	TokenEnumMember
	TokenType_
	TokenNamespace
	TokenKeyword
)

// TokenModifier bitmask, applied on top of TokenType (spec.md §4.7
// "declaration, readonly for CONSTANT, modification for writes").
type TokenModifier int

const (
	ModDeclaration TokenModifier = 1 << iota
	ModReadonly
	ModModification
)

// SemanticToken is one classified span.
type SemanticToken struct {
	Range     Range
	Type      TokenType
	Modifiers TokenModifier
}

// SemanticTokens classifies every identifier occurrence in file by the
// kind and modifiers of the symbol it resolves to.
func SemanticTokens(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID) ([]SemanticToken, error) {
	src, err := ws.Read(file)
	if err != nil {
		return nil, err
	}
	root, err := ws.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}

	var out []SemanticToken
	var walk func(n *syntax.Node)
	walk = func(n *syntax.Node) {
		for _, t := range n.Tokens() {
			if t.Token.Kind != lexer.Ident {
				continue
			}
			sym, _, ok := symbolAt(root, tbl, ix, t.Offset)
			if !ok {
				continue
			}
			mods := TokenModifier(0)
			if t.Offset == sym.DeclOffset {
				mods |= ModDeclaration
			}
			if sym.Modifiers.Constant {
				mods |= ModReadonly
			}
			if isWriteTarget(n, t) {
				mods |= ModModification
			}
			out = append(out, SemanticToken{
				Range:     rangeOf(src, t.Offset, t.Offset+t.Token.Len()),
				Type:      tokenTypeOf(sym),
				Modifiers: mods,
			})
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

func tokenTypeOf(sym *symbols.Symbol) TokenType {
	switch sym.Kind {
	case symbols.KindFunction:
		return TokenFunction
	case symbols.KindMethod:
		return TokenMethod
	case symbols.KindFunctionBlock, symbols.KindProgram, symbols.KindClass:
		return TokenClass
	case symbols.KindInterface:
		return TokenInterface
	case symbols.KindProperty:
		return TokenProperty
	case symbols.KindTypeAlias:
		return TokenType_
	case symbols.KindEnumValue:
		return TokenEnumMember
	case symbols.KindNamespace:
		return TokenNamespace
	default:
		if sym.Qualifier == symbols.QualInput || sym.Qualifier == symbols.QualOutput || sym.Qualifier == symbols.QualInOut {
			return TokenParameter
		}
		return TokenVariable
	}
}

// isWriteTarget reports whether tok is the LHS identifier of an
// AssignStmt containing n (n is the token's direct wrapper node, e.g.
// an ExprName), mirroring internal/analyze's own simpleNameOf pattern.
func isWriteTarget(n *syntax.Node, tok syntax.TokenAt) bool {
	if n.Kind() != syntax.NodeExprName || n.Parent == nil {
		return false
	}
	parent := n.Parent
	if parent.Kind() != syntax.NodeAssignStmt {
		return false
	}
	children := parent.Children()
	return len(children) > 0 && children[0] == n
}

// InlayHint surfaces a parameter name or initializer value inline in
// the editor (spec.md §4.7).
type InlayHint struct {
	Offset int
	Label  string
}

// InlayHints returns parameter-name hints for every positional
// argument in file, resolved against the callee's declared VAR_INPUT
// order (the "inlay hints" half of spec.md §4.7; "inline values" —
// constant initializers and live debug values — is InlineValues).
func InlayHints(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID) ([]InlayHint, error) {
	root, err := ws.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}
	var out []InlayHint
	var walk func(n *syntax.Node)
	walk = func(n *syntax.Node) {
		if n.Kind() == syntax.NodeExprCall {
			out = append(out, positionalParamHints(n, tbl, ix)...)
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

func positionalParamHints(call *syntax.Node, tbl *symbols.Table, ix *Index) []InlayHint {
	var callName string
	for _, t := range call.Tokens() {
		if t.Token.Kind == lexer.Ident {
			callName = t.Token.Text
			break
		}
	}
	if callName == "" {
		return nil
	}
	var argList *syntax.Node
	for _, c := range call.Children() {
		if c.Kind() == syntax.NodeArgList {
			argList = c
		}
	}
	if argList == nil {
		return nil
	}
	inputs := calleeInputParams(callName, tbl, ix)
	if len(inputs) == 0 {
		return nil
	}
	var out []InlayHint
	idx := 0
	for _, arg := range argList.Children() {
		if arg.Kind() != syntax.NodeArgPositional {
			continue
		}
		if idx < len(inputs) {
			out = append(out, InlayHint{Offset: arg.Offset, Label: inputs[idx].Name + " :="})
		}
		idx++
	}
	return out
}

// calleeInputParams returns callName's VAR_INPUT parameters ordered by
// declaration offset (symbols.Table records no explicit ordinal, so
// source order stands in for parameter position).
func calleeInputParams(callName string, tbl *symbols.Table, ix *Index) []*symbols.Symbol {
	var scope *symbols.Scope
	for _, s := range tbl.Global.Children {
		if s.Kind == symbols.ScopePOU && s.Name == callName {
			scope = s
		}
	}
	if scope == nil {
		for _, decl := range ix.globalDecls(callName) {
			if decl.Scope == nil {
				continue
			}
			if t, ok := ix.Table(decl.ID.File); ok {
				for _, s := range t.Global.Children {
					if s.Kind == symbols.ScopePOU && s.Name == callName {
						scope = s
					}
				}
			}
		}
	}
	if scope == nil {
		return nil
	}
	var out []*symbols.Symbol
	for _, sym := range scope.Symbols {
		if sym.Kind == symbols.KindVariable && sym.Qualifier == symbols.QualInput {
			out = append(out, sym)
		}
	}
	sortSymbolsByDecl(out)
	return out
}

func sortSymbolsByDecl(syms []*symbols.Symbol) {
	for i := 1; i < len(syms); i++ {
		for j := i; j > 0 && syms[j].DeclOffset < syms[j-1].DeclOffset; j-- {
			syms[j], syms[j-1] = syms[j-1], syms[j]
		}
	}
}

// InlineValue surfaces a constant's initializer or a live runtime
// value next to its declaration/use.
type InlineValue struct {
	Offset int
	Text   string
}

// InlineValues returns initializer text for every CONSTANT declaration
// in file. When debug is non-nil, locals/globals/retain currently in
// its top stack frame are reported with their live value instead,
// following spec.md §4.7 "when a debug endpoint is configured, runtime
// values for locals/globals/retain".
func InlineValues(ctx context.Context, ws Workspace, file symbols.FileID, debug func(name string) (string, bool)) ([]InlineValue, error) {
	root, err := ws.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}
	var out []InlineValue
	var walk func(s *symbols.Scope)
	walk = func(s *symbols.Scope) {
		for _, sym := range s.Symbols {
			if sym.Kind != symbols.KindVariable {
				continue
			}
			if debug != nil {
				if v, ok := debug(sym.Name); ok {
					out = append(out, InlineValue{Offset: sym.DeclOffset, Text: v})
					continue
				}
			}
			if sym.Modifiers.Constant {
				if init, ok := initializerText(root, sym.DeclOffset); ok {
					out = append(out, InlineValue{Offset: sym.DeclOffset, Text: init})
				}
			}
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(tbl.Global)
	return out, nil
}

// initializerText finds the VarDecl node containing declOffset and
// returns its `:=` initializer expression's source text, if any.
func initializerText(root *syntax.Node, declOffset int) (string, bool) {
	decl := syntax.FindToken(root, declOffset)
	for n := decl; n != nil; n = n.Parent {
		if n.Kind() != syntax.NodeVarDecl {
			continue
		}
		assignAt := -1
		for _, t := range n.Tokens() {
			if t.Token.Kind == lexer.Assign {
				assignAt = t.Offset
			}
		}
		if assignAt < 0 {
			return "", false
		}
		for _, c := range n.Children() {
			if c.Offset > assignAt {
				return c.Text(), true
			}
		}
		return "", false
	}
	return "", false
}
