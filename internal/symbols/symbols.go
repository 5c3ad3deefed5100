// Package symbols walks the CST to populate per-file scopes and
// symbol declarations (spec.md §4.3).
package symbols

import (
	"strings"

	"stlang/internal/lexer"
	"stlang/internal/syntax"
)

// FileID stably identifies a source file (spec.md §3).
type FileID string

// Kind enumerates declaration kinds.
type Kind int

const (
	KindVariable Kind = iota
	KindConstant
	KindFunction
	KindFunctionBlock
	KindProgram
	KindClass
	KindInterface
	KindMethod
	KindProperty
	KindTypeAlias
	KindEnumValue
	KindNamespace
)

// VarQualifier mirrors VAR_INPUT/VAR_OUTPUT/... (spec.md §3).
type VarQualifier int

const (
	QualNone VarQualifier = iota
	QualInput
	QualOutput
	QualInOut
	QualGlobal
	QualExternal
	QualTemp
	QualConfig
)

// Access mirrors PUBLIC/PROTECTED/PRIVATE/INTERNAL (spec.md §3).
type Access int

const (
	AccessPublic Access = iota
	AccessProtected
	AccessPrivate
	AccessInternal
)

// Modifiers bundles CONSTANT/RETAIN/NON_RETAIN/PERSISTENT.
type Modifiers struct {
	Constant   bool
	Retain     bool
	NonRetain  bool
	Persistent bool
	RisingEdge bool
	FallingEdge bool
}

// ID is a symbol's stable identity: (FileId, declaration start offset),
// per spec.md §3. Renaming a symbol preserves this identity within a
// session because the declaration's own token offset doesn't move
// until the edit containing it is applied.
type ID struct {
	File   FileID
	Offset int
}

// Symbol is one declaration (spec.md §3).
type Symbol struct {
	ID         ID
	Name       string
	Kind       Kind
	Qualifier  VarQualifier
	Access     Access
	Modifiers  Modifiers
	TypeName   string // textual type reference; resolved by types.Resolve
	DeclOffset int
	DeclEnd    int
	Scope      *Scope
}

// ScopeKind distinguishes scope tree node roles (spec.md §3).
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeNamespace
	ScopePOU
	ScopeMethod
	ScopeBlock
)

// Scope is one node of the scope tree rooted at the workspace.
type Scope struct {
	Kind     ScopeKind
	Name     string
	Parent   *Scope
	Children []*Scope
	Symbols  map[string]*Symbol
	Using    []string // namespace names imported via USING at this scope
}

func newScope(kind ScopeKind, name string, parent *Scope) *Scope {
	s := &Scope{Kind: kind, Name: name, Parent: parent, Symbols: make(map[string]*Symbol)}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// Diagnostic reports a symbols-pass error (spec.md §4.3, §7).
type Diagnostic struct {
	Offset  int
	Length  int
	Code    string
	Message string
}

const (
	CodeDuplicateDeclaration     = "duplicate-declaration"
	CodeInvalidQualifierCombo    = "invalid-qualifier-combination"
	CodeEdgeQualifierMisplaced   = "edge-qualifier-misplaced"
)

// Table is the result of running the symbols pass over one file.
type Table struct {
	File   FileID
	Global *Scope
	Diags  []Diagnostic

	byOffset map[int]*Symbol
}

// Lookup finds a declaration by its identity offset.
func (t *Table) Lookup(offset int) (*Symbol, bool) {
	s, ok := t.byOffset[offset]
	return s, ok
}

// Build walks root (the CST file node) and produces a Table.
func Build(file FileID, root *syntax.Node) *Table {
	b := &builder{file: file, byOffset: make(map[int]*Symbol)}
	b.global = newScope(ScopeGlobal, "", nil)
	for _, child := range root.Children() {
		b.visitTopLevel(child, b.global)
	}
	return &Table{File: file, Global: b.global, Diags: b.diags, byOffset: b.byOffset}
}

type builder struct {
	file     FileID
	global   *Scope
	diags    []Diagnostic
	byOffset map[int]*Symbol
}

func (b *builder) errorf(offset, length int, code, msg string) {
	b.diags = append(b.diags, Diagnostic{Offset: offset, Length: length, Code: code, Message: msg})
}

func (b *builder) declare(scope *Scope, name string, kind Kind, offset, end int, qual VarQualifier, access Access, mods Modifiers, typeName string) *Symbol {
	sym := &Symbol{
		ID:         ID{File: b.file, Offset: offset},
		Name:       name,
		Kind:       kind,
		Qualifier:  qual,
		Access:     access,
		Modifiers:  mods,
		TypeName:   typeName,
		DeclOffset: offset,
		DeclEnd:    end,
		Scope:      scope,
	}
	if _, exists := scope.Symbols[name]; exists {
		b.errorf(offset, end-offset, CodeDuplicateDeclaration, "duplicate declaration of '"+name+"' in this scope")
	} else {
		scope.Symbols[name] = sym
	}
	b.byOffset[offset] = sym
	return sym
}

func (b *builder) visitTopLevel(n *syntax.Node, scope *Scope) {
	switch n.Kind() {
	case syntax.NodeUsingDirective:
		scope.Using = append(scope.Using, qualifiedNameText(n))
	case syntax.NodeNamespace:
		name := qualifiedNameText(n)
		ns := newScope(ScopeNamespace, name, scope)
		for _, c := range n.Children() {
			b.visitTopLevel(c, ns)
		}
	case syntax.NodePOUProgram, syntax.NodePOUFunction, syntax.NodePOUFunctionBlock,
		syntax.NodePOUClass, syntax.NodePOUInterface:
		b.visitPOU(n, scope)
	case syntax.NodeTypeDecl:
		b.visitTypeDecl(n, scope)
	case syntax.NodeVarBlock:
		b.visitVarBlock(n, scope, QualGlobal)
	}
}

func qualifiedNameText(n *syntax.Node) string {
	var parts []string
	for _, tok := range n.Tokens() {
		if tok.Token.Kind == lexer.Ident {
			parts = append(parts, tok.Token.Text)
		}
	}
	return strings.Join(parts, ".")
}

func pouKind(nk syntax.NodeKind) Kind {
	switch nk {
	case syntax.NodePOUFunction:
		return KindFunction
	case syntax.NodePOUFunctionBlock:
		return KindFunctionBlock
	case syntax.NodePOUClass:
		return KindClass
	case syntax.NodePOUInterface:
		return KindInterface
	default:
		return KindProgram
	}
}

func (b *builder) visitPOU(n *syntax.Node, parent *Scope) {
	toks := n.Tokens()
	var nameTok syntax.TokenAt
	for _, t := range toks {
		if t.Token.Kind == lexer.Ident {
			nameTok = t
			break
		}
	}
	name := nameTok.Token.Text
	kind := pouKind(n.Kind())
	b.declare(parent, name, kind, nameTok.Offset, nameTok.Offset+len(name), QualNone, AccessPublic, Modifiers{}, "")

	pouScope := newScope(ScopePOU, name, parent)
	for _, c := range n.Children() {
		switch c.Kind() {
		case syntax.NodeVarBlock:
			b.visitVarBlock(c, pouScope, QualNone)
		case syntax.NodeMethod:
			b.visitMethod(c, pouScope)
		case syntax.NodeProperty:
			b.visitProperty(c, pouScope)
		}
	}
}

func varBlockQualifier(n *syntax.Node) VarQualifier {
	toks := n.Tokens()
	if len(toks) == 0 {
		return QualNone
	}
	switch toks[0].Token.Kind {
	case lexer.KwVarInput:
		return QualInput
	case lexer.KwVarOutput:
		return QualOutput
	case lexer.KwVarInOut:
		return QualInOut
	case lexer.KwVarGlobal:
		return QualGlobal
	case lexer.KwVarExternal:
		return QualExternal
	case lexer.KwVarTemp:
		return QualTemp
	case lexer.KwVarConfig:
		return QualConfig
	}
	return QualNone
}

func (b *builder) visitVarBlock(n *syntax.Node, scope *Scope, fallback VarQualifier) {
	qual := varBlockQualifier(n)
	if qual == QualNone {
		qual = fallback
	}
	isInput := qual == QualInput

	var mods Modifiers
	for _, c := range n.Children() {
		switch c.Kind() {
		case syntax.NodeQualifierList:
			mods = parseQualifiers(c)
			checkQualifierCombo(b, c, mods)
		case syntax.NodeVarDecl:
			b.visitVarDecl(c, scope, qual, isInput)
			for _, t := range c.Tokens() {
				if sym, ok := b.byOffset[t.Offset]; ok && t.Token.Kind == lexer.Ident {
					sym.Modifiers.Constant = mods.Constant
					sym.Modifiers.Retain = mods.Retain
					sym.Modifiers.NonRetain = mods.NonRetain
					sym.Modifiers.Persistent = mods.Persistent
				}
			}
		}
	}
}

func parseQualifiers(n *syntax.Node) Modifiers {
	var m Modifiers
	for _, t := range n.Tokens() {
		switch t.Token.Kind {
		case lexer.KwConstant:
			m.Constant = true
		case lexer.KwRetain:
			m.Retain = true
		case lexer.KwNonRetain:
			m.NonRetain = true
		case lexer.KwPersistent:
			m.Persistent = true
		}
	}
	return m
}

func checkQualifierCombo(b *builder, n *syntax.Node, m Modifiers) {
	count := 0
	if m.Constant {
		count++
	}
	if m.Retain {
		count++
	}
	if m.NonRetain {
		count++
	}
	if m.Persistent {
		count++
	}
	if count > 1 {
		b.errorf(n.Offset, n.EndOffset()-n.Offset, CodeInvalidQualifierCombo,
			"CONSTANT, RETAIN, NON_RETAIN and PERSISTENT are mutually exclusive")
	}
}

func (b *builder) visitVarDecl(n *syntax.Node, scope *Scope, qual VarQualifier, isInput bool) {
	var names []syntax.TokenAt
	var typeName string
	var mods Modifiers
	for _, t := range n.Tokens() {
		switch t.Token.Kind {
		case lexer.Ident:
			names = append(names, t)
		case lexer.KwRising:
			mods.RisingEdge = true
			if !isInput {
				b.errorf(t.Offset, t.Token.Len(), CodeEdgeQualifierMisplaced, "R_EDGE is only valid inside VAR_INPUT")
			}
		case lexer.KwFalling:
			mods.FallingEdge = true
			if !isInput {
				b.errorf(t.Offset, t.Token.Len(), CodeEdgeQualifierMisplaced, "F_EDGE is only valid inside VAR_INPUT")
			}
		}
	}
	for _, c := range n.Children() {
		if isTypeRefKind(c.Kind()) {
			typeName = c.Text()
		}
	}
	for _, nameTok := range names {
		name := nameTok.Token.Text
		b.declare(scope, name, KindVariable, nameTok.Offset, nameTok.Offset+len(name), qual, AccessPublic, mods, typeName)
	}
}

func isTypeRefKind(k syntax.NodeKind) bool {
	switch k {
	case syntax.NodeNamedType, syntax.NodeArrayType, syntax.NodeRefToType,
		syntax.NodeStringType, syntax.NodeSubrangeType:
		return true
	}
	return false
}

func (b *builder) visitTypeDecl(n *syntax.Node, scope *Scope) {
	for _, c := range n.Children() {
		if c.Kind() != syntax.NodeFieldDecl {
			continue
		}
		toks := c.Tokens()
		if len(toks) == 0 {
			continue
		}
		nameTok := toks[0]
		name := nameTok.Token.Text
		b.declare(scope, name, KindTypeAlias, nameTok.Offset, nameTok.Offset+len(name), QualNone, AccessPublic, Modifiers{}, "")

		for _, gc := range c.Children() {
			if gc.Kind() == syntax.NodeEnumDecl {
				b.visitEnumValues(gc, scope)
			}
		}
	}
}

func (b *builder) visitEnumValues(n *syntax.Node, scope *Scope) {
	for _, c := range n.Children() {
		if c.Kind() != syntax.NodeEnumValue {
			continue
		}
		toks := c.Tokens()
		if len(toks) == 0 {
			continue
		}
		nameTok := toks[0]
		name := nameTok.Token.Text
		b.declare(scope, name, KindEnumValue, nameTok.Offset, nameTok.Offset+len(name), QualNone, AccessPublic, Modifiers{}, "")
	}
}

func methodAccessAndMods(n *syntax.Node) (Access, Modifiers, bool, bool) {
	access := AccessPublic
	var mods Modifiers
	abstract, override := false, false
	for _, t := range n.Tokens() {
		switch t.Token.Kind {
		case lexer.KwPublic:
			access = AccessPublic
		case lexer.KwProtected:
			access = AccessProtected
		case lexer.KwPrivate:
			access = AccessPrivate
		case lexer.KwInternal:
			access = AccessInternal
		case lexer.KwAbstract:
			abstract = true
		case lexer.KwOverride:
			override = true
		}
	}
	return access, mods, abstract, override
}

func (b *builder) visitMethod(n *syntax.Node, parent *Scope) {
	toks := n.Tokens()
	var nameTok syntax.TokenAt
	for _, t := range toks {
		if t.Token.Kind == lexer.Ident {
			nameTok = t
			break
		}
	}
	name := nameTok.Token.Text
	access, mods, _, _ := methodAccessAndMods(n)
	b.declare(parent, name, KindMethod, nameTok.Offset, nameTok.Offset+len(name), QualNone, access, mods, "")

	methodScope := newScope(ScopeMethod, name, parent)
	for _, c := range n.Children() {
		if c.Kind() == syntax.NodeVarBlock {
			b.visitVarBlock(c, methodScope, QualNone)
		}
	}
}

func (b *builder) visitProperty(n *syntax.Node, parent *Scope) {
	toks := n.Tokens()
	var nameTok syntax.TokenAt
	for _, t := range toks {
		if t.Token.Kind == lexer.Ident {
			nameTok = t
			break
		}
	}
	name := nameTok.Token.Text
	b.declare(parent, name, KindProperty, nameTok.Offset, nameTok.Offset+len(name), QualNone, AccessPublic, Modifiers{}, "")
}

// Resolve walks scope outward (innermost first, then each parent up to
// the global scope) looking for name. Namespace imports recorded in
// Scope.Using are not consulted.
func Resolve(scope *Scope, name string) (*Symbol, bool) {
	for s := scope; s != nil; s = s.Parent {
		if sym, ok := s.Symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}
