package syntax

import (
	"fmt"

	"stlang/internal/lexer"
)

// Diagnostic is a parse-time error (spec.md §4.2, §7): missing/unexpected
// token or unclosed block. Parsing always recovers and keeps going.
type Diagnostic struct {
	Offset  int
	Length  int
	Message string
	Code    string
}

// Parser is a hand-written recursive-descent parser with Pratt
// expression parsing over the ST grammar (spec.md §4.2). It never
// panics and always returns a tree spanning the full input: every
// invalid region becomes a NodeError wrapping the offending tokens.
type Parser struct {
	toks []lexer.Token
	pos  int
	diags []Diagnostic
}

// Parse tokenizes src and parses a whole file.
func Parse(src string) (*Node, []Diagnostic) {
	p := &Parser{toks: lexer.Tokenize(src)}
	g := p.parseFile()
	return NewRoot(g), p.diags
}

func (p *Parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *Parser) curKind() lexer.Kind { return p.toks[p.pos].Kind }

func (p *Parser) peek(n int) lexer.Token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(k lexer.Kind) bool { return p.curKind() == k }

func (p *Parser) atAny(ks ...lexer.Kind) bool {
	for _, k := range ks {
		if p.curKind() == k {
			return true
		}
	}
	return false
}

// expect consumes k if present; otherwise records a diagnostic and
// synthesizes a zero-width missing token so the tree stays well-formed
// (spec.md §4.2: "Missing ';' is inserted when the next token starts
// a new statement...").
func (p *Parser) expect(k lexer.Kind, what string) Element {
	if p.at(k) {
		return Tok(p.advance())
	}
	p.errorf("expected %s", what)
	return Element{Token: &TokenData{Kind: k, Text: ""}}
}

func (p *Parser) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	tok := p.cur()
	p.diags = append(p.diags, Diagnostic{Offset: tok.Offset, Length: tok.Len(), Message: msg, Code: "parse-error"})
}

// syncKinds are the statement/declaration/EOF boundaries parse error
// recovery synchronizes on (spec.md §4.2).
var syncKinds = map[lexer.Kind]bool{
	lexer.Semicolon: true, lexer.KwElsif: true, lexer.KwElse: true, lexer.KwUntil: true,
	lexer.KwEndIf: true, lexer.KwEndCase: true, lexer.KwEndFor: true, lexer.KwEndWhile: true,
	lexer.KwEndRepeat: true, lexer.KwEndVar: true, lexer.KwEndType: true, lexer.KwEndStruct: true,
	lexer.KwEndProgram: true, lexer.KwEndFunction: true, lexer.KwEndFunctionBlock: true,
	lexer.KwEndClass: true, lexer.KwEndInterface: true, lexer.KwEndMethod: true,
	lexer.KwEndProperty: true, lexer.KwEndAction: true, lexer.KwEndNamespace: true,
	lexer.KwVar: true, lexer.KwVarInput: true, lexer.KwVarOutput: true, lexer.KwVarInOut: true,
	lexer.KwVarGlobal: true, lexer.KwVarExternal: true, lexer.KwVarTemp: true, lexer.KwVarConfig: true,
	lexer.KwType: true, lexer.KwFunction: true, lexer.KwFunctionBlock: true, lexer.KwProgram: true,
	lexer.EOF: true,
}

// recoverUntilSync consumes tokens (wrapping them in an Error node)
// until a synchronization point, per spec.md §4.2.
func (p *Parser) recoverUntilSync() []Element {
	var bad []Element
	for !syncKinds[p.curKind()] {
		bad = append(bad, Tok(p.advance()))
	}
	return bad
}

func (p *Parser) wrapError(bad []Element) Element {
	if len(bad) == 0 {
		return Element{}
	}
	return N(NewGreen(NodeError, bad))
}

// ---------------------------------------------------------------------------
// File / POU structure
// ---------------------------------------------------------------------------

func (p *Parser) parseFile() *Green {
	var children []Element
	for !p.at(lexer.EOF) {
		switch p.curKind() {
		case lexer.KwUsing:
			children = append(children, N(p.parseUsing()))
		case lexer.KwNamespace:
			children = append(children, N(p.parseNamespace()))
		case lexer.KwProgram:
			children = append(children, N(p.parsePOU(lexer.KwProgram, lexer.KwEndProgram, NodePOUProgram)))
		case lexer.KwFunctionBlock:
			children = append(children, N(p.parsePOU(lexer.KwFunctionBlock, lexer.KwEndFunctionBlock, NodePOUFunctionBlock)))
		case lexer.KwFunction:
			children = append(children, N(p.parsePOU(lexer.KwFunction, lexer.KwEndFunction, NodePOUFunction)))
		case lexer.KwClass:
			children = append(children, N(p.parseClass()))
		case lexer.KwInterface:
			children = append(children, N(p.parseInterface()))
		case lexer.KwType:
			children = append(children, N(p.parseTypeDecl()))
		case lexer.KwVarGlobal:
			children = append(children, N(p.parseVarBlock()))
		default:
			bad := p.recoverUntilSync()
			if len(bad) == 0 {
				// curKind is a sync point we don't otherwise handle at
				// file scope (e.g. stray END_VAR); consume it as error
				// so we always make progress.
				bad = []Element{Tok(p.advance())}
			}
			children = append(children, p.wrapError(bad))
		}
	}
	children = append(children, Tok(p.cur())) // trailing EOF token carries trailing trivia
	return NewGreen(NodeFile, children)
}

func (p *Parser) parseUsing() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // USING
	children = append(children, p.parseQualifiedName()...)
	children = append(children, p.expect(lexer.Semicolon, "';'"))
	return NewGreen(NodeUsingDirective, children)
}

func (p *Parser) parseQualifiedName() []Element {
	var out []Element
	if p.at(lexer.Ident) {
		out = append(out, Tok(p.advance()))
	} else {
		p.errorf("expected identifier")
		return out
	}
	for p.at(lexer.Dot) && p.peek(1).Kind == lexer.Ident {
		out = append(out, Tok(p.advance()))
		out = append(out, Tok(p.advance()))
	}
	return out
}

func (p *Parser) parseNamespace() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // NAMESPACE
	children = append(children, p.parseQualifiedName()...)
	for !p.atAny(lexer.KwEndNamespace, lexer.EOF) {
		switch p.curKind() {
		case lexer.KwUsing:
			children = append(children, N(p.parseUsing()))
		case lexer.KwProgram:
			children = append(children, N(p.parsePOU(lexer.KwProgram, lexer.KwEndProgram, NodePOUProgram)))
		case lexer.KwFunctionBlock:
			children = append(children, N(p.parsePOU(lexer.KwFunctionBlock, lexer.KwEndFunctionBlock, NodePOUFunctionBlock)))
		case lexer.KwFunction:
			children = append(children, N(p.parsePOU(lexer.KwFunction, lexer.KwEndFunction, NodePOUFunction)))
		case lexer.KwType:
			children = append(children, N(p.parseTypeDecl()))
		default:
			bad := p.recoverUntilSync()
			if len(bad) == 0 {
				bad = []Element{Tok(p.advance())}
			}
			children = append(children, p.wrapError(bad))
		}
	}
	children = append(children, p.expect(lexer.KwEndNamespace, "END_NAMESPACE"))
	return NewGreen(NodeNamespace, children)
}

// parsePOU parses FUNCTION/FUNCTION_BLOCK/PROGRAM headers: keyword,
// name, optional return type (FUNCTION only), VAR blocks, statements,
// end keyword.
func (p *Parser) parsePOU(open, close lexer.Kind, kind NodeKind) *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // open keyword

	if p.at(lexer.Ident) {
		children = append(children, Tok(p.advance()))
	} else {
		p.errorf("expected POU name")
	}

	if open == lexer.KwFunction && p.at(lexer.Colon) {
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseTypeRef()))
	}

	children = p.parseVarBlocksAndBody(children, close)
	children = append(children, p.expect(close, "END keyword"))
	return NewGreen(kind, children)
}

func (p *Parser) parseVarBlocksAndBody(children []Element, closeKinds ...lexer.Kind) []Element {
	for isVarBlockStart(p.curKind()) {
		children = append(children, N(p.parseVarBlock()))
	}
	children = append(children, N(p.parseStmtList(closeKinds...)))
	return children
}

func isVarBlockStart(k lexer.Kind) bool {
	switch k {
	case lexer.KwVar, lexer.KwVarInput, lexer.KwVarOutput, lexer.KwVarInOut,
		lexer.KwVarGlobal, lexer.KwVarExternal, lexer.KwVarTemp, lexer.KwVarConfig:
		return true
	}
	return false
}

func (p *Parser) parseClass() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // CLASS
	if p.at(lexer.KwAbstract) {
		children = append(children, Tok(p.advance()))
	}
	if p.at(lexer.Ident) {
		children = append(children, Tok(p.advance()))
	}
	if p.at(lexer.KwExtends) {
		children = append(children, Tok(p.advance()))
		children = append(children, p.parseQualifiedName()...)
	}
	if p.at(lexer.KwImplements) {
		children = append(children, Tok(p.advance()))
		children = append(children, p.parseQualifiedName()...)
		for p.at(lexer.Comma) {
			children = append(children, Tok(p.advance()))
			children = append(children, p.parseQualifiedName()...)
		}
	}
	for isVarBlockStart(p.curKind()) {
		children = append(children, N(p.parseVarBlock()))
	}
	for p.at(lexer.KwMethod) {
		children = append(children, N(p.parseMethod()))
	}
	for p.at(lexer.KwProperty) {
		children = append(children, N(p.parseProperty()))
	}
	children = append(children, p.expect(lexer.KwEndClass, "END_CLASS"))
	return NewGreen(NodePOUClass, children)
}

func (p *Parser) parseInterface() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // INTERFACE
	if p.at(lexer.Ident) {
		children = append(children, Tok(p.advance()))
	}
	if p.at(lexer.KwExtends) {
		children = append(children, Tok(p.advance()))
		children = append(children, p.parseQualifiedName()...)
	}
	for p.at(lexer.KwMethod) {
		children = append(children, N(p.parseMethodSignature()))
	}
	children = append(children, p.expect(lexer.KwEndInterface, "END_INTERFACE"))
	return NewGreen(NodePOUInterface, children)
}

func (p *Parser) parseMethodSignature() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // METHOD
	children = append(children, p.parseMethodQualifiers()...)
	if p.at(lexer.Ident) {
		children = append(children, Tok(p.advance()))
	}
	if p.at(lexer.Colon) {
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseTypeRef()))
	}
	for isVarBlockStart(p.curKind()) {
		children = append(children, N(p.parseVarBlock()))
	}
	children = append(children, p.expect(lexer.KwEndMethod, "END_METHOD"))
	return NewGreen(NodeMethod, children)
}

func (p *Parser) parseMethodQualifiers() []Element {
	var out []Element
	for p.atAny(lexer.KwPublic, lexer.KwProtected, lexer.KwPrivate, lexer.KwInternal,
		lexer.KwAbstract, lexer.KwFinal, lexer.KwOverride) {
		out = append(out, Tok(p.advance()))
	}
	return out
}

func (p *Parser) parseMethod() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // METHOD
	children = append(children, p.parseMethodQualifiers()...)
	if p.at(lexer.Ident) {
		children = append(children, Tok(p.advance()))
	}
	if p.at(lexer.Colon) {
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseTypeRef()))
	}
	children = p.parseVarBlocksAndBody(children, lexer.KwEndMethod)
	children = append(children, p.expect(lexer.KwEndMethod, "END_METHOD"))
	return NewGreen(NodeMethod, children)
}

func (p *Parser) parseProperty() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // PROPERTY
	if p.at(lexer.Ident) {
		children = append(children, Tok(p.advance()))
	}
	if p.at(lexer.Colon) {
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseTypeRef()))
	}
	for p.atAny(lexer.KwGet, lexer.KwSet) {
		children = append(children, N(p.parsePropertyAccessor()))
	}
	children = append(children, p.expect(lexer.KwEndProperty, "END_PROPERTY"))
	return NewGreen(NodeProperty, children)
}

// parsePropertyAccessor parses a GET/SET body. Accessors close
// implicitly at the next GET/SET or at END_PROPERTY rather than their
// own END_GET/END_SET keyword (this vendor profile wraps both
// accessors in a single END_PROPERTY, per spec.md §4.3's PROPERTY
// description).
func (p *Parser) parsePropertyAccessor() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // GET/SET
	children = p.parseVarBlocksAndBody(children, lexer.KwGet, lexer.KwSet, lexer.KwEndProperty)
	return NewGreen(NodePropertyAccessor, children)
}

// ---------------------------------------------------------------------------
// VAR blocks
// ---------------------------------------------------------------------------

func (p *Parser) parseVarBlock() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // VAR*
	if quals := p.parseQualifierList(); quals != nil {
		children = append(children, N(quals))
	}
	for p.at(lexer.Ident) {
		children = append(children, N(p.parseVarDecl()))
	}
	children = append(children, p.expect(lexer.KwEndVar, "END_VAR"))
	return NewGreen(NodeVarBlock, children)
}

func (p *Parser) parseQualifierList() *Green {
	var quals []Element
	for p.atAny(lexer.KwConstant, lexer.KwRetain, lexer.KwNonRetain, lexer.KwPersistent,
		lexer.KwPublic, lexer.KwProtected, lexer.KwPrivate, lexer.KwInternal) {
		quals = append(quals, Tok(p.advance()))
	}
	if len(quals) == 0 {
		return nil
	}
	return NewGreen(NodeQualifierList, quals)
}

// parseVarDecl parses `name[, name2] : type [:= init];` with optional
// R_EDGE/F_EDGE qualifiers (only meaningful inside VAR_INPUT blocks,
// checked by the symbols pass per spec.md §4.3).
func (p *Parser) parseVarDecl() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // first name
	for p.at(lexer.Comma) {
		children = append(children, Tok(p.advance()))
		children = append(children, p.expect(lexer.Ident, "identifier"))
	}
	if p.atAny(lexer.KwRising, lexer.KwFalling) {
		children = append(children, Tok(p.advance()))
	}
	children = append(children, p.expect(lexer.Colon, "':'"))
	children = append(children, N(p.parseTypeRef()))
	if p.at(lexer.Assign) {
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseExpr(0)))
	}
	children = append(children, p.expect(lexer.Semicolon, "';'"))
	return NewGreen(NodeVarDecl, children)
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

func (p *Parser) parseTypeDecl() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // TYPE
	for p.at(lexer.Ident) {
		children = append(children, N(p.parseOneTypeDecl()))
	}
	children = append(children, p.expect(lexer.KwEndType, "END_TYPE"))
	return NewGreen(NodeTypeDecl, children)
}

func (p *Parser) parseOneTypeDecl() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // name
	children = append(children, p.expect(lexer.Colon, "':'"))

	if p.at(lexer.KwStruct) {
		children = append(children, N(p.parseStructBody()))
	} else if p.at(lexer.LParen) {
		children = append(children, N(p.parseEnumBody()))
	} else {
		children = append(children, N(p.parseTypeRef()))
		if p.at(lexer.Assign) {
			children = append(children, Tok(p.advance()))
			children = append(children, N(p.parseExpr(0)))
		}
	}
	children = append(children, p.expect(lexer.Semicolon, "';'"))
	return NewGreen(NodeFieldDecl, children) // reuse shape; Kind distinguished by first child
}

func (p *Parser) parseStructBody() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // STRUCT
	for p.at(lexer.Ident) {
		children = append(children, N(p.parseVarDecl()))
	}
	children = append(children, p.expect(lexer.KwEndStruct, "END_STRUCT"))
	return NewGreen(NodeStructDecl, children)
}

func (p *Parser) parseEnumBody() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // (
	for p.at(lexer.Ident) {
		var v []Element
		v = append(v, Tok(p.advance()))
		if p.at(lexer.Assign) {
			v = append(v, Tok(p.advance()))
			v = append(v, N(p.parseExpr(0)))
		}
		children = append(children, N(NewGreen(NodeEnumValue, v)))
		if p.at(lexer.Comma) {
			children = append(children, Tok(p.advance()))
		} else {
			break
		}
	}
	children = append(children, p.expect(lexer.RParen, "')'"))
	return NewGreen(NodeEnumDecl, children)
}

// parseTypeRef parses a type reference: a named type, ARRAY[..] OF T,
// REF_TO T, STRING[n]/WSTRING[n], or a subrange T(lo..hi).
func (p *Parser) parseTypeRef() *Green {
	switch p.curKind() {
	case lexer.KwRefTo:
		var children []Element
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseTypeRef()))
		return NewGreen(NodeRefToType, children)
	case lexer.KwArray:
		var children []Element
		children = append(children, Tok(p.advance()))
		children = append(children, p.expect(lexer.LBracket, "'['"))
		children = append(children, N(p.parseArrayDim()))
		for p.at(lexer.Comma) {
			children = append(children, Tok(p.advance()))
			children = append(children, N(p.parseArrayDim()))
		}
		children = append(children, p.expect(lexer.RBracket, "']'"))
		children = append(children, p.expect(lexer.KwOf, "OF"))
		children = append(children, N(p.parseTypeRef()))
		return NewGreen(NodeArrayType, children)
	default:
		var children []Element
		children = append(children, p.expect(lexer.Ident, "type name"))
		if p.at(lexer.LBracket) {
			children = append(children, Tok(p.advance()))
			children = append(children, N(p.parseExpr(0)))
			children = append(children, p.expect(lexer.RBracket, "']'"))
			return NewGreen(NodeStringType, children)
		}
		if p.at(lexer.LParen) {
			children = append(children, Tok(p.advance()))
			children = append(children, N(p.parseExpr(0)))
			children = append(children, p.expect(lexer.DotDot, "'..'"))
			children = append(children, N(p.parseExpr(0)))
			children = append(children, p.expect(lexer.RParen, "')'"))
			return NewGreen(NodeSubrangeType, children)
		}
		return NewGreen(NodeNamedType, children)
	}
}

func (p *Parser) parseArrayDim() *Green {
	if p.at(lexer.Star) {
		return NewGreen(NodeArrayDimension, []Element{Tok(p.advance())})
	}
	var children []Element
	children = append(children, N(p.parseExpr(0)))
	children = append(children, p.expect(lexer.DotDot, "'..'"))
	children = append(children, N(p.parseExpr(0)))
	return NewGreen(NodeArrayDimension, children)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseStmtList parses statements until one of closeKinds or EOF.
func (p *Parser) parseStmtList(closeKinds ...lexer.Kind) *Green {
	var children []Element
	for !p.atAny(append(closeKinds, lexer.EOF)...) {
		children = append(children, N(p.parseStmt(closeKinds...)))
	}
	return NewGreen(NodeStmtList, children)
}

func (p *Parser) parseStmt(closeKinds ...lexer.Kind) *Green {
	switch p.curKind() {
	case lexer.Semicolon:
		return NewGreen(NodeEmptyStmt, []Element{Tok(p.advance())})
	case lexer.KwIf:
		return p.parseIfStmt()
	case lexer.KwCase:
		return p.parseCaseStmt()
	case lexer.KwFor:
		return p.parseForStmt()
	case lexer.KwWhile:
		return p.parseWhileStmt()
	case lexer.KwRepeat:
		return p.parseRepeatStmt()
	case lexer.KwExit:
		c := []Element{Tok(p.advance()), p.expect(lexer.Semicolon, "';'")}
		return NewGreen(NodeExitStmt, c)
	case lexer.KwContinue:
		c := []Element{Tok(p.advance()), p.expect(lexer.Semicolon, "';'")}
		return NewGreen(NodeContinueStmt, c)
	case lexer.KwReturn:
		var c []Element
		c = append(c, Tok(p.advance()))
		if !p.at(lexer.Semicolon) {
			c = append(c, N(p.parseExpr(0)))
		}
		c = append(c, p.expect(lexer.Semicolon, "';'"))
		return NewGreen(NodeReturnStmt, c)
	case lexer.Ident, lexer.KwThis, lexer.KwSuper:
		return p.parseExprStmt()
	default:
		bad := p.recoverUntilSync()
		if len(bad) == 0 {
			bad = []Element{Tok(p.advance())}
		}
		return NewGreen(NodeError, bad)
	}
}

// parseExprStmt disambiguates an assignment (`lhs := expr;`) from a
// call statement (`Ident(args);`) by parsing a full primary/postfix
// expression first and then checking the next token.
func (p *Parser) parseExprStmt() *Green {
	lhs := p.parsePostfix(p.parsePrimary())
	switch {
	case p.at(lexer.Assign):
		var children []Element
		children = append(children, N(lhs))
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseExpr(0)))
		children = append(children, p.expect(lexer.Semicolon, "';'"))
		return NewGreen(NodeAssignStmt, children)
	default:
		var children []Element
		children = append(children, N(lhs))
		children = append(children, p.expect(lexer.Semicolon, "';'"))
		return NewGreen(NodeCallStmt, children)
	}
}

func (p *Parser) parseIfStmt() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // IF
	children = append(children, N(p.parseExpr(0)))
	children = append(children, p.expect(lexer.KwThen, "THEN"))
	children = append(children, N(p.parseStmtList(lexer.KwElsif, lexer.KwElse, lexer.KwEndIf)))
	for p.at(lexer.KwElsif) {
		children = append(children, N(p.parseElsif()))
	}
	if p.at(lexer.KwElse) {
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseStmtList(lexer.KwEndIf)))
	}
	children = append(children, p.expect(lexer.KwEndIf, "END_IF"))
	return NewGreen(NodeIfStmt, children)
}

func (p *Parser) parseElsif() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // ELSIF
	children = append(children, N(p.parseExpr(0)))
	children = append(children, p.expect(lexer.KwThen, "THEN"))
	children = append(children, N(p.parseStmtList(lexer.KwElsif, lexer.KwElse, lexer.KwEndIf)))
	return NewGreen(NodeElsifClause, children)
}

func (p *Parser) parseCaseStmt() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // CASE
	children = append(children, N(p.parseExpr(0)))
	children = append(children, p.expect(lexer.KwOf, "OF"))
	for !p.atAny(lexer.KwElse, lexer.KwEndCase, lexer.EOF) {
		children = append(children, N(p.parseCaseBranch()))
	}
	if p.at(lexer.KwElse) {
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseStmtList(lexer.KwEndCase)))
	}
	children = append(children, p.expect(lexer.KwEndCase, "END_CASE"))
	return NewGreen(NodeCaseStmt, children)
}

func (p *Parser) parseCaseBranch() *Green {
	var children []Element
	children = append(children, N(p.parseCaseLabelList()))
	children = append(children, p.expect(lexer.Colon, "':'"))
	children = append(children, N(p.parseStmtList(lexer.KwElse, lexer.KwEndCase)))
	return NewGreen(NodeCaseBranch, children)
}

func (p *Parser) parseCaseLabelList() *Green {
	var children []Element
	children = append(children, N(p.parseExpr(0)))
	for p.at(lexer.Comma) {
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseExpr(0)))
	}
	return NewGreen(NodeCaseLabelList, children)
}

func (p *Parser) parseForStmt() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // FOR
	children = append(children, p.expect(lexer.Ident, "loop variable"))
	children = append(children, p.expect(lexer.Assign, "':='"))
	children = append(children, N(p.parseExpr(0)))
	children = append(children, p.expect(lexer.KwTo, "TO"))
	children = append(children, N(p.parseExpr(0)))
	if p.at(lexer.KwBy) {
		children = append(children, Tok(p.advance()))
		children = append(children, N(p.parseExpr(0)))
	}
	children = append(children, p.expect(lexer.KwDo, "DO"))
	children = append(children, N(p.parseStmtList(lexer.KwEndFor)))
	children = append(children, p.expect(lexer.KwEndFor, "END_FOR"))
	return NewGreen(NodeForStmt, children)
}

func (p *Parser) parseWhileStmt() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // WHILE
	children = append(children, N(p.parseExpr(0)))
	children = append(children, p.expect(lexer.KwDo, "DO"))
	children = append(children, N(p.parseStmtList(lexer.KwEndWhile)))
	children = append(children, p.expect(lexer.KwEndWhile, "END_WHILE"))
	return NewGreen(NodeWhileStmt, children)
}

func (p *Parser) parseRepeatStmt() *Green {
	var children []Element
	children = append(children, Tok(p.advance())) // REPEAT
	children = append(children, N(p.parseStmtList(lexer.KwUntil)))
	children = append(children, p.expect(lexer.KwUntil, "UNTIL"))
	children = append(children, N(p.parseExpr(0)))
	children = append(children, p.expect(lexer.Semicolon, "';'"))
	children = append(children, p.expect(lexer.KwEndRepeat, "END_REPEAT"))
	return NewGreen(NodeRepeatStmt, children)
}

// ---------------------------------------------------------------------------
// Expressions (Pratt, precedence per spec.md §4.2)
// ---------------------------------------------------------------------------

// bindingPower returns (left, right) binding powers for a binary
// operator token kind, or (0,0) if it is not a binary operator.
// Precedence, lowest to highest: OR, XOR, AND/&, = <>, < <= > >=,
// + -, * / MOD, ** (right-assoc).
func bindingPower(k lexer.Kind) (int, int) {
	switch k {
	case lexer.KwOr:
		return 1, 2
	case lexer.KwXor:
		return 3, 4
	case lexer.KwAnd, lexer.Amp:
		return 5, 6
	case lexer.Eq, lexer.Ne:
		return 7, 8
	case lexer.Lt, lexer.Le, lexer.Gt, lexer.Ge:
		return 9, 10
	case lexer.Plus, lexer.Minus:
		return 11, 12
	case lexer.Star, lexer.Slash, lexer.KwMod:
		return 13, 14
	case lexer.Pow:
		return 16, 15 // right-associative: right bp < left bp
	}
	return 0, 0
}

func (p *Parser) parseExpr(minBP int) *Green {
	left := p.parseUnary()
	for {
		lbp, rbp := bindingPower(p.curKind())
		if lbp == 0 || lbp < minBP {
			return left
		}
		opTok := Tok(p.advance())
		right := p.parseExpr(rbp)
		left = NewGreen(NodeExprBinary, []Element{N(left), opTok, N(right)})
	}
}

func (p *Parser) parseUnary() *Green {
	switch p.curKind() {
	case lexer.KwNot, lexer.Minus, lexer.Plus:
		op := Tok(p.advance())
		operand := p.parseUnary()
		return NewGreen(NodeExprUnary, []Element{op, N(operand)})
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *Parser) parsePrimary() *Green {
	switch p.curKind() {
	case lexer.LParen:
		open := Tok(p.advance())
		inner := p.parseExpr(0)
		close := p.expect(lexer.RParen, "')'")
		return NewGreen(NodeExprParen, []Element{open, N(inner), close})
	case lexer.Hat:
		// REF dereference prefix form: ^expr
		op := Tok(p.advance())
		operand := p.parsePostfix(p.parsePrimary())
		return NewGreen(NodeExprDeref, []Element{op, N(operand)})
	case lexer.IntLiteral, lexer.RealLiteral, lexer.BoolLiteral, lexer.StringLiteral,
		lexer.WideStringLiteral, lexer.DurationLiteral, lexer.DateLiteral,
		lexer.TimeOfDayLiteral, lexer.DateTimeLiteral, lexer.DirectAddress, lexer.KwNull:
		return NewGreen(NodeExprLiteral, []Element{Tok(p.advance())})
	case lexer.TypedLiteralPrefix:
		prefix := Tok(p.advance())
		lit := p.parsePrimary()
		return NewGreen(NodeExprLiteral, []Element{prefix, N(lit)})
	case lexer.Ident, lexer.KwThis, lexer.KwSuper, lexer.KwEn, lexer.KwEno:
		return NewGreen(NodeExprName, []Element{Tok(p.advance())})
	default:
		bad := p.recoverUntilSync()
		if len(bad) == 0 {
			bad = []Element{Tok(p.advance())}
		}
		return NewGreen(NodeError, bad)
	}
}

// parsePostfix applies call/index/field suffixes left to right.
func (p *Parser) parsePostfix(base *Green) *Green {
	for {
		switch p.curKind() {
		case lexer.LParen:
			base = p.parseCallSuffix(base)
		case lexer.LBracket:
			open := Tok(p.advance())
			var idx []Element
			idx = append(idx, N(p.parseExpr(0)))
			for p.at(lexer.Comma) {
				idx = append(idx, Tok(p.advance()))
				idx = append(idx, N(p.parseExpr(0)))
			}
			close := p.expect(lexer.RBracket, "']'")
			children := append([]Element{N(base), open}, idx...)
			children = append(children, close)
			base = NewGreen(NodeExprIndex, children)
		case lexer.Dot:
			dot := Tok(p.advance())
			name := p.expect(lexer.Ident, "field name")
			base = NewGreen(NodeExprField, []Element{N(base), dot, name})
		case lexer.Hat:
			op := Tok(p.advance())
			base = NewGreen(NodeExprDeref, []Element{N(base), op})
		default:
			return base
		}
	}
}

func (p *Parser) parseCallSuffix(callee *Green) *Green {
	open := Tok(p.advance())
	var args []Element
	if !p.at(lexer.RParen) {
		args = append(args, N(p.parseArg()))
		for p.at(lexer.Comma) {
			args = append(args, Tok(p.advance()))
			args = append(args, N(p.parseArg()))
		}
	}
	close := p.expect(lexer.RParen, "')'")
	argList := NewGreen(NodeArgList, args)
	return NewGreen(NodeExprCall, []Element{N(callee), open, N(argList), close})
}

// parseArg parses a positional argument, a formal-in (`name := expr`),
// or a formal-out (`name => var`) call argument (spec.md §4.5).
func (p *Parser) parseArg() *Green {
	if p.at(lexer.Ident) && p.peek(1).Kind == lexer.Assign {
		name := Tok(p.advance())
		assign := Tok(p.advance())
		val := p.parseExpr(0)
		return NewGreen(NodeArgFormalIn, []Element{name, assign, N(val)})
	}
	if p.at(lexer.Ident) && p.peek(1).Kind == lexer.SendTo {
		name := Tok(p.advance())
		send := Tok(p.advance())
		val := p.parseExpr(0)
		return NewGreen(NodeArgFormalOut, []Element{name, send, N(val)})
	}
	val := p.parseExpr(0)
	return NewGreen(NodeArgPositional, []Element{N(val)})
}
