package lower

import (
	"fmt"
	"sort"
	"strings"

	"stlang/internal/lexer"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
	"stlang/internal/types"
)

// Diagnostic reports a lowering-time error (spec.md §4.8). Lowering
// never fails on a structurally valid CST, and Lower records no
// diagnostics: an unresolved name lowers to a NameRef of type
// types.Unknown without a report.
type Diagnostic struct {
	Offset  int
	Message string
}

type lowerer struct {
	src   string
	table *symbols.Table
	diags []Diagnostic
	scope *symbols.Scope // current POU scope, for name resolution
}

// Lower translates root into HIR, using table for symbol/type lookup
// and src to compute line/column anchors.
func Lower(file symbols.FileID, root *syntax.Node, table *symbols.Table, src string) (*Unit, []Diagnostic) {
	l := &lowerer{src: src, table: table}
	unit := &Unit{File: file}
	for _, c := range root.Children() {
		l.lowerTopLevel(c, unit)
	}
	return unit, l.diags
}

func (l *lowerer) lowerTopLevel(n *syntax.Node, unit *Unit) {
	switch n.Kind() {
	case syntax.NodeNamespace:
		for _, c := range n.Children() {
			l.lowerTopLevel(c, unit)
		}
	case syntax.NodePOUProgram, syntax.NodePOUFunction, syntax.NodePOUFunctionBlock:
		unit.POUs = append(unit.POUs, l.lowerPOU(n))
	}
}

func (l *lowerer) lowerPOU(n *syntax.Node) POU {
	name := firstIdentText(n)
	pou := POU{Name: name, Kind: pouKindOf(n.Kind())}
	for _, scope := range l.table.Global.Children {
		if scope.Name == name {
			l.scope = scope
		}
	}
	pou.Params = paramsOf(l.scope)
	for _, c := range n.Children() {
		switch c.Kind() {
		case syntax.NodeStmtList:
			pou.Body = l.lowerStmtList(c)
		case syntax.NodeNamedType, syntax.NodeArrayType, syntax.NodeSubrangeType,
			syntax.NodeRefToType, syntax.NodeStringType:
			if n.Kind() == syntax.NodePOUFunction && pou.Result == nil {
				pou.Result = typeFromName(strings.ToUpper(strings.TrimSpace(c.Text())))
			}
		}
	}
	return pou
}

// paramsOf extracts a POU's VAR_INPUT/VAR_OUTPUT/VAR_INOUT declarations
// in source order, the order positional call arguments bind against.
func paramsOf(scope *symbols.Scope) []Param {
	if scope == nil {
		return nil
	}
	var syms []*symbols.Symbol
	for _, sym := range scope.Symbols {
		switch sym.Qualifier {
		case symbols.QualInput, symbols.QualOutput, symbols.QualInOut:
			syms = append(syms, sym)
		}
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i].DeclOffset < syms[j].DeclOffset })
	params := make([]Param, len(syms))
	for i, sym := range syms {
		params[i] = Param{
			Name:      sym.Name,
			Symbol:    sym.ID,
			Type:      typeFromName(strings.ToUpper(strings.TrimSpace(sym.TypeName))),
			Qualifier: sym.Qualifier,
		}
	}
	return params
}

func pouKindOf(k syntax.NodeKind) symbols.Kind {
	switch k {
	case syntax.NodePOUFunction:
		return symbols.KindFunction
	case syntax.NodePOUFunctionBlock:
		return symbols.KindFunctionBlock
	default:
		return symbols.KindProgram
	}
}

func firstIdentText(n *syntax.Node) string {
	for _, t := range n.Tokens() {
		if t.Token.Kind == lexer.Ident {
			return t.Token.Text
		}
	}
	return ""
}

func (l *lowerer) anchorOf(n *syntax.Node) Anchor {
	tok, ok := n.FirstToken()
	offset := n.Offset
	if ok {
		offset = tok.Offset
	}
	pos := syntax.PositionOf(l.src, offset)
	return Anchor{Offset: offset, Line: pos.Line, Column: pos.Column}
}

func (l *lowerer) lowerStmtList(n *syntax.Node) []Stmt {
	var out []Stmt
	for _, c := range n.Children() {
		out = append(out, l.lowerStmt(c))
	}
	return out
}

func (l *lowerer) lowerStmt(n *syntax.Node) Stmt {
	at := l.anchorOf(n)
	switch n.Kind() {
	case syntax.NodeAssignStmt:
		children := n.Children()
		return &Assign{At: at, Target: l.lowerExpr(children[0]), Value: l.lowerExpr(children[len(children)-1])}
	case syntax.NodeCallStmt:
		children := n.Children()
		expr := l.lowerExpr(children[0])
		call, ok := expr.(*Call)
		if !ok {
			// A bare name or REF() used as a statement; synthesize a
			// zero-argument call so evaluation still has a uniform shape.
			call = &Call{Callee: expr}
		}
		return &ExprStmt{At: at, Call: call}
	case syntax.NodeIfStmt:
		return l.lowerIf(n, at)
	case syntax.NodeCaseStmt:
		return l.lowerCase(n, at)
	case syntax.NodeForStmt:
		return l.lowerFor(n, at)
	case syntax.NodeWhileStmt:
		children := n.Children()
		var cond Expr
		var body []Stmt
		for _, c := range children {
			if c.Kind() == syntax.NodeStmtList {
				body = l.lowerStmtList(c)
			} else {
				cond = l.lowerExpr(c)
			}
		}
		return &While{At: at, Cond: cond, Body: body}
	case syntax.NodeRepeatStmt:
		children := n.Children()
		var cond Expr
		var body []Stmt
		for _, c := range children {
			if c.Kind() == syntax.NodeStmtList {
				body = l.lowerStmtList(c)
			} else {
				cond = l.lowerExpr(c)
			}
		}
		return &Repeat{At: at, Body: body, Cond: cond}
	case syntax.NodeExitStmt:
		return &Exit{At: at}
	case syntax.NodeContinueStmt:
		return &Continue{At: at}
	case syntax.NodeReturnStmt:
		children := n.Children()
		var val Expr
		if len(children) > 0 {
			val = l.lowerExpr(children[0])
		}
		return &Return{At: at, Value: val}
	default:
		return &Empty{At: at}
	}
}

func (l *lowerer) lowerIf(n *syntax.Node, at Anchor) *If {
	toks := n.Tokens()
	children := n.Children()
	result := &If{At: at}
	// children in order: cond, then-stmtlist, [elsif-clauses...], [else-stmtlist]
	if len(children) > 0 {
		result.Cond = l.lowerExpr(children[0])
	}
	if len(children) > 1 {
		result.Then = l.lowerStmtList(children[1])
	}
	hasElse := false
	for _, t := range toks {
		if t.Token.Kind == lexer.KwElse {
			hasElse = true
		}
	}
	for i := 2; i < len(children); i++ {
		c := children[i]
		if c.Kind() == syntax.NodeElsifClause {
			result.Elifs = append(result.Elifs, l.lowerElsif(c))
		} else if c.Kind() == syntax.NodeStmtList && hasElse && i == len(children)-1 {
			result.Else = l.lowerStmtList(c)
		}
	}
	return result
}

func (l *lowerer) lowerElsif(n *syntax.Node) Elif {
	children := n.Children()
	e := Elif{}
	if len(children) > 0 {
		e.Cond = l.lowerExpr(children[0])
	}
	if len(children) > 1 {
		e.Body = l.lowerStmtList(children[1])
	}
	return e
}

func (l *lowerer) lowerCase(n *syntax.Node, at Anchor) *Case {
	children := n.Children()
	toks := n.Tokens()
	result := &Case{At: at}
	if len(children) > 0 {
		result.Selector = l.lowerExpr(children[0])
	}
	hasElse := false
	for _, t := range toks {
		if t.Token.Kind == lexer.KwElse {
			hasElse = true
		}
	}
	for i := 1; i < len(children); i++ {
		c := children[i]
		switch c.Kind() {
		case syntax.NodeCaseBranch:
			result.Branches = append(result.Branches, l.lowerCaseBranch(c))
		case syntax.NodeStmtList:
			if hasElse && i == len(children)-1 {
				result.Else = l.lowerStmtList(c)
			}
		}
	}
	return result
}

func (l *lowerer) lowerCaseBranch(n *syntax.Node) CaseBranch {
	children := n.Children()
	b := CaseBranch{}
	if len(children) > 0 && children[0].Kind() == syntax.NodeCaseLabelList {
		for _, lbl := range children[0].Children() {
			b.Labels = append(b.Labels, l.lowerExpr(lbl))
		}
	}
	if len(children) > 1 {
		b.Body = l.lowerStmtList(children[1])
	}
	return b
}

func (l *lowerer) lowerFor(n *syntax.Node, at Anchor) *For {
	toks := n.Tokens()
	children := n.Children()
	result := &For{At: at}
	for _, t := range toks {
		if t.Token.Kind == lexer.Ident {
			result.ControlName = t.Token.Text
			if l.scope != nil {
				if sym, ok := symbols.Resolve(l.scope, t.Token.Text); ok {
					result.ControlVar = sym.ID
				}
			}
			break
		}
	}
	// children order: start-expr, end-expr, [step-expr], stmtlist
	var exprs []Expr
	var body []Stmt
	for _, c := range children {
		if c.Kind() == syntax.NodeStmtList {
			body = l.lowerStmtList(c)
		} else {
			exprs = append(exprs, l.lowerExpr(c))
		}
	}
	if len(exprs) > 0 {
		result.Start = exprs[0]
	}
	if len(exprs) > 1 {
		result.End = exprs[1]
	}
	if len(exprs) > 2 {
		result.Step = exprs[2]
	}
	result.Body = body
	return result
}

func (l *lowerer) lowerExpr(n *syntax.Node) Expr {
	switch n.Kind() {
	case syntax.NodeExprName:
		toks := n.Tokens()
		if len(toks) != 1 {
			return &NameRef{Type: types.Unknown}
		}
		name := toks[0].Token.Text
		ref := &NameRef{Name: name, Type: types.Unknown}
		if l.scope != nil {
			if sym, ok := symbols.Resolve(l.scope, name); ok {
				ref.Symbol = sym.ID
				ref.Type = typeFromName(strings.ToUpper(strings.TrimSpace(sym.TypeName)))
			}
		}
		return ref
	case syntax.NodeExprLiteral:
		toks := n.Tokens()
		if len(toks) == 0 {
			return &Literal{Type: types.Unknown}
		}
		return &Literal{Raw: toks[0].Token.Text, Kind: toks[0].Token.Kind, Type: literalType(toks[0].Token.Kind)}
	case syntax.NodeExprParen:
		for _, c := range n.Children() {
			return l.lowerExpr(c)
		}
		return &Literal{Type: types.Unknown}
	case syntax.NodeExprUnary:
		return l.lowerUnary(n)
	case syntax.NodeExprBinary:
		return l.lowerBinary(n)
	case syntax.NodeExprCall:
		return l.lowerCall(n)
	case syntax.NodeExprIndex:
		children := n.Children()
		idx := &Index{Type: types.Unknown}
		if len(children) > 0 {
			idx.X = l.lowerExpr(children[0])
		}
		for _, c := range children[1:] {
			idx.Index = append(idx.Index, l.lowerExpr(c))
		}
		return idx
	case syntax.NodeExprField:
		children := n.Children()
		f := &Field{Type: types.Unknown, Name: firstIdentText(n)}
		if len(children) > 0 {
			f.X = l.lowerExpr(children[0])
		}
		return f
	case syntax.NodeExprDeref:
		children := n.Children()
		d := &Deref{Type: types.Unknown}
		if len(children) > 0 {
			d.X = l.lowerExpr(children[0])
		}
		return d
	case syntax.NodeExprRef:
		children := n.Children()
		r := &Ref{Type: &types.Type{Cat: types.CatRefTo}}
		if len(children) > 0 {
			r.X = l.lowerExpr(children[0])
			r.Type.Referent = r.X.ExprType()
		}
		return r
	default:
		return &Literal{Type: types.Unknown}
	}
}

func (l *lowerer) lowerUnary(n *syntax.Node) Expr {
	toks := n.Tokens()
	children := n.Children()
	u := &Unary{Type: types.Unknown}
	if len(toks) > 0 {
		switch toks[0].Token.Kind {
		case lexer.KwNot:
			u.Op = OpNot
		case lexer.Minus:
			u.Op = OpNeg
		case lexer.Plus:
			u.Op = OpPos
		}
	}
	if len(children) > 0 {
		u.X = l.lowerExpr(children[0])
		u.Type = u.X.ExprType()
	}
	return u
}

var binOps = map[lexer.Kind]BinaryOp{
	lexer.KwOr: OpOr, lexer.KwXor: OpXor, lexer.KwAnd: OpAnd, lexer.Amp: OpAnd,
	lexer.Eq: OpEq, lexer.Ne: OpNe, lexer.Lt: OpLt, lexer.Le: OpLe, lexer.Gt: OpGt, lexer.Ge: OpGe,
	lexer.Plus: OpAdd, lexer.Minus: OpSub, lexer.Star: OpMul, lexer.Slash: OpDiv,
	lexer.KwMod: OpMod, lexer.Pow: OpPow,
}

func (l *lowerer) lowerBinary(n *syntax.Node) Expr {
	toks := n.Tokens()
	children := n.Children()
	b := &Binary{Type: types.Unknown}
	if len(toks) > 0 {
		b.Op = binOps[toks[0].Token.Kind]
	}
	if len(children) > 0 {
		b.L = l.lowerExpr(children[0])
	}
	if len(children) > 1 {
		b.R = l.lowerExpr(children[1])
	}
	if b.L != nil && b.R != nil {
		if wide, ok := types.WiderNumeric(b.L.ExprType(), b.R.ExprType()); ok {
			b.Type = wide
		}
	}
	switch b.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpAnd, OpOr, OpXor:
		b.Type = types.Bool
	}
	return b
}

func (l *lowerer) lowerCall(n *syntax.Node) Expr {
	children := n.Children()
	c := &Call{Type: types.Unknown}
	if len(children) > 0 {
		c.Callee = l.lowerExpr(children[0])
	}
	for _, child := range children {
		if child.Kind() != syntax.NodeArgList {
			continue
		}
		for _, argNode := range child.Children() {
			c.Args = append(c.Args, l.lowerArg(argNode))
		}
	}
	// REF(x) has no dedicated grammar production — the parser treats it
	// as an ordinary call — so lowering recognizes the callee name here
	// and produces the address-of node eval expects (spec.md §4.9).
	if name, ok := c.Callee.(*NameRef); ok && strings.EqualFold(name.Name, "REF") && len(c.Args) == 1 {
		r := &Ref{X: c.Args[0].Value, Type: &types.Type{Cat: types.CatRefTo}}
		r.Type.Referent = r.X.ExprType()
		return r
	}
	return c
}

func (l *lowerer) lowerArg(n *syntax.Node) Arg {
	switch n.Kind() {
	case syntax.NodeArgFormalIn:
		toks := n.Tokens()
		children := n.Children()
		a := Arg{}
		if len(toks) > 0 {
			a.Name = toks[0].Token.Text
		}
		if len(children) > 0 {
			a.Value = l.lowerExpr(children[0])
		}
		return a
	case syntax.NodeArgFormalOut:
		toks := n.Tokens()
		children := n.Children()
		a := Arg{Out: true}
		if len(toks) > 0 {
			a.Name = toks[0].Token.Text
		}
		if len(children) > 0 {
			a.Value = l.lowerExpr(children[0])
		}
		return a
	default: // NodeArgPositional
		children := n.Children()
		a := Arg{}
		if len(children) > 0 {
			a.Value = l.lowerExpr(children[0])
		}
		return a
	}
}

// literalType infers an elementary type from the literal token's kind:
// bare numeric/bool/string literals get IEC's default literal types and
// duration literals get TIME. Date, time-of-day, date-and-time and
// other typed-prefix literals (INT#, REAL#, ...) lower to types.Unknown.
func literalType(k lexer.Kind) *types.Type {
	switch k {
	case lexer.IntLiteral:
		return types.DInt
	case lexer.RealLiteral:
		return types.LReal
	case lexer.BoolLiteral:
		return types.Bool
	case lexer.StringLiteral:
		return &types.Type{Cat: types.CatString}
	case lexer.WideStringLiteral:
		return &types.Type{Cat: types.CatString, StringWide: true}
	case lexer.DurationLiteral:
		return types.Time
	case lexer.TypedLiteralPrefix:
		return types.Unknown // the typed prefix is resolved by TypeSys from its text
	default:
		return types.Unknown
	}
}

// typeFromName maps a declared type's textual name to its elementary
// Type when it names a built-in, and standard FB names to a
// CatFunctionBlock type; user-declared struct/enum/FB/class names
// resolve to types.Unknown here since that needs the TypeSys type table, not
// just a name string. A trailing "(lo..hi)" suffix, captured verbatim
// from the declaration's Text(), is parsed into a CatSubrange type
// over the named base.
// TypeFromName resolves an IEC type-reference's textual spelling
// (an elementary name, a "BASE(lo..hi)" subrange, or a registered
// standard function-block name) to its *types.Type, for callers
// outside this package that need the same elementary/subrange/FB
// resolution lowering itself uses (internal/runtime's global variable
// declarations, which are never part of a POU body and so never flow
// through Lower).
func TypeFromName(name string) *types.Type {
	return typeFromName(strings.ToUpper(strings.TrimSpace(name)))
}

func typeFromName(name string) *types.Type {
	if i := strings.IndexByte(name, '('); i >= 0 && strings.HasSuffix(name, ")") {
		base := typeFromName(strings.ToUpper(strings.TrimSpace(name[:i])))
		lo, hi, ok := parseSubrangeBounds(name[i+1 : len(name)-1])
		if ok {
			return &types.Type{Cat: types.CatSubrange, Base: base, Lower: lo, Upper: hi, BoundsKnown: true}
		}
		return base
	}
	switch name {
	case "BOOL":
		return types.Bool
	case "SINT":
		return types.SInt
	case "INT":
		return types.Int
	case "DINT":
		return types.DInt
	case "LINT":
		return types.LInt
	case "USINT":
		return types.USInt
	case "UINT":
		return types.UInt
	case "UDINT":
		return types.UDInt
	case "ULINT":
		return types.ULInt
	case "REAL":
		return types.Real
	case "LREAL":
		return types.LReal
	case "TIME":
		return types.Time
	case "LTIME":
		return types.LTime
	case "BYTE":
		return types.Byte
	case "WORD":
		return types.Word
	case "DWORD":
		return types.DWord
	case "LWORD":
		return types.LWord
	default:
		if isStandardFBName(name) {
			return &types.Type{Cat: types.CatFunctionBlock, POUName: name}
		}
		return types.Unknown
	}
}

// standardFBNames are the IEC Table 43-46 FB type names this runtime
// ships (internal/runtime registers their step functions). A variable
// declared with one of these as its type lowers to CatFunctionBlock so
// eval's call dispatch can resolve instance calls like t(IN:=.., PT:=..).
var standardFBNames = map[string]bool{
	"TP": true, "TON": true, "TOF": true,
	"TP_TIME": true, "TON_TIME": true, "TOF_TIME": true,
	"CTU": true, "CTD": true, "CTUD": true,
	"CTU_INT": true, "CTU_DINT": true, "CTU_LINT": true, "CTU_UDINT": true, "CTU_ULINT": true,
	"CTD_INT": true, "CTD_DINT": true, "CTD_LINT": true, "CTD_UDINT": true, "CTD_ULINT": true,
	"CTUD_INT": true, "CTUD_DINT": true, "CTUD_LINT": true, "CTUD_UDINT": true, "CTUD_ULINT": true,
	"R_TRIG": true, "F_TRIG": true,
	"SR": true, "RS": true,
}

func isStandardFBName(name string) bool {
	return standardFBNames[name]
}

// parseSubrangeBounds parses "lo..hi" (as captured between a
// subrange's parens) into its two integer bounds.
func parseSubrangeBounds(s string) (lo, hi int64, ok bool) {
	parts := strings.SplitN(s, "..", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	var loVal, hiVal int64
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%d", &loVal); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &hiVal); err != nil {
		return 0, 0, false
	}
	return loVal, hiVal, true
}
