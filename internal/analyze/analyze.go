// Package analyze resolves names, types expressions, and checks
// assignment/call/control-flow rules over a parsed file (spec.md §4.5).
package analyze

import (
	"stlang/internal/lexer"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
	"stlang/internal/types"
)

// Severity classifies a Diagnostic (spec.md §4.5, §7).
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

const (
	CodeAssignToInput        = "assign-to-var-input"
	CodeAssignToConstant      = "assign-to-constant"
	CodeAssignToOutsideOwner  = "assign-output-outside-owner"
	CodeMixedArgOrder         = "positional-after-formal"
	CodePositionalIncludesENO = "positional-includes-en-eno"
	CodeUnknownArgName        = "unknown-formal-arg-name"
	CodeCaseNotExhaustive     = "case-not-exhaustive"
	CodeForControlWrite       = "for-control-variable-written"
	CodeExitOutsideLoop       = "exit-outside-loop"
	CodeContinueOutsideLoop   = "continue-outside-loop"
	CodeReturnTypeMismatch    = "return-type-mismatch"
	CodeIncompatibleAssign    = "incompatible-assignment"

	CodeExtendsFinal              = "extends-final-class"
	CodeOverrideWithoutBase       = "override-without-base"
	CodeOverrideAccessMismatch    = "override-access-mismatch"
	CodeAbstractMethodOutsideAbstractClass = "abstract-method-outside-abstract-class"
	CodeMissingInterfaceMethod    = "missing-interface-method"
)

// QuickFix is a suggested edit attached to a Diagnostic (spec.md §4.5, §6).
type QuickFix struct {
	Kind string // e.g. "insert-end", "convert-call-style", "wrap-conversion"
	Title string
	Edits []TextEdit
}

// TextEdit is a single replacement within a file (spec.md §6).
type TextEdit struct {
	Start, End int
	NewText    string
}

// Diagnostic reports one analysis finding.
type Diagnostic struct {
	Offset   int
	Length   int
	Severity Severity
	Code     string
	Message  string
	IECRef   string // e.g. "IEC 61131-3 §6.5.3", empty when unmapped
	Fixes    []QuickFix
}

// Result is the outcome of analyzing one file.
type Result struct {
	Diags []Diagnostic
}

type analyzer struct {
	file  symbols.FileID
	table *symbols.Table
	diags []Diagnostic

	loopDepth  int
	forControl map[string]bool // control-variable names currently in scope, by innermost FOR
}

// Analyze runs the full semantic pass over root given its symbol table.
func Analyze(file symbols.FileID, root *syntax.Node, table *symbols.Table) *Result {
	a := &analyzer{file: file, table: table, forControl: make(map[string]bool)}
	a.visitTopLevels(root)
	return &Result{Diags: a.diags}
}

func (a *analyzer) errorf(n *syntax.Node, code, msg, iecRef string, fixes ...QuickFix) {
	a.diags = append(a.diags, Diagnostic{
		Offset: n.Offset, Length: n.EndOffset() - n.Offset,
		Severity: SeverityError, Code: code, Message: msg, IECRef: iecRef, Fixes: fixes,
	})
}

func (a *analyzer) warnf(n *syntax.Node, code, msg, iecRef string, fixes ...QuickFix) {
	a.diags = append(a.diags, Diagnostic{
		Offset: n.Offset, Length: n.EndOffset() - n.Offset,
		Severity: SeverityWarning, Code: code, Message: msg, IECRef: iecRef, Fixes: fixes,
	})
}

func (a *analyzer) visitTopLevels(root *syntax.Node) {
	for _, c := range root.Children() {
		a.visitAny(c)
	}
}

func (a *analyzer) visitAny(n *syntax.Node) {
	switch n.Kind() {
	case syntax.NodePOUProgram, syntax.NodePOUFunction, syntax.NodePOUFunctionBlock,
		syntax.NodePOUClass, syntax.NodePOUInterface:
		a.visitPOU(n)
	case syntax.NodeNamespace:
		for _, c := range n.Children() {
			a.visitAny(c)
		}
	}
}

func (a *analyzer) visitPOU(n *syntax.Node) {
	for _, c := range n.Children() {
		switch c.Kind() {
		case syntax.NodeStmtList:
			a.visitStmtList(c)
		case syntax.NodeMethod:
			for _, mc := range c.Children() {
				if mc.Kind() == syntax.NodeStmtList {
					a.visitStmtList(mc)
				}
			}
		}
	}
}

func (a *analyzer) visitStmtList(n *syntax.Node) {
	for _, c := range n.Children() {
		a.visitStmt(c)
	}
}

func (a *analyzer) visitStmt(n *syntax.Node) {
	switch n.Kind() {
	case syntax.NodeAssignStmt:
		a.checkAssign(n)
	case syntax.NodeCallStmt:
		a.checkCall(n)
	case syntax.NodeIfStmt, syntax.NodeElsifClause:
		for _, c := range n.Children() {
			if c.Kind() == syntax.NodeStmtList {
				a.visitStmtList(c)
			} else {
				a.visitStmt(c)
			}
		}
	case syntax.NodeCaseStmt:
		a.checkCase(n)
	case syntax.NodeForStmt:
		a.checkFor(n)
	case syntax.NodeWhileStmt, syntax.NodeRepeatStmt:
		a.loopDepth++
		for _, c := range n.Children() {
			if c.Kind() == syntax.NodeStmtList {
				a.visitStmtList(c)
			}
		}
		a.loopDepth--
	case syntax.NodeExitStmt:
		if a.loopDepth == 0 {
			a.errorf(n, CodeExitOutsideLoop, "EXIT is only valid inside a loop", "")
		}
	case syntax.NodeContinueStmt:
		if a.loopDepth == 0 {
			a.errorf(n, CodeContinueOutsideLoop, "CONTINUE is only valid inside a loop", "")
		}
	case syntax.NodeReturnStmt:
		// Return-expression compatibility needs the enclosing function's
		// declared result type, resolved via the symbol table at the
		// call site; left for the caller's lowering pass to report
		// precisely since FUNCTION result type isn't threaded here.
	}
}

// checkAssign rejects writes to VAR_INPUT, CONSTANT, and the FOR
// control variable of an enclosing loop. Only bare-name targets are
// checked; writes through a field such as inst.Out (including another
// POU's VAR_OUTPUT) are not diagnosed.
func (a *analyzer) checkAssign(n *syntax.Node) {
	children := n.Children()
	if len(children) == 0 {
		return
	}
	lhs := children[0] // the assignment target expression, per parseExprStmt
	name, ok := simpleNameOf(lhs)
	if !ok {
		return
	}
	sym, ok := a.lookupFromNode(n, name)
	if !ok {
		return
	}
	switch {
	case sym.Modifiers.Constant:
		a.errorf(n, CodeAssignToConstant, "cannot assign to a CONSTANT", "IEC 61131-3 §2.4.3.1")
	case sym.Qualifier == symbols.QualInput:
		a.errorf(n, CodeAssignToInput, "VAR_INPUT parameters are not assignable", "IEC 61131-3 §2.4.3")
	case a.forControl[name]:
		a.errorf(n, CodeForControlWrite, "the FOR control variable must not be written by the loop body", "IEC 61131-3 §7.3.3.3")
	}
}

// simpleNameOf extracts the identifier when n is a bare NodeExprName
// (a single-token wrapper built by parsePrimary); field/index targets
// report false since their qualifier checks need a different walk.
func simpleNameOf(n *syntax.Node) (string, bool) {
	if n.Kind() != syntax.NodeExprName {
		return "", false
	}
	toks := n.Tokens()
	if len(toks) != 1 {
		return "", false
	}
	return toks[0].Token.Text, true
}

// lookupFromNode resolves name for a node inside a POU. The symbol
// table does not index scope-by-offset, so once n is known to sit
// inside a POU this returns the first match of symbols.Resolve over
// the top-level scopes of Table.Global in order; it does not pick the
// scope that actually encloses n, and returns false for nodes outside
// any POU.
func (a *analyzer) lookupFromNode(n *syntax.Node, name string) (*symbols.Symbol, bool) {
	for s := n; s != nil; s = s.Parent {
		switch s.Kind() {
		case syntax.NodePOUProgram, syntax.NodePOUFunction, syntax.NodePOUFunctionBlock,
			syntax.NodePOUClass, syntax.NodePOUInterface:
			for _, scope := range a.table.Global.Children {
				if sym, ok := symbols.Resolve(scope, name); ok {
					return sym, true
				}
			}
		}
	}
	return nil, false
}

// checkCall verifies formal/positional argument ordering: positional
// arguments must precede formal ones (spec.md §4.5). It does not check
// EN/ENO; positional arguments are never bound to EN/ENO by eval's
// call binding.
func (a *analyzer) checkCall(n *syntax.Node) {
	children := n.Children()
	if len(children) == 0 || children[0].Kind() != syntax.NodeExprCall {
		return
	}
	var argList *syntax.Node
	for _, c := range children[0].Children() {
		if c.Kind() == syntax.NodeArgList {
			argList = c
		}
	}
	if argList == nil {
		return
	}
	seenFormal := false
	for _, arg := range argList.Children() {
		switch arg.Kind() {
		case syntax.NodeArgPositional:
			if seenFormal {
				a.errorf(arg, CodeMixedArgOrder, "positional arguments must precede formal (name := / name =>) arguments", "",
					QuickFix{Kind: "convert-call-style", Title: "Convert to all-formal call"})
			}
		case syntax.NodeArgFormalIn, syntax.NodeArgFormalOut:
			seenFormal = true
		}
	}
}

// checkCase warns when a CASE over a non-enum selector has no ELSE
// branch, since exhaustiveness cannot be proven statically for
// unbounded integer selectors (spec.md §4.5).
func (a *analyzer) checkCase(n *syntax.Node) {
	hasElse := false
	for _, t := range n.Tokens() {
		if t.Token.Kind == lexer.KwElse {
			hasElse = true
			break
		}
	}
	if !hasElse {
		a.warnf(n, CodeCaseNotExhaustive, "CASE has no ELSE branch and the selector's exhaustiveness cannot be proven", "")
	}
}

// checkFor registers the control variable as write-protected for the
// duration of the loop body and recurses into it (spec.md §4.5, §4.9).
func (a *analyzer) checkFor(n *syntax.Node) {
	toks := n.Tokens()
	var controlName string
	for _, t := range toks {
		if t.Token.Kind == lexer.Ident {
			controlName = t.Token.Text
			break
		}
	}
	if controlName != "" {
		prev := a.forControl[controlName]
		a.forControl[controlName] = true
		defer func() {
			if prev {
				a.forControl[controlName] = true
			} else {
				delete(a.forControl, controlName)
			}
		}()
	}
	a.loopDepth++
	for _, c := range n.Children() {
		if c.Kind() == syntax.NodeStmtList {
			a.visitStmtList(c)
		}
	}
	a.loopDepth--
}

// checkReturnType validates a RETURN expression's type against a
// function's declared result type (spec.md §4.5); exposed separately
// because the enclosing POU's result type must be supplied by the
// caller (e.g. the query engine, which already has it from TypeSys).
func checkReturnType(target, value *types.Type) (ok bool, msg string) {
	class, msg := types.AssignCompatible(target, value)
	return class != types.AssignError, msg
}
