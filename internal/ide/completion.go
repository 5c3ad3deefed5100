package ide

import (
	"context"
	"sort"
	"strings"

	"stlang/internal/lexer"
	"stlang/internal/runtime/stdlib"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

// CompletionKind loosely mirrors LSP's CompletionItemKind values used
// by the features spec.md §4.7 names.
type CompletionKind int

const (
	CompletionVariable CompletionKind = iota
	CompletionConstant
	CompletionFunction
	CompletionFunctionBlock
	CompletionType
	CompletionKeyword
	CompletionField
	CompletionParameter
)

// CompletionItem is one suggestion.
type CompletionItem struct {
	Label      string
	Kind       CompletionKind
	Detail     string
	InsertText string
}

var triggerKeywords = []string{
	"IF", "THEN", "ELSIF", "ELSE", "END_IF", "CASE", "OF", "END_CASE",
	"FOR", "TO", "BY", "DO", "END_FOR", "WHILE", "END_WHILE",
	"REPEAT", "UNTIL", "END_REPEAT", "EXIT", "CONTINUE", "RETURN",
	"VAR", "VAR_INPUT", "VAR_OUTPUT", "VAR_IN_OUT", "VAR_GLOBAL",
	"VAR_TEMP", "VAR_EXTERNAL", "END_VAR", "CONSTANT", "RETAIN",
	"NON_RETAIN", "PERSISTENT", "PROGRAM", "END_PROGRAM", "FUNCTION",
	"END_FUNCTION", "FUNCTION_BLOCK", "END_FUNCTION_BLOCK",
	"NOT", "AND", "OR", "XOR", "MOD", "TRUE", "FALSE", "NULL",
}

var elementaryTypeNames = []string{
	"BOOL", "SINT", "INT", "DINT", "LINT", "USINT", "UINT", "UDINT", "ULINT",
	"REAL", "LREAL", "BYTE", "WORD", "DWORD", "LWORD", "TIME", "LTIME",
	"DATE", "LDATE", "TOD", "LTOD", "DT", "LDT", "STRING", "WSTRING", "CHAR", "WCHAR",
}

var standardFunctionNames = []string{
	"ABS", "SQRT", "LN", "LOG", "EXP", "SIN", "COS", "TAN", "ASIN", "ACOS", "ATAN", "ATAN2", "EXPT",
	"ADD", "SUB", "MUL", "DIV", "MOD", "AND", "OR", "XOR", "NOT",
	"SHL", "SHR", "ROL", "ROR", "SEL", "MAX", "MIN", "LIMIT", "MUX",
	"GT", "GE", "EQ", "LE", "LT", "NE",
	"LEN", "LEFT", "RIGHT", "MID", "CONCAT", "INSERT", "DELETE", "REPLACE", "FIND",
	"ADD_TIME", "SUB_TIME", "MULTIME", "DIVTIME", "CONCAT_DATE_TOD", "DT_TO_TOD", "DT_TO_DATE",
}

// Completion returns suggestions at offset, following spec.md §4.7's
// context rules: after `.` on an instance, members filtered by access;
// after `:`, types in scope; inside an argument list, parameter-name
// completions; otherwise keywords + in-scope identifiers + the standard
// function names unless profile is "none" (no other profile value
// narrows that list).
func Completion(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID, offset int, profile string) ([]CompletionItem, error) {
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

	trigger, prefix := triggerContext(src, offset)
	switch trigger {
	case '.':
		return memberCompletions(ctx, ws, ix, root, tbl, src, offset, prefix)
	case ':':
		return typeCompletions(prefix), nil
	case '(':
		return paramCompletions(root, tbl, offset, prefix), nil
	}

	node := syntax.FindToken(root, offset)
	scope := enclosingScope(tbl, node)
	var items []CompletionItem
	seen := map[string]bool{}
	for s := scope; s != nil; s = s.Parent {
		for name, sym := range s.Symbols {
			if !strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(prefix)) || seen[name] {
				continue
			}
			seen[name] = true
			items = append(items, CompletionItem{Label: name, Kind: completionKindOf(sym), Detail: kindNames[sym.Kind], InsertText: name})
		}
	}
	for _, kw := range triggerKeywords {
		if strings.HasPrefix(kw, strings.ToUpper(prefix)) {
			items = append(items, CompletionItem{Label: kw, Kind: CompletionKeyword, InsertText: kw})
		}
	}
	if profile != "none" {
		for _, name := range standardFunctionNames {
			if strings.HasPrefix(name, strings.ToUpper(prefix)) && stdlib.IsStandardName(name) {
				items = append(items, CompletionItem{Label: name, Kind: CompletionFunction, Detail: "IEC standard function", InsertText: name})
			}
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items, nil
}

func completionKindOf(sym *symbols.Symbol) CompletionKind {
	switch sym.Kind {
	case symbols.KindConstant:
		return CompletionConstant
	case symbols.KindFunction:
		return CompletionFunction
	case symbols.KindFunctionBlock, symbols.KindProgram, symbols.KindClass, symbols.KindInterface:
		return CompletionFunctionBlock
	case symbols.KindTypeAlias:
		return CompletionType
	default:
		return CompletionVariable
	}
}

// triggerContext looks at the character immediately before offset to
// decide which completion context applies, and the identifier prefix
// typed so far.
func triggerContext(src string, offset int) (byte, string) {
	i := offset
	start := i
	for start > 0 && isIdentByte(src[start-1]) {
		start--
	}
	prefix := src[start:offset]
	j := start - 1
	for j >= 0 && (src[j] == ' ' || src[j] == '\t') {
		j--
	}
	if j >= 0 {
		return src[j], prefix
	}
	return 0, prefix
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// memberCompletions resolves the instance/struct expression before the
// `.` and offers its scope's members, filtered by access when the
// instance is an FB/class/interface typed variable.
func memberCompletions(ctx context.Context, ws Workspace, ix *Index, root *syntax.Node, tbl *symbols.Table, src string, offset int, prefix string) ([]CompletionItem, error) {
	dot := offset - len(prefix) - 1
	for dot >= 0 && (src[dot] == ' ' || src[dot] == '\t') {
		dot--
	}
	if dot < 0 || src[dot] != '.' {
		return nil, nil
	}
	recvSym, _, ok := symbolAt(root, tbl, ix, dot-1)
	if !ok || recvSym.TypeName == "" {
		return nil, nil
	}
	decls := ix.globalDecls(recvSym.TypeName)
	if len(decls) == 0 {
		return nil, nil
	}
	typeTbl, ok := ix.Table(decls[0].ID.File)
	if !ok {
		return nil, nil
	}
	var out []CompletionItem
	for _, scope := range typeTbl.Global.Children {
		if scope.Kind != symbols.ScopePOU || scope.Name != decls[0].Name {
			continue
		}
		for name, sym := range scope.Symbols {
			if sym.Access == symbols.AccessPrivate {
				continue
			}
			if !strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(prefix)) {
				continue
			}
			out = append(out, CompletionItem{Label: name, Kind: completionKindOf(sym), Detail: kindNames[sym.Kind], InsertText: name})
		}
	}
	return out, nil
}

func typeCompletions(prefix string) []CompletionItem {
	var out []CompletionItem
	for _, name := range elementaryTypeNames {
		if strings.HasPrefix(name, strings.ToUpper(prefix)) {
			out = append(out, CompletionItem{Label: name, Kind: CompletionType, InsertText: name})
		}
	}
	return out
}

// paramCompletions offers formal-argument completions for a call at
// offset, using direction-appropriate assignment operators
// (`:=` for IN/IN_OUT, `=>` for OUT) per spec.md §4.7.
func paramCompletions(root *syntax.Node, tbl *symbols.Table, offset int, prefix string) []CompletionItem {
	node := syntax.FindToken(root, offset)
	var callName string
	for n := node; n != nil; n = n.Parent {
		if n.Kind() == syntax.NodeExprCall {
			for _, t := range n.Tokens() {
				if t.Token.Kind == lexer.Ident {
					callName = t.Token.Text
					break
				}
			}
			break
		}
	}
	if callName == "" {
		return nil
	}
	decls := []*symbols.Symbol{}
	for _, scope := range tbl.Global.Children {
		if scope.Kind == symbols.ScopePOU && scope.Name == callName {
			for _, sym := range scope.Symbols {
				if sym.Kind == symbols.KindVariable && (sym.Qualifier == symbols.QualInput || sym.Qualifier == symbols.QualOutput || sym.Qualifier == symbols.QualInOut) {
					decls = append(decls, sym)
				}
			}
		}
	}
	var out []CompletionItem
	for _, sym := range decls {
		if !strings.HasPrefix(strings.ToUpper(sym.Name), strings.ToUpper(prefix)) {
			continue
		}
		op := ":="
		if sym.Qualifier == symbols.QualOutput {
			op = "=>"
		}
		out = append(out, CompletionItem{Label: sym.Name, Kind: CompletionParameter, Detail: sym.TypeName, InsertText: sym.Name + " " + op + " "})
	}
	return out
}
