package ide

import (
	"context"
	"fmt"
	"strings"

	"stlang/internal/runtime/stdlib"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

// Hover is the signature/docs payload returned for a cursor position
// (spec.md §4.7: "signature, qualifiers/access, IEC docs for standard
// functions/FBs, namespace resolution, typed-literal guidance").
type Hover struct {
	Range    Range
	Contents string // markdown
}

var qualifierNames = map[symbols.VarQualifier]string{
	symbols.QualInput:    "VAR_INPUT",
	symbols.QualOutput:   "VAR_OUTPUT",
	symbols.QualInOut:    "VAR_IN_OUT",
	symbols.QualGlobal:   "VAR_GLOBAL",
	symbols.QualExternal: "VAR_EXTERNAL",
	symbols.QualTemp:     "VAR_TEMP",
	symbols.QualConfig:   "VAR_CONFIG",
}

var accessNames = map[symbols.Access]string{
	symbols.AccessPublic:    "PUBLIC",
	symbols.AccessProtected: "PROTECTED",
	symbols.AccessPrivate:   "PRIVATE",
	symbols.AccessInternal:  "INTERNAL",
}

var kindNames = map[symbols.Kind]string{
	symbols.KindVariable:      "variable",
	symbols.KindConstant:      "constant",
	symbols.KindFunction:      "function",
	symbols.KindFunctionBlock: "function block",
	symbols.KindProgram:       "program",
	symbols.KindClass:         "class",
	symbols.KindInterface:     "interface",
	symbols.KindMethod:        "method",
	symbols.KindProperty:      "property",
	symbols.KindTypeAlias:     "type",
	symbols.KindEnumValue:     "enum value",
	symbols.KindNamespace:     "namespace",
}

// HoverAt resolves the symbol at offset in file and renders its
// signature/qualifiers as markdown. Standard library calls (no user
// declaration exists) fall back to a name-only stdlib note since
// internal/runtime/stdlib registers natives without per-function doc
// strings; a richer IEC reference table is future work (DESIGN.md).
func HoverAt(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID, offset int) (*Hover, error) {
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
	node := syntax.FindToken(root, offset)
	name, ok := identTextAt(node, offset)
	if !ok {
		return nil, nil
	}
	sym, _, ok := symbolAt(root, tbl, ix, offset)
	if !ok {
		if stdlib.IsStandardName(name) {
			return &Hover{
				Range:    rangeOf(src, node.Offset, node.EndOffset()),
				Contents: fmt.Sprintf("**%s**\n\nIEC 61131-3 standard library function", name),
			}, nil
		}
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** — %s\n", sym.Name, kindNames[sym.Kind])
	if sym.TypeName != "" {
		fmt.Fprintf(&b, "\n`%s : %s`\n", sym.Name, sym.TypeName)
	}
	var quals []string
	if q := qualifierNames[sym.Qualifier]; q != "" {
		quals = append(quals, q)
	}
	if sym.Kind == symbols.KindMethod || sym.Kind == symbols.KindProperty {
		quals = append(quals, accessNames[sym.Access])
	}
	if sym.Modifiers.Constant {
		quals = append(quals, "CONSTANT")
	}
	if sym.Modifiers.Retain {
		quals = append(quals, "RETAIN")
	}
	if sym.Modifiers.NonRetain {
		quals = append(quals, "NON_RETAIN")
	}
	if sym.Modifiers.Persistent {
		quals = append(quals, "PERSISTENT")
	}
	if sym.Modifiers.RisingEdge {
		quals = append(quals, "R_EDGE")
	}
	if sym.Modifiers.FallingEdge {
		quals = append(quals, "F_EDGE")
	}
	if len(quals) > 0 {
		fmt.Fprintf(&b, "\n%s\n", strings.Join(quals, ", "))
	}
	if sym.Scope != nil && sym.Scope.Kind == symbols.ScopeNamespace {
		fmt.Fprintf(&b, "\nDeclared in namespace `%s`\n", sym.Scope.Name)
	}
	declSrc := src
	if sym.ID.File != file {
		if s, err := ws.Read(sym.ID.File); err == nil {
			declSrc = s
		}
	}
	fmt.Fprintf(&b, "\nDeclared at %s:%d\n", sym.ID.File, posAt(declSrc, sym.DeclOffset).Line)

	return &Hover{
		Range:    rangeOf(src, node.Offset, node.EndOffset()),
		Contents: b.String(),
	}, nil
}
