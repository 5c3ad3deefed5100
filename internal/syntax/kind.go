// Package syntax implements the lossless green/red Concrete Syntax
// Tree (spec.md §3, §4.2): green nodes are immutable and shared,
// red nodes add absolute offsets and parent pointers computed lazily
// while walking down from the root.
package syntax

// NodeKind enumerates CST node shapes. Token leaves use lexer.Kind
// directly (see Element); NodeKind only covers interior nodes.
type NodeKind int

const (
	NodeError NodeKind = iota
	NodeFile

	NodeUsingDirective
	NodeNamespace

	NodePOUProgram
	NodePOUFunction
	NodePOUFunctionBlock
	NodePOUClass
	NodePOUInterface
	NodeMethod
	NodeProperty
	NodePropertyAccessor
	NodeAction

	NodeVarBlock
	NodeVarDecl
	NodeQualifierList

	NodeTypeDecl
	NodeStructDecl
	NodeFieldDecl
	NodeEnumDecl
	NodeEnumValue
	NodeSubrangeType
	NodeArrayType
	NodeArrayDimension
	NodeRefToType
	NodeStringType
	NodeNamedType

	NodeStmtList
	NodeAssignStmt
	NodeSendStmt // SET/RESET style =>, rarely used standalone; kept for completeness
	NodeCallStmt
	NodeIfStmt
	NodeElsifClause
	NodeCaseStmt
	NodeCaseBranch
	NodeCaseLabelList
	NodeForStmt
	NodeWhileStmt
	NodeRepeatStmt
	NodeExitStmt
	NodeContinueStmt
	NodeReturnStmt
	NodeEmptyStmt

	NodeExprBinary
	NodeExprUnary
	NodeExprParen
	NodeExprCall
	NodeExprIndex
	NodeExprField
	NodeExprDeref
	NodeExprName
	NodeExprLiteral
	NodeExprRef

	NodeArgList
	NodeArgPositional
	NodeArgFormalIn
	NodeArgFormalOut
)

// Element is either a token leaf or a child green node; exactly one
// of Token/Node is non-nil.
type Element struct {
	Token *TokenData
	Node  *Green
}
