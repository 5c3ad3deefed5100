package lsp

import (
	"context"
	"encoding/json"

	"stlang/internal/ide"
)

func (s *Server) handleHover(ctx context.Context, req rpcRequest) *rpcResponse {
	var p textDocumentPositionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	offset, err := s.resolveOffset(file, p.Position)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	h, err := ide.HoverAt(ctx, s.ws, s.index, file, offset)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	if h == nil {
		return s.reply(req.ID, nil)
	}
	return s.reply(req.ID, map[string]interface{}{
		"contents": map[string]string{"kind": "markdown", "value": h.Contents},
		"range":    wireRange(h.Range),
	})
}

func (s *Server) handleDefinition(ctx context.Context, req rpcRequest) *rpcResponse {
	var p textDocumentPositionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	offset, err := s.resolveOffset(file, p.Position)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	loc, err := ide.Definition(ctx, s.ws, s.index, file, offset)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	if loc == nil {
		return s.reply(req.ID, nil)
	}
	return s.reply(req.ID, wireLocation(*loc))
}

func (s *Server) handleTypeDefinition(ctx context.Context, req rpcRequest) *rpcResponse {
	var p textDocumentPositionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	offset, err := s.resolveOffset(file, p.Position)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	loc, err := ide.TypeDefinition(ctx, s.ws, s.index, file, offset)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	if loc == nil {
		return s.reply(req.ID, nil)
	}
	return s.reply(req.ID, wireLocation(*loc))
}

func (s *Server) handleImplementation(ctx context.Context, req rpcRequest) *rpcResponse {
	var p textDocumentPositionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	offset, err := s.resolveOffset(file, p.Position)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	locs, err := ide.Implementation(ctx, s.ws, s.index, file, offset)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	return s.reply(req.ID, wireLocations(locs))
}

type referencesParams struct {
	textDocumentPositionParams
	Context struct {
		IncludeDeclaration bool `json:"includeDeclaration"`
	} `json:"context"`
}

func (s *Server) handleReferences(ctx context.Context, req rpcRequest) *rpcResponse {
	var p referencesParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	offset, err := s.resolveOffset(file, p.Position)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	locs, err := ide.References(ctx, s.ws, s.index, file, offset, p.Context.IncludeDeclaration)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	return s.reply(req.ID, wireLocations(locs))
}

type renameParams struct {
	textDocumentPositionParams
	NewName string `json:"newName"`
}

func (s *Server) handleRename(ctx context.Context, req rpcRequest) *rpcResponse {
	var p renameParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	offset, err := s.resolveOffset(file, p.Position)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	edit, err := ide.Rename(ctx, s.ws, s.index, file, offset, p.NewName)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	if edit == nil {
		return s.reply(req.ID, nil)
	}
	return s.reply(req.ID, s.wireWorkspaceEdit(edit))
}

func (s *Server) handleCompletion(ctx context.Context, req rpcRequest) *rpcResponse {
	var p textDocumentPositionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	offset, err := s.resolveOffset(file, p.Position)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	items, err := ide.Completion(ctx, s.ws, s.index, file, offset, s.profile)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	wire := make([]map[string]interface{}, len(items))
	for i, it := range items {
		wire[i] = map[string]interface{}{
			"label":      it.Label,
			"kind":       int(it.Kind) + 1, // LSP CompletionItemKind is 1-based
			"detail":     it.Detail,
			"insertText": it.InsertText,
		}
	}
	return s.reply(req.ID, map[string]interface{}{"isIncomplete": false, "items": wire})
}

type codeActionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

func (s *Server) handleCodeAction(ctx context.Context, req rpcRequest) *rpcResponse {
	var p codeActionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	result, err := s.qw.Analyze(ctx, file)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	actions := ide.QuickFixes(file, result.Diags)
	wire := make([]map[string]interface{}, len(actions))
	for i, a := range actions {
		wire[i] = map[string]interface{}{"title": a.Title, "kind": a.Kind, "edit": s.wireWorkspaceEdit(a.Edit)}
	}
	return s.reply(req.ID, wire)
}

type moveNamespaceParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     wirePosition           `json:"position"`
	NewName      string                 `json:"newName"`
	TargetFile   string                 `json:"targetFile"`
}

func (s *Server) handleMoveNamespace(ctx context.Context, req rpcRequest) *rpcResponse {
	var p moveNamespaceParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	offset, err := s.resolveOffset(file, p.Position)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	edit, err := ide.MoveNamespace(ctx, s.ws, s.index, file, offset, p.NewName, p.TargetFile)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	if edit == nil {
		return s.reply(req.ID, nil)
	}
	return s.reply(req.ID, s.wireWorkspaceEdit(edit))
}

type formattingParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Options      struct {
		TabSize int `json:"tabSize"`
	} `json:"options"`
}

func (s *Server) handleFormatting(ctx context.Context, req rpcRequest) *rpcResponse {
	var p formattingParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	root, err := s.ws.Parse(ctx, file)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	src, err := s.ws.Read(file)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	opts := ide.DefaultFormatOptions()
	if p.Options.TabSize > 0 {
		opts.IndentWidth = p.Options.TabSize
	}
	formatted := ide.Format(root, src, opts)
	if formatted == src {
		return s.reply(req.ID, []interface{}{})
	}
	endPos := ide.PositionAt(src, len(src))
	return s.reply(req.ID, []map[string]interface{}{{
		"range":   wireRange(ide.Range{Start: ide.Position{Line: 1, Column: 1}, End: endPos}),
		"newText": formatted,
	}})
}

func (s *Server) handleSemanticTokens(ctx context.Context, req rpcRequest) *rpcResponse {
	var p struct {
		TextDocument textDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	toks, err := ide.SemanticTokens(ctx, s.ws, s.index, file)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	return s.reply(req.ID, map[string]interface{}{"data": encodeSemanticTokens(toks)})
}

// encodeSemanticTokens applies the LSP delta encoding: each token is
// (deltaLine, deltaStartChar relative to the previous token on the
// same line else absolute, length, type, modifierBitmask).
func encodeSemanticTokens(toks []ide.SemanticToken) []int {
	data := make([]int, 0, len(toks)*5)
	prevLine, prevChar := 0, 0
	for _, t := range toks {
		line := t.Range.Start.Line - 1
		char := t.Range.Start.Column - 1
		length := 0
		if t.Range.End.Line == t.Range.Start.Line {
			length = t.Range.End.Column - t.Range.Start.Column
		}
		deltaLine := line - prevLine
		deltaChar := char
		if deltaLine == 0 {
			deltaChar = char - prevChar
		}
		data = append(data, deltaLine, deltaChar, length, int(t.Type), int(t.Modifiers))
		prevLine, prevChar = line, char
	}
	return data
}

func (s *Server) handleInlayHint(ctx context.Context, req rpcRequest) *rpcResponse {
	var p struct {
		TextDocument textDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	hints, err := ide.InlayHints(ctx, s.ws, s.index, file)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	src, err := s.ws.Read(file)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	wire := make([]map[string]interface{}, len(hints))
	for i, h := range hints {
		wire[i] = map[string]interface{}{
			"position": wirePos(ide.PositionAt(src, h.Offset)),
			"label":    h.Label,
			"kind":     2, // Parameter
		}
	}
	return s.reply(req.ID, wire)
}

type wireCallHierarchyItem struct {
	Name           string                 `json:"name"`
	URI            string                 `json:"uri"`
	Range          map[string]interface{} `json:"range"`
	SelectionRange map[string]interface{} `json:"selectionRange"`
}

func toWireCallHierarchyItem(item ide.CallHierarchyItem) wireCallHierarchyItem {
	return wireCallHierarchyItem{
		Name:           item.Name,
		URI:            fileToURI(item.Loc.File),
		Range:          wireRange(item.Loc.Range),
		SelectionRange: wireRange(item.Loc.Range),
	}
}

func (s *Server) handlePrepareCallHierarchy(ctx context.Context, req rpcRequest) *rpcResponse {
	var p textDocumentPositionParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	file := uriToFile(p.TextDocument.URI)
	offset, err := s.resolveOffset(file, p.Position)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	item, err := ide.PrepareCallHierarchy(ctx, s.ws, s.index, file, offset)
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	if item == nil {
		return s.reply(req.ID, nil)
	}
	return s.reply(req.ID, []wireCallHierarchyItem{toWireCallHierarchyItem(*item)})
}

type callHierarchyCallsParams struct {
	Item wireCallHierarchyItem `json:"item"`
}

func (p callHierarchyCallsParams) toItem() ide.CallHierarchyItem {
	return ide.CallHierarchyItem{Name: p.Item.Name, Loc: ide.Location{File: uriToFile(p.Item.URI)}}
}

func (s *Server) handleIncomingCalls(ctx context.Context, req rpcRequest) *rpcResponse {
	var p callHierarchyCallsParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	calls, err := ide.IncomingCalls(ctx, s.ws, s.index, p.toItem())
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	wire := make([]map[string]interface{}, len(calls))
	for i, c := range calls {
		wire[i] = map[string]interface{}{"from": toWireCallHierarchyItem(c), "fromRanges": []interface{}{}}
	}
	return s.reply(req.ID, wire)
}

func (s *Server) handleOutgoingCalls(ctx context.Context, req rpcRequest) *rpcResponse {
	var p callHierarchyCallsParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.fail(req.ID, errInvalidRequest, err)
	}
	calls, err := ide.OutgoingCalls(ctx, s.ws, s.index, p.toItem())
	if err != nil {
		return s.fail(req.ID, errInternal, err)
	}
	wire := make([]map[string]interface{}, len(calls))
	for i, c := range calls {
		wire[i] = map[string]interface{}{"to": toWireCallHierarchyItem(c), "fromRanges": []interface{}{}}
	}
	return s.reply(req.ID, wire)
}

func wireLocations(locs []ide.Location) []map[string]interface{} {
	wire := make([]map[string]interface{}, len(locs))
	for i, l := range locs {
		wire[i] = wireLocation(l)
	}
	return wire
}

// wireWorkspaceEdit converts an ide.WorkspaceEdit to the LSP wire
// shape. TextEdit offsets are byte offsets into a file's current text,
// so each file's edits are positioned against a fresh read of that
// file rather than the (possibly stale) buffer the request started
// from.
func (s *Server) wireWorkspaceEdit(edit *ide.WorkspaceEdit) map[string]interface{} {
	if edit == nil {
		return nil
	}
	changes := make(map[string]interface{}, len(edit.Changes))
	for file, edits := range edit.Changes {
		src, err := s.ws.Read(file)
		if err != nil {
			continue
		}
		wireEdits := make([]map[string]interface{}, len(edits))
		for i, te := range edits {
			wireEdits[i] = map[string]interface{}{
				"range":   wireRange(ide.Range{Start: ide.PositionAt(src, te.Start), End: ide.PositionAt(src, te.End)}),
				"newText": te.NewText,
			}
		}
		changes[fileToURI(file)] = wireEdits
	}
	result := map[string]interface{}{"changes": changes}
	if len(edit.Renames) > 0 || len(edit.Creates) > 0 {
		var ops []map[string]interface{}
		for oldFile, newFile := range edit.Renames {
			ops = append(ops, map[string]interface{}{"kind": "rename", "oldUri": fileToURI(oldFile), "newUri": fileToURI(newFile)})
		}
		for newFile, content := range edit.Creates {
			ops = append(ops, map[string]interface{}{"kind": "create", "uri": fileToURI(newFile)})
			changes[fileToURI(newFile)] = []map[string]interface{}{{
				"range":   wireRange(ide.Range{Start: ide.Position{Line: 1, Column: 1}, End: ide.Position{Line: 1, Column: 1}}),
				"newText": content,
			}}
		}
		result["documentChanges"] = ops
	}
	return result
}
