package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"stlang/internal/ide"
	"stlang/internal/symbols"
)

// rpcRequest is one LSP JSON-RPC message (request or notification —
// notifications simply carry no ID), matching the wire shape the
// teacher's own LSP server framed before this project existed.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	errParse          = -32700
	errInvalidRequest = -32600
	errMethodNotFound = -32601
	errInternal       = -32603
)

// ServeStdio runs the server on os.Stdin/os.Stdout until ctx is
// cancelled or the client sends "exit".
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads Content-Length-framed JSON-RPC messages from r and
// writes framed responses to w, one message at a time (this server
// processes requests serially, same as the teacher's ServeStdio loop;
// internal/ide's own functions are what's safe for concurrent queries,
// not this dispatch loop).
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		contentLength, err := readHeaders(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		body := make([]byte, contentLength)
		if _, err := io.ReadFull(reader, body); err != nil {
			return err
		}

		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeMessage(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: errParse, Message: err.Error()}})
			continue
		}
		if req.Method == "exit" {
			return nil
		}
		resp := s.handleRequest(ctx, req)
		if resp != nil {
			writeMessage(w, *resp)
		}
	}
}

// readHeaders consumes one block of "Key: Value\r\n" header lines up
// to the blank line, returning the advertised Content-Length.
func readHeaders(r *bufio.Reader) (int, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return 0, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return 0, fmt.Errorf("lsp: bad Content-Length %q: %w", value, err)
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return 0, fmt.Errorf("lsp: message with no Content-Length header")
	}
	return contentLength, nil
}

func writeMessage(w io.Writer, resp rpcResponse) {
	resp.JSONRPC = "2.0"
	body, err := json.Marshal(resp)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "Content-Length: %d\r\n\r\n%s", len(body), body)
}

func (s *Server) reply(id json.RawMessage, result interface{}) *rpcResponse {
	return &rpcResponse{ID: id, Result: result}
}

func (s *Server) fail(id json.RawMessage, code int, err error) *rpcResponse {
	return &rpcResponse{ID: id, Error: &rpcError{Code: code, Message: err.Error()}}
}

// handleRequest dispatches one message by method name. Notifications
// (didOpen/didChange/didClose/initialized) return nil: no response is
// framed for them.
func (s *Server) handleRequest(ctx context.Context, req rpcRequest) *rpcResponse {
	switch req.Method {
	case "initialize":
		return s.reply(req.ID, initializeResult())
	case "initialized", "$/cancelRequest":
		return nil
	case "shutdown":
		return s.reply(req.ID, nil)

	case "textDocument/didOpen":
		var p didOpenParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil
		}
		s.openOrChange(uriToFile(p.TextDocument.URI), p.TextDocument.Text)
		return nil
	case "textDocument/didChange":
		var p didChangeParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil
		}
		if len(p.ContentChanges) > 0 {
			s.openOrChange(uriToFile(p.TextDocument.URI), p.ContentChanges[len(p.ContentChanges)-1].Text)
		}
		return nil
	case "textDocument/didClose":
		var p didCloseParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil
		}
		s.close(uriToFile(p.TextDocument.URI))
		return nil

	case "textDocument/hover":
		return s.handleHover(ctx, req)
	case "textDocument/definition":
		return s.handleDefinition(ctx, req)
	case "textDocument/declaration":
		return s.handleDefinition(ctx, req) // alias, per ide.Definition's own doc comment
	case "textDocument/typeDefinition":
		return s.handleTypeDefinition(ctx, req)
	case "textDocument/implementation":
		return s.handleImplementation(ctx, req)
	case "textDocument/references":
		return s.handleReferences(ctx, req)
	case "textDocument/rename":
		return s.handleRename(ctx, req)
	case "textDocument/completion":
		return s.handleCompletion(ctx, req)
	case "textDocument/codeAction":
		return s.handleCodeAction(ctx, req)
	case "textDocument/formatting":
		return s.handleFormatting(ctx, req)
	case "textDocument/semanticTokens/full":
		return s.handleSemanticTokens(ctx, req)
	case "textDocument/inlayHint":
		return s.handleInlayHint(ctx, req)
	case "textDocument/prepareCallHierarchy":
		return s.handlePrepareCallHierarchy(ctx, req)
	case "callHierarchy/incomingCalls":
		return s.handleIncomingCalls(ctx, req)
	case "callHierarchy/outgoingCalls":
		return s.handleOutgoingCalls(ctx, req)
	case "stlang/moveNamespace":
		return s.handleMoveNamespace(ctx, req)

	default:
		if req.ID == nil {
			return nil // unhandled notification: ignore rather than error
		}
		return s.fail(req.ID, errMethodNotFound, fmt.Errorf("method not found: %s", req.Method))
	}
}

func initializeResult() map[string]interface{} {
	return map[string]interface{}{
		"capabilities": map[string]interface{}{
			"textDocumentSync":           1, // full sync, matching DocumentStore.Set's whole-buffer replace
			"definitionProvider":         true,
			"declarationProvider":        true,
			"typeDefinitionProvider":     true,
			"implementationProvider":     true,
			"referencesProvider":         true,
			"renameProvider":             map[string]interface{}{"prepareProvider": false},
			"hoverProvider":              true,
			"documentFormattingProvider": true,
			"callHierarchyProvider":      true,
			"completionProvider": map[string]interface{}{
				"triggerCharacters": []string{".", ":", "("},
			},
			"codeActionProvider": true,
			"inlayHintProvider":  true,
			"semanticTokensProvider": map[string]interface{}{
				"legend": map[string]interface{}{
					"tokenTypes":     semanticTokenTypeNames,
					"tokenModifiers": semanticModifierNames,
				},
				"full": true,
			},
		},
	}
}

var semanticTokenTypeNames = []string{
	"variable", "parameter", "property", "function", "method",
	"class", "interface", "enumMember", "type", "namespace", "keyword",
}

var semanticModifierNames = []string{"declaration", "readonly", "modification"}

func uriToFile(uri string) symbols.FileID {
	return symbols.FileID(strings.TrimPrefix(uri, "file://"))
}

func fileToURI(f symbols.FileID) string {
	s := string(f)
	if strings.HasPrefix(s, "file://") {
		return s
	}
	return "file://" + s
}

func wirePos(p ide.Position) map[string]int {
	return map[string]int{"line": p.Line - 1, "character": p.Column - 1}
}

func wireRange(r ide.Range) map[string]interface{} {
	return map[string]interface{}{"start": wirePos(r.Start), "end": wirePos(r.End)}
}

func wireLocation(l ide.Location) map[string]interface{} {
	return map[string]interface{}{"uri": fileToURI(l.File), "range": wireRange(l.Range)}
}

type wirePosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

func (p wirePosition) toOffset(src string) int {
	return ide.OffsetAt(src, ide.Position{Line: p.Line + 1, Column: p.Character + 1})
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type textDocumentPositionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     wirePosition           `json:"position"`
}

type didOpenParams struct {
	TextDocument struct {
		URI  string `json:"uri"`
		Text string `json:"text"`
	} `json:"textDocument"`
}

type didChangeParams struct {
	TextDocument   textDocumentIdentifier `json:"textDocument"`
	ContentChanges []struct {
		Text string `json:"text"`
	} `json:"contentChanges"`
}

type didCloseParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

// resolveOffset reads file's text and converts a wire position to a
// byte offset against it, the conversion every handler below needs
// before calling into internal/ide.
func (s *Server) resolveOffset(file symbols.FileID, pos wirePosition) (int, error) {
	src, err := s.docs.Read(file)
	if err != nil {
		return 0, err
	}
	return pos.toOffset(src), nil
}
