// Package control implements the runtime control protocol of spec.md
// §6: a line-delimited, JSON-RPC-shaped server over a local socket
// that lets an HMI or operator tool read/write/force direct addresses,
// query scheduler status, and read/write HMI tags subject to an
// allow-list. The framing mirrors the teacher's own hand-rolled
// Content-Length LSP loop in internal/mangle/lsp.go, simplified to
// newline-delimited JSON since the control protocol's own wire format
// (spec.md §6) is a line-delimited one, not Content-Length framed.
package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"stlang/internal/logging"
	"stlang/internal/runtime"
	"stlang/internal/scheduler"
)

// Request is one line of the control protocol (spec.md §6: "integer
// id, a type string, optional auth token, and params").
type Request struct {
	ID     int             `json:"id"`
	Type   string          `json:"type"`
	Token  string          `json:"token,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response echoes the request id and carries either a result or an
// error (spec.md §6: "responses echo id and carry ok + result or
// error").
type Response struct {
	ID     int         `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// HMITag is one allow-listed HMI point: a stable id exposed over
// hmi.schema.get/hmi.values.get/hmi.write, bound to a direct address.
type HMITag struct {
	ID       string
	Address  runtime.Address
	Writable bool
	Label    string
}

// HMISchema is the fixed set of tags a control server exposes; writes
// to anything outside it are rejected (spec.md §6 "subject to
// allow-list").
type HMISchema struct {
	tags []HMITag
	byID map[string]HMITag
}

// NewHMISchema indexes tags by id.
func NewHMISchema(tags []HMITag) *HMISchema {
	byID := make(map[string]HMITag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}
	return &HMISchema{tags: tags, byID: byID}
}

func (s *HMISchema) get(id string) (HMITag, bool) {
	if s == nil {
		return HMITag{}, false
	}
	t, ok := s.byID[id]
	return t, ok
}

// Server answers control-protocol requests against one resource's live
// process image and scheduler state.
type Server struct {
	res   *scheduler.Resource
	hmi   *HMISchema
	token string // empty disables auth-token checking

	mu  sync.Mutex // serializes dispatch; the process image isn't safe for concurrent cycle + control access otherwise
	log *zap.Logger
}

// NewServer builds a Server over res (and, optionally, an HMI
// allow-list). An empty token disables auth checking, matching an
// endpoint with no configured secret.
func NewServer(res *scheduler.Resource, hmi *HMISchema, token string, logs *logging.Factory) *Server {
	var log *zap.Logger
	if logs != nil {
		log = logs.Get(logging.Control)
	} else {
		log = zap.NewNop()
	}
	return &Server{res: res, hmi: hmi, token: token, log: log}
}

// Listen opens network ("unix" or "tcp") at address. Unix sockets are
// created with 0600 permissions (spec.md §6 "a local socket (Unix
// 0600 or TCP)").
func Listen(network, address string) (net.Listener, error) {
	if network == "unix" {
		_ = os.Remove(address) // stale socket from a prior, uncleanly-stopped run
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("control: listen %s %s: %w", network, address, err)
	}
	if network == "unix" {
		if err := os.Chmod(address, 0o600); err != nil {
			ln.Close()
			return nil, fmt.Errorf("control: chmod socket: %w", err)
		}
	}
	return ln, nil
}

// Serve accepts connections on ln until it is closed, handling each on
// its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(Response{OK: false, Error: fmt.Sprintf("control: malformed request: %v", err)})
			continue
		}
		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			s.log.Warn("control: write response failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	if s.token != "" && req.Token != s.token {
		return errResponse(req.ID, fmt.Errorf("control: invalid auth token"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Type {
	case "io.read":
		return s.handleIORead(req)
	case "io.write":
		return s.handleIOWrite(req)
	case "io.force":
		return s.handleIOForce(req)
	case "io.unforce":
		return s.handleIOUnforce(req)
	case "status":
		return s.handleStatus(req)
	case "hmi.schema.get":
		return s.handleHMISchemaGet(req)
	case "hmi.values.get":
		return s.handleHMIValuesGet(req)
	case "hmi.write":
		return s.handleHMIWrite(req)
	default:
		return errResponse(req.ID, fmt.Errorf("control: unknown request type %q", req.Type))
	}
}

func okResponse(id int, result interface{}) Response {
	return Response{ID: id, OK: true, Result: result}
}

func errResponse(id int, err error) Response {
	return Response{ID: id, OK: false, Error: err.Error()}
}

type ioAddressParams struct {
	Address string `json:"address"`
}

type ioValueParams struct {
	Address string `json:"address"`
	Value   string `json:"value"`
}

func (s *Server) handleIORead(req Request) Response {
	var p ioAddressParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, err)
	}
	addr, err := runtime.ParseAddress(p.Address)
	if err != nil {
		return errResponse(req.ID, err)
	}
	value, err := readValue(s.res.Image, addr)
	if err != nil {
		return errResponse(req.ID, err)
	}
	return okResponse(req.ID, value)
}

func (s *Server) handleIOWrite(req Request) Response {
	var p ioValueParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, err)
	}
	addr, err := runtime.ParseAddress(p.Address)
	if err != nil {
		return errResponse(req.ID, err)
	}
	if err := writeValue(s.res.Image, addr, p.Value); err != nil {
		return errResponse(req.ID, err)
	}
	return okResponse(req.ID, nil)
}

func (s *Server) handleIOForce(req Request) Response {
	var p ioValueParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, err)
	}
	addr, err := runtime.ParseAddress(p.Address)
	if err != nil {
		return errResponse(req.ID, err)
	}
	raw, err := encodeRaw(addr, p.Value)
	if err != nil {
		return errResponse(req.ID, err)
	}
	s.res.Image.Force(addr, raw)
	return okResponse(req.ID, nil)
}

func (s *Server) handleIOUnforce(req Request) Response {
	var p ioAddressParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, err)
	}
	addr, err := runtime.ParseAddress(p.Address)
	if err != nil {
		return errResponse(req.ID, err)
	}
	s.res.Image.Unforce(addr)
	return okResponse(req.ID, nil)
}

// taskStatus is one entry of the status response's task table, the
// same fields the bubbletea dashboard's task table renders.
type taskStatus struct {
	Name         string `json:"name"`
	Priority     int    `json:"priority"`
	LastRun      string `json:"lastRun,omitempty"`
	OverrunCount int    `json:"overrunCount"`
}

type statusResult struct {
	Resource string       `json:"resource"`
	State    string       `json:"state"`
	Fault    string       `json:"fault,omitempty"`
	Tasks    []taskStatus `json:"tasks"`
}

func (s *Server) handleStatus(req Request) Response {
	result := statusResult{Resource: s.res.Name}
	switch s.res.State {
	case scheduler.StateRunning:
		result.State = "RUNNING"
	case scheduler.StateFault:
		result.State = "FAULT"
		if s.res.Fault != nil {
			result.Fault = s.res.Fault.Error()
		}
	}
	for _, t := range s.res.Tasks {
		ts := taskStatus{Name: t.Name, Priority: t.Priority, OverrunCount: t.OverrunCount}
		if lr := t.LastRun(); !lr.IsZero() {
			ts.LastRun = lr.Format("15:04:05.000")
		}
		result.Tasks = append(result.Tasks, ts)
	}
	return okResponse(req.ID, result)
}

type hmiTagSchema struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Writable bool   `json:"writable"`
	Label    string `json:"label,omitempty"`
}

func (s *Server) handleHMISchemaGet(req Request) Response {
	var out []hmiTagSchema
	if s.hmi != nil {
		for _, t := range s.hmi.tags {
			out = append(out, hmiTagSchema{ID: t.ID, Address: t.Address.String(), Writable: t.Writable, Label: t.Label})
		}
	}
	return okResponse(req.ID, out)
}

type hmiValuesGetParams struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleHMIValuesGet(req Request) Response {
	var p hmiValuesGetParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, err)
	}
	out := make(map[string]string, len(p.IDs))
	for _, id := range p.IDs {
		tag, ok := s.hmi.get(id)
		if !ok {
			return errResponse(req.ID, fmt.Errorf("control: unknown hmi id %q", id))
		}
		value, err := readValue(s.res.Image, tag.Address)
		if err != nil {
			return errResponse(req.ID, err)
		}
		out[id] = value
	}
	return okResponse(req.ID, out)
}

type hmiWriteParams struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func (s *Server) handleHMIWrite(req Request) Response {
	var p hmiWriteParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, err)
	}
	tag, ok := s.hmi.get(p.ID)
	if !ok {
		return errResponse(req.ID, fmt.Errorf("control: unknown hmi id %q", p.ID))
	}
	if !tag.Writable {
		return errResponse(req.ID, fmt.Errorf("control: hmi id %q is not writable", p.ID))
	}
	if err := writeValue(s.res.Image, tag.Address, p.Value); err != nil {
		return errResponse(req.ID, err)
	}
	return okResponse(req.ID, nil)
}

// readValue renders a direct address's current value as the wire
// string: "TRUE"/"FALSE" for bit addresses, unsigned decimal
// otherwise (spec.md §6: "booleans round-trip as TRUE/FALSE").
func readValue(img *runtime.ProcessImage, addr runtime.Address) (string, error) {
	if addr.Size == runtime.SizeBit {
		b, err := img.ReadBool(addr)
		if err != nil {
			return "", err
		}
		return boolString(b), nil
	}
	v, err := img.ReadUint(addr)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(v, 10), nil
}

// writeValue parses value per addr.Size and applies it to img.
func writeValue(img *runtime.ProcessImage, addr runtime.Address, value string) error {
	if addr.Size == runtime.SizeBit {
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		return img.WriteBool(addr, b)
	}
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("control: invalid value %q for %s: %w", value, addr, err)
	}
	return img.WriteUint(addr, v)
}

// encodeRaw parses value the same way writeValue does but returns the
// raw bit pattern instead of applying it, for io.force (which must
// store the forced value separately from the underlying byte region).
func encodeRaw(addr runtime.Address, value string) (uint64, error) {
	if addr.Size == runtime.SizeBit {
		b, err := parseBool(value)
		if err != nil {
			return 0, err
		}
		if b {
			return 1, nil
		}
		return 0, nil
	}
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("control: invalid value %q for %s: %w", value, addr, err)
	}
	return v, nil
}

func boolString(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func parseBool(s string) (bool, error) {
	switch s {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	default:
		return false, fmt.Errorf("control: invalid boolean value %q, want TRUE or FALSE", s)
	}
}
