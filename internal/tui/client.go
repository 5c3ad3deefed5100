// Package tui implements the terminal dashboard used by `stplc status`:
// a bubbletea program that polls a running resource's control-protocol
// endpoint (internal/control) and renders its task table, fault state,
// cycle-activity history, and an address inspector pane. Styling follows
// the teacher's cmd/nerd/ui package: a Theme/Styles split with
// lipgloss, glamour for the inspector's rendered markdown.
package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is a thin synchronous wrapper over one control-protocol
// connection: each call writes one line and blocks for the matching
// response line, mirroring the protocol's request/response framing
// (spec.md §6).
type Client struct {
	conn   net.Conn
	reader *bufio.Scanner
	token  string
	nextID int
}

// Dial connects to a control endpoint at address over network ("unix"
// or "tcp").
func Dial(network, address, token string) (*Client, error) {
	conn, err := net.DialTimeout(network, address, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("tui: dial %s %s: %w", network, address, err)
	}
	return &Client{conn: conn, reader: bufio.NewScanner(conn), token: token}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

type request struct {
	ID     int             `json:"id"`
	Type   string          `json:"type"`
	Token  string          `json:"token,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID     int             `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// call sends one request and decodes its result into out (if non-nil).
func (c *Client) call(reqType string, params interface{}, out interface{}) error {
	c.nextID++
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = b
	}
	line, err := json.Marshal(request{ID: c.nextID, Type: reqType, Token: c.token, Params: raw})
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("tui: write request: %w", err)
	}
	if !c.reader.Scan() {
		if err := c.reader.Err(); err != nil {
			return fmt.Errorf("tui: read response: %w", err)
		}
		return fmt.Errorf("tui: connection closed")
	}
	var resp response
	if err := json.Unmarshal(c.reader.Bytes(), &resp); err != nil {
		return fmt.Errorf("tui: decode response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("tui: %s", resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return err
		}
	}
	return nil
}

// TaskStatus mirrors control.taskStatus on the wire.
type TaskStatus struct {
	Name         string `json:"name"`
	Priority     int    `json:"priority"`
	LastRun      string `json:"lastRun,omitempty"`
	OverrunCount int    `json:"overrunCount"`
}

// Status mirrors control.statusResult on the wire.
type Status struct {
	Resource string       `json:"resource"`
	State    string       `json:"state"`
	Fault    string       `json:"fault,omitempty"`
	Tasks    []TaskStatus `json:"tasks"`
}

// Status fetches the resource's current scheduler status.
func (c *Client) Status() (Status, error) {
	var s Status
	err := c.call("status", nil, &s)
	return s, err
}

// HMITagSchema mirrors control.hmiTagSchema on the wire.
type HMITagSchema struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Writable bool   `json:"writable"`
	Label    string `json:"label,omitempty"`
}

// HMISchema fetches the resource's published HMI tag list.
func (c *Client) HMISchema() ([]HMITagSchema, error) {
	var tags []HMITagSchema
	err := c.call("hmi.schema.get", nil, &tags)
	return tags, err
}

// HMIValues fetches the current values of the given HMI tag ids.
func (c *Client) HMIValues(ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	err := c.call("hmi.values.get", struct {
		IDs []string `json:"ids"`
	}{IDs: ids}, &out)
	return out, err
}

// ReadAddress reads one direct address's current value.
func (c *Client) ReadAddress(address string) (string, error) {
	var v string
	err := c.call("io.read", struct {
		Address string `json:"address"`
	}{Address: address}, &v)
	return v, err
}

// WriteAddress writes one direct address's value.
func (c *Client) WriteAddress(address, value string) error {
	return c.call("io.write", struct {
		Address string `json:"address"`
		Value   string `json:"value"`
	}{Address: address, Value: value}, nil)
}

// ForceAddress pins a direct address to value until UnforceAddress is called.
func (c *Client) ForceAddress(address, value string) error {
	return c.call("io.force", struct {
		Address string `json:"address"`
		Value   string `json:"value"`
	}{Address: address, Value: value}, nil)
}

// UnforceAddress releases a previously forced direct address.
func (c *Client) UnforceAddress(address string) error {
	return c.call("io.unforce", struct {
		Address string `json:"address"`
	}{Address: address}, nil)
}
