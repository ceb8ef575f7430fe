package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
	"github.com/1broseidon/wingroup/internal/remote"
	"github.com/1broseidon/wingroup/internal/runtimepath"
)

// ErrNotFound matches daemon errors for windows that could not be found.
var ErrNotFound = errors.New("window not found")

// DaemonError is an error response returned by a daemon.
type DaemonError struct {
	Code    string
	Message string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("daemon error: %s", e.Message)
}

// Is maps error codes back to the sentinels they were produced from.
func (e *DaemonError) Is(target error) bool {
	switch e.Code {
	case CodeConstraintViolation:
		return target == bounds.ErrConstraintViolation
	case CodeResolution:
		return target == remote.ErrResolution
	case CodeNotFound:
		return target == ErrNotFound
	}
	return false
}

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client for the daemon with the given runtime
// id ("" for the default daemon).
func NewClient(runtimeID string) *Client {
	socketPath, err := runtimepath.SocketPath(runtimeID)
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewSocketClient(socketPath, 5*time.Second)
}

// NewSocketClient creates a client for an explicit socket path. A zero
// timeout means requests only end with their context.
func NewSocketClient(socketPath string, timeout time.Duration) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// SocketPath returns the socket the client talks to.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(ctx context.Context, req *Request) (*Response, error) {
	var dialer net.Dialer
	if c.timeout > 0 {
		dialer.Timeout = c.timeout
	}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	if deadline, ok := c.deadline(ctx); ok {
		conn.SetDeadline(deadline)
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Status == "ERROR" {
		return nil, &DaemonError{Code: resp.Code, Message: resp.Error}
	}

	return &resp, nil
}

func (c *Client) deadline(ctx context.Context) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if c.timeout > 0 {
		local := time.Now().Add(c.timeout)
		if !ok || local.Before(deadline) {
			return local, true
		}
	}
	return deadline, ok
}

// call sends command with payload and decodes the response data into out
// when out is non-nil.
func (c *Client) call(ctx context.Context, command CommandType, payload, out any) error {
	req := &Request{Command: command}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", command, err)
		}
		req.Payload = data
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", command, err)
	}
	return nil
}

// Reload sends a RELOAD command to the daemon
func (c *Client) Reload() error {
	return c.call(context.Background(), CommandReload, nil, nil)
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	var status StatusData
	if err := c.call(context.Background(), CommandGetStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListGroups retrieves every group and tracked window.
func (c *Client) ListGroups() (*GroupsData, error) {
	var data GroupsData
	if err := c.call(context.Background(), CommandListGroups, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// JoinGroup adds source to target's group.
func (c *Client) JoinGroup(source, target group.Identity) error {
	return c.call(context.Background(), CommandJoinGroup, PairPayload{Source: source, Target: target}, nil)
}

// LeaveGroup removes a window from its group.
func (c *Client) LeaveGroup(w group.Identity) error {
	return c.call(context.Background(), CommandLeaveGroup, WindowPayload{Window: w}, nil)
}

// MergeGroups moves every member of source's group into target's group.
func (c *Client) MergeGroups(source, target group.Identity) error {
	return c.call(context.Background(), CommandMergeGroups, PairPayload{Source: source, Target: target}, nil)
}

// SetBounds moves and resizes a window, propagating to its group.
func (c *Client) SetBounds(w group.Identity, r platform.Rect) (*BoundsData, error) {
	var data BoundsData
	if err := c.call(context.Background(), CommandSetBounds, BoundsPayload{Window: w, Bounds: r}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// MoveTo moves a window's origin, translating its group with it.
func (c *Client) MoveTo(w group.Identity, x, y int) (*BoundsData, error) {
	var data BoundsData
	if err := c.call(context.Background(), CommandMoveTo, MoveToPayload{Window: w, X: x, Y: y}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// MoveBy translates a window and its group.
func (c *Client) MoveBy(w group.Identity, dx, dy int) (*BoundsData, error) {
	var data BoundsData
	if err := c.call(context.Background(), CommandMoveBy, MoveByPayload{Window: w, DX: dx, DY: dy}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ResizeTo resizes a window keeping its origin, propagating to its group.
func (c *Client) ResizeTo(w group.Identity, width, height int) (*BoundsData, error) {
	var data BoundsData
	if err := c.call(context.Background(), CommandResizeTo, ResizeToPayload{Window: w, Width: width, Height: height}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// BeginDrag starts an interactive gesture led by w.
func (c *Client) BeginDrag(w group.Identity) error {
	return c.call(context.Background(), CommandBeginDrag, WindowPayload{Window: w}, nil)
}

// DragTo reports an intermediate rect of an interactive gesture.
func (c *Client) DragTo(w group.Identity, r platform.Rect) error {
	return c.call(context.Background(), CommandDragTo, BoundsPayload{Window: w, Bounds: r}, nil)
}

// EndDrag ends the gesture led by w.
func (c *Client) EndDrag(w group.Identity) error {
	return c.call(context.Background(), CommandEndDrag, WindowPayload{Window: w}, nil)
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
