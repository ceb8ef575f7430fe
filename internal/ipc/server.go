package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
	"github.com/1broseidon/wingroup/internal/remote"
)

// Service is what the daemon exposes over IPC.
type Service interface {
	Status(ctx context.Context) (StatusData, error)
	Reload() error
	ListGroups(ctx context.Context) (GroupsData, error)
	JoinGroup(ctx context.Context, source, target group.Identity) error
	LeaveGroup(ctx context.Context, w group.Identity) error
	MergeGroups(ctx context.Context, source, target group.Identity) error
	SetBounds(ctx context.Context, w group.Identity, r platform.Rect) (BoundsData, error)
	MoveTo(ctx context.Context, w group.Identity, x, y int) (BoundsData, error)
	MoveBy(ctx context.Context, w group.Identity, dx, dy int) (BoundsData, error)
	ResizeTo(ctx context.Context, w group.Identity, width, height int) (BoundsData, error)
	BeginDrag(ctx context.Context, w group.Identity) error
	DragTo(ctx context.Context, w group.Identity, r platform.Rect) error
	EndDrag(ctx context.Context, w group.Identity) error
	PeerService
}

// PeerService handles commands sent by other daemons of the mesh.
type PeerService interface {
	ResolveWindow(ctx context.Context, id group.Identity) (remote.Resolution, error)
	GroupMembers(ctx context.Context, req remote.MembersRequest) (remote.MembersReply, error)
	RemoteLeave(ctx context.Context, req remote.LeaveRequest) error
	WatchWindow(ctx context.Context, req remote.WatchRequest) error
	RemoteGroupChanged(ctx context.Context, notice remote.GroupChangedNotice) error
	RemoteSetBounds(ctx context.Context, req remote.SetBoundsRequest) error
}

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	service      Service
	logger       *slog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server listening on socketPath once started.
func NewServer(socketPath string, service Service, logger *slog.Logger) (*Server, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("failed to resolve IPC socket path: empty path")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		service:    service,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)

	go s.acceptLoop()

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	resp := s.handleCommand(req)

	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal IPC response", "error", err)
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Warn("failed to send IPC response", "error", err)
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	ctx := s.ctx
	s.logger.Debug("IPC request", "command", req.Command)

	switch req.Command {
	case CommandReload:
		if err := s.service.Reload(); err != nil {
			return NewErrorResponse(fmt.Sprintf("Failed to reload config: %v", err))
		}
		return ok(nil)
	case CommandGetStatus:
		return result(s.service.Status(ctx))
	case CommandListGroups:
		return result(s.service.ListGroups(ctx))

	case CommandJoinGroup:
		return handle(req.Payload, func(p PairPayload) (any, error) {
			return nil, s.service.JoinGroup(ctx, p.Source, p.Target)
		})
	case CommandLeaveGroup:
		return handle(req.Payload, func(p WindowPayload) (any, error) {
			return nil, s.service.LeaveGroup(ctx, p.Window)
		})
	case CommandMergeGroups:
		return handle(req.Payload, func(p PairPayload) (any, error) {
			return nil, s.service.MergeGroups(ctx, p.Source, p.Target)
		})
	case CommandSetBounds:
		return handle(req.Payload, func(p BoundsPayload) (any, error) {
			return s.service.SetBounds(ctx, p.Window, p.Bounds)
		})
	case CommandMoveTo:
		return handle(req.Payload, func(p MoveToPayload) (any, error) {
			return s.service.MoveTo(ctx, p.Window, p.X, p.Y)
		})
	case CommandMoveBy:
		return handle(req.Payload, func(p MoveByPayload) (any, error) {
			return s.service.MoveBy(ctx, p.Window, p.DX, p.DY)
		})
	case CommandResizeTo:
		return handle(req.Payload, func(p ResizeToPayload) (any, error) {
			return s.service.ResizeTo(ctx, p.Window, p.Width, p.Height)
		})
	case CommandBeginDrag:
		return handle(req.Payload, func(p WindowPayload) (any, error) {
			return nil, s.service.BeginDrag(ctx, p.Window)
		})
	case CommandDragTo:
		return handle(req.Payload, func(p BoundsPayload) (any, error) {
			return nil, s.service.DragTo(ctx, p.Window, p.Bounds)
		})
	case CommandEndDrag:
		return handle(req.Payload, func(p WindowPayload) (any, error) {
			return nil, s.service.EndDrag(ctx, p.Window)
		})

	case CommandResolveWindow:
		return handle(req.Payload, func(p ResolvePayload) (any, error) {
			return s.service.ResolveWindow(ctx, p.Window)
		})
	case CommandGroupMembers:
		return handle(req.Payload, func(p remote.MembersRequest) (any, error) {
			return s.service.GroupMembers(ctx, p)
		})
	case CommandRemoteLeave:
		return handle(req.Payload, func(p remote.LeaveRequest) (any, error) {
			return nil, s.service.RemoteLeave(ctx, p)
		})
	case CommandWatchWindow:
		return handle(req.Payload, func(p remote.WatchRequest) (any, error) {
			return nil, s.service.WatchWindow(ctx, p)
		})
	case CommandRemoteGroupChanged:
		return handle(req.Payload, func(p remote.GroupChangedNotice) (any, error) {
			return nil, s.service.RemoteGroupChanged(ctx, p)
		})
	case CommandRemoteSetBounds:
		return handle(req.Payload, func(p remote.SetBoundsRequest) (any, error) {
			return nil, s.service.RemoteSetBounds(ctx, p)
		})

	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

// handle decodes a payload of type P, runs fn and wraps the result.
func handle[P any](payload json.RawMessage, fn func(P) (any, error)) *Response {
	var p P
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return NewErrorResponse(fmt.Sprintf("Invalid payload: %v", err))
		}
	}
	data, err := fn(p)
	if err != nil {
		return errorResponse(err)
	}
	return ok(data)
}

func result[T any](data T, err error) *Response {
	if err != nil {
		return errorResponse(err)
	}
	return ok(data)
}

func ok(data any) *Response {
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func errorResponse(err error) *Response {
	resp := NewErrorResponse(err.Error())
	switch {
	case errors.Is(err, bounds.ErrConstraintViolation):
		resp.Code = CodeConstraintViolation
	case errors.Is(err, remote.ErrResolution):
		resp.Code = CodeResolution
	case errors.Is(err, ErrNotFound), errors.Is(err, platform.ErrWindowNotFound):
		resp.Code = CodeNotFound
	}
	return resp
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
}
