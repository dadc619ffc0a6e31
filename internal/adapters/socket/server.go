package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxMessage bounds one request line. Documents travel inline, so this is
// larger than a typical control message.
const maxMessage = 32 * 1024 * 1024

// AppQueries is what the daemon exposes to socket and HTTP clients.
// Implementations must be safe for concurrent use.
type AppQueries interface {
	Health() HealthResult
	Match(ctx context.Context, params MatchParams) (MatchResult, error)
	Reindex(ctx context.Context) (ReindexResult, error)
}

// Server is the daemon side of the protocol, listening on a Unix socket.
type Server struct {
	queries  AppQueries
	logger   *zap.Logger
	listener net.Listener
	sockPath string

	ctx    context.Context
	cancel context.CancelFunc

	shutdownCh   chan struct{} // closed when a remote shutdown request is received
	shutdownOnce sync.Once
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a server answering requests with queries.
func NewServer(queries AppQueries, sockPath string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		queries:    queries,
		logger:     logger.Named("socket"),
		sockPath:   sockPath,
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
	}
}

// Start begins listening. An existing socket file that nobody answers on is
// treated as stale and replaced.
func (s *Server) Start() error {
	if _, err := os.Stat(s.sockPath); err == nil {
		conn, err := net.DialTimeout("unix", s.sockPath, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return fmt.Errorf("daemon already running at %s", s.sockPath)
		}
		s.logger.Info("removing stale socket", zap.String("path", s.sockPath))
		os.Remove(s.sockPath)
	}

	ln, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, cancels in-flight requests, waits for
// connections to finish and removes the socket file. Idempotent.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener == nil {
			return
		}
		s.listener.Close()
		s.wg.Wait()
		os.Remove(s.sockPath)
	})
	return nil
}

// ShutdownCh is closed when a client sends a shutdown request.
func (s *Server) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

// Addr returns the socket path.
func (s *Server) Addr() string {
	return s.sockPath
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner when the server stops.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxMessage)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(conn, Response{Error: "invalid request JSON"})
			continue
		}

		s.writeResponse(conn, s.handleRequest(req))

		if req.Method == MethodShutdown {
			s.shutdownOnce.Do(func() { close(s.shutdownCh) })
			return
		}
	}
	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		s.logger.Debug("connection closed", zap.Error(err))
	}
}

func (s *Server) handleRequest(req Request) Response {
	switch req.Method {
	case MethodHealth:
		return okResponse(req.ID, s.queries.Health())
	case MethodMatch:
		return s.handleMatch(req)
	case MethodReindex:
		return s.handleReindex(req)
	case MethodShutdown:
		return okResponse(req.ID, struct{}{})
	default:
		return Response{ID: req.ID, Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func (s *Server) handleMatch(req Request) Response {
	var params MatchParams
	if len(req.Params) == 0 {
		return Response{ID: req.ID, Error: "missing match params"}
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return Response{ID: req.ID, Error: "invalid match params"}
	}

	result, err := s.queries.Match(s.ctx, params)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return okResponse(req.ID, result)
}

func (s *Server) handleReindex(req Request) Response {
	result, err := s.queries.Reindex(s.ctx)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return okResponse(req.ID, result)
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}
