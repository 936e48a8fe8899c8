// Package server 实现了面向MQTT客户端的TCP服务端
package server

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/connection"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/database"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/overlay"
)

const (
	defaultMaxConnections = 10000
	connectTimeout        = time.Minute
	storeTimeout          = 5 * time.Second
)

type Server struct {
	address       string
	overlay       *overlay.Session
	bridgeConfig  *config.BridgeConfig
	store         database.SessionStore
	connections   *connection.ConnectionManager
	sem           chan struct{}
	maxPacketSize int

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	handlers sync.WaitGroup
}

// NewServer creates a server whose clients share zsession and bridgeConfig.
// store may be nil, session records are then not kept.
func NewServer(cfg config.MQTTConfig, zsession *overlay.Session, bridgeConfig *config.BridgeConfig, store database.SessionStore) *Server {
	maxConnections := cfg.MaxConnections
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	if store == nil {
		store = database.NewMemoryStore()
	}
	return &Server{
		address:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		overlay:      zsession,
		bridgeConfig: bridgeConfig,
		store:        store,
		connections:  connection.NewConnectionManager(),
		sem:           make(chan struct{}, maxConnections),
		maxPacketSize: cfg.MaxPacketSize,
	}
}

func (s *Server) Connections() *connection.ConnectionManager {
	return s.connections
}

// Listen binds the listening socket. Serve must be called afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	logger.InfoF("MQTT Server Listen On %s", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until the server is closed. ctx is handed to
// every bridge operation started by a client.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.ErrorF("Accept connection error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		logger.DebugF("Accepted new connection from %s", conn.RemoteAddr().String())

		s.sem <- struct{}{}
		s.handlers.Add(1)
		go func(c net.Conn) {
			defer func() {
				<-s.sem
				s.handlers.Done()
			}()
			handler := newConnectionHandler(s, connection.NewConnection(c))
			handler.handleConnection(ctx)
		}(conn)
	}
}

// Start listens and serves in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	go func() {
		if err := s.Serve(ctx); err != nil {
			logger.ErrorF("MQTT Server stopped, details: %v", err)
		}
	}()
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown closes the listener and every client connection, then waits for
// the connection handlers to finish until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.ErrorF("Server close error: %v", err)
		}
	}
	s.connections.CloseAll()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

type ShutdownCallback struct {
	server *Server
}

func NewShutdownCallback(server *Server) *ShutdownCallback {
	return &ShutdownCallback{server: server}
}

func (sc *ShutdownCallback) Invoke(ctx context.Context) error {
	logger.Info("Closing MQTT server")
	return sc.server.Shutdown(ctx)
}
