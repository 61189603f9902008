package echo

import (
	"context"
	"net"
	"sync"

	"github.com/ringo-is-a-color/lastcall/conf"
	"github.com/ringo-is-a-color/lastcall/shutdown"
	"github.com/ringo-is-a-color/lastcall/util/contextutil"
	"github.com/ringo-is-a-color/lastcall/util/errors"
	"github.com/ringo-is-a-color/lastcall/util/ioutil"
	"github.com/ringo-is-a-color/lastcall/util/log"
	"github.com/ringo-is-a-color/lastcall/util/netutil"
)

const serviceName = "echo"

// Server echoes every byte a client sends back to it. Clients outside the allow list are
// disconnected right after being accepted.
type Server struct {
	addr  string
	allow conf.AllowList

	ready     chan struct{}
	readyOnce sync.Once
	listener  net.Addr

	mu     sync.Mutex
	closed bool
	conns  map[*net.TCPConn]struct{}
	wg     sync.WaitGroup
}

func NewServer(addr string, allow conf.AllowList) *Server {
	return &Server{
		addr:  addr,
		allow: allow,
		ready: make(chan struct{}),
		conns: make(map[*net.TCPConn]struct{}),
	}
}

// ListenAndServe blocks until ctx is done or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	return s.listenAndServe(ctx, nil)
}

func (s *Server) listenAndServe(ctx context.Context, listening func(addr net.Addr)) error {
	return netutil.ListenTCPAndServeWithListenerCallback(ctx, s.addr, func(conn *net.TCPConn) {
		s.serve(ctx, conn)
	}, func(ln net.Listener) {
		s.readyOnce.Do(func() {
			s.listener = ln.Addr()
			close(s.ready)
		})
		log.Info("the echo server is listening", "addr", ln.Addr())
		if listening != nil {
			listening(ln.Addr())
		}
	}, nil)
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is nil until Ready is closed. It's the address of the first listener when
// ListenAndServe is called more than once.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.listener
	default:
		return nil
	}
}

func (s *Server) serve(ctx context.Context, conn *net.TCPConn) {
	ctx = contextutil.WithSourceAndServiceValues(ctx, conn.RemoteAddr().String(), serviceName)
	remote := conn.RemoteAddr().(*net.TCPAddr).AddrPort().Addr()
	if !s.allow.Allows(remote) {
		log.Debug("reject a client not in the allow list", contextutil.LogArgs(ctx)...)
		_ = conn.Close()
		return
	}
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	n, err := ioutil.Echo(conn)
	_ = conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		log.InfoWithError("fail to echo", err, contextutil.LogArgs(ctx)...)
		return
	}
	log.Debug("a client disconnected", append(contextutil.LogArgs(ctx), "bytes", n)...)
}

func (s *Server) track(conn *net.TCPConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *net.TCPConn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Conns is the number of clients being served.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client and waits for their handlers to return. It doesn't close the
// listener, cancel the context passed to ListenAndServe for that.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var err error
	for conn := range s.conns {
		closeErr := conn.Close()
		if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = errors.Join(err, closeErr)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
	return errors.WithStack(err)
}

// CleanupAction stops accepting clients by calling stopListening, disconnects the clients and
// completes once served, the result of ListenAndServe, yields.
func (s *Server) CleanupAction(stopListening context.CancelFunc, served <-chan error) shutdown.Action {
	return shutdown.Async(func(ctx context.Context) <-chan error {
		done := make(chan error, 1)
		go func() {
			stopListening()
			closeErr := s.Close()
			select {
			case err := <-served:
				done <- errors.Join(err, closeErr)
			case <-ctx.Done():
				done <- errors.Join(closeErr, errors.WithStack(ctx.Err()))
			}
		}()
		return done
	})
}
