package control

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kaiserkarel/mcron/internal/cronerr"
)

// Handler processes one request. It returns once the request was handled.
type Handler func(ctx context.Context, req Request) error

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log.With().Str("component", "control").Logger() }
}

// WithSentinel sets the line that selects the system list.
func WithSentinel(sentinel string) Option {
	return func(s *Server) { s.sentinel = sentinel }
}

// WithLimit caps how many requests per second are served.
func WithLimit(perSecond float64, burst int) Option {
	return func(s *Server) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithReadTimeout bounds how long a client may take to send its line.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// Server accepts reload requests one connection at a time.
type Server struct {
	path        string
	sentinel    string
	readTimeout time.Duration
	limiter     *rate.Limiter
	log         zerolog.Logger

	ln   net.Listener
	once sync.Once
}

// Listen binds the socket at path. A socket file left behind by a dead daemon
// is replaced; one that still accepts connections is an error.
func Listen(path string, opts ...Option) (*Server, error) {
	s := &Server{
		path:        path,
		sentinel:    DefaultSentinel,
		readTimeout: 5 * time.Second,
		limiter:     rate.NewLimiter(rate.Limit(20), 20),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := os.Stat(path); err == nil {
		if c, err := net.DialTimeout("unix", path, time.Second); err == nil {
			c.Close()
			return nil, cronerr.Newf(cronerr.CategoryBind, "control socket %s is in use", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, cronerr.Wrap(err, cronerr.CategoryBind, "cannot remove stale control socket")
		}
		s.log.Warn().Str("path", path).Msg("removed stale control socket")
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, cronerr.Wrap(err, cronerr.CategoryBind, "cannot bind control socket")
	}
	if err := os.Chmod(path, 0o666); err != nil {
		ln.Close()
		return nil, cronerr.Wrap(err, cronerr.CategoryBind, "cannot open control socket to users")
	}
	s.ln = ln
	return s, nil
}

// Path is the socket path.
func (s *Server) Path() string { return s.path }

// Serve accepts connections until ctx is cancelled or Close is called. Each
// request is handed to h and waited for before the next connection is
// accepted. Handler errors are logged; they never stop the server.
func (s *Server) Serve(ctx context.Context, h Handler) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.log.Info().Str("path", s.path).Msg("control socket listening")
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "accept")
		}

		line, err := s.read(conn)
		if err != nil {
			s.log.Warn().Err(err).Msg("cannot read control request")
			continue
		}
		req, ok := Decode(line, s.sentinel)
		if !ok {
			s.log.Debug().Msg("empty control request")
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}
		log := s.log.With().Str("identity", req.Identity).Str("list", req.List.String()).Logger()
		log.Debug().Msg("reload requested")
		if err := h(ctx, req); err != nil {
			log.Error().Err(err).Msg("reload failed")
		}
	}
}

func (s *Server) read(conn net.Conn) (string, error) {
	defer conn.Close()
	if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(io.LimitReader(conn, maxRequest)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ln.Close()
		if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
			err = rerr
		}
	})
	return err
}
