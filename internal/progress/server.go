package progress

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
)

// Server binds a hub to an address.
type Server struct {
	hub *Hub
	srv *http.Server
	ln  net.Listener
}

// Listen opens addr for the hub. Use "127.0.0.1:0" to pick a free port.
func Listen(addr string, hub *Hub) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot listen on progress address "+addr).
			WithContext("cause", err.Error())
	}
	return &Server{
		hub: hub,
		ln:  ln,
		srv: &http.Server{
			Handler:           hub.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until ctx ends, then shuts the hub and server down.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hubErr := s.hub.Shutdown(shutdownCtx)
	srvErr := s.srv.Shutdown(shutdownCtx)
	return errors.CombineErrors(hubErr, srvErr)
}
