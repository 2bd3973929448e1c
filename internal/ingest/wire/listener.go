package wire

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"brokle-tracehub/internal/engine"
)

// Listener accepts tracing-producer connections on a single address
// and hands each one to a session loop (spec.md §6 "Ingress binary
// protocol"), mirroring ingress.rs's accept-loop-per-thread shape with
// a goroutine-per-connection instead.
type Listener struct {
	addr     string
	facade   *engine.Facade
	logger   *slog.Logger
	nextConn uint64

	ln net.Listener
}

// NewListener prepares a wire listener; call Start to begin accepting.
func NewListener(addr string, facade *engine.Facade, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{addr: addr, facade: facade, logger: logger}
}

// Start binds addr and accepts connections until ctx is canceled.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	l.logger.Info("wire: listening", "addr", l.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Error("wire: accept failed", "error", err)
			return err
		}
		instanceID := atomic.AddUint64(&l.nextConn, 1)
		s := &session{conn: conn, facade: l.facade, logger: l.logger, instanceID: instanceID}
		go s.run()
	}
}

func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}
