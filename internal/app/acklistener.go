package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
	"github.com/bft-labs/propship/internal/protocol"
)

// DefaultAckIdleTimeout bounds how long an ack connection may stay silent.
const DefaultAckIdleTimeout = 30 * time.Second

// AckListenerConfig configures an AckListener.
type AckListenerConfig struct {
	// Addr is the host:port to listen on.
	Addr string
	// MonitoredDir is where source files of late acknowledgments live.
	MonitoredDir string
	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration
}

// AckListener receives acknowledgments pushed by the server. Each line
// resolves a pending send when one exists. Otherwise a Success removes the
// source file and any stale quarantine copy, and a Failure is ignored.
type AckListener struct {
	cfg      AckListenerConfig
	pending  *PendingSet
	disposer ports.Disposer
	logger   ports.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewAckListener creates an AckListener. pending may be nil when no sends
// wait for pushed acknowledgments.
func NewAckListener(cfg AckListenerConfig, pending *PendingSet, disposer ports.Disposer, logger ports.Logger) *AckListener {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultAckIdleTimeout
	}
	return &AckListener{cfg: cfg, pending: pending, disposer: disposer, logger: logger}
}

// Listen binds the listening socket.
func (l *AckListener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen for acks on %s: %w", l.cfg.Addr, err)
	}
	l.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *AckListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Run accepts connections until ctx is done.
func (l *AckListener) Run(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	defer func() {
		ln.Close()
		l.mu.Lock()
		l.ln = nil
		l.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	l.logger.Info("ack listener started", ports.String("addr", ln.Addr().String()))

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept ack connection: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.serve(ctx, conn)
		}()
	}
}

func (l *AckListener) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	r := bufio.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(l.cfg.IdleTimeout))
		line, err := r.ReadString('\n')
		if line != "" {
			l.HandleLine(line)
		}
		if err != nil {
			return
		}
	}
}

// HandleLine applies a single acknowledgment line.
func (l *AckListener) HandleLine(line string) {
	ack, err := protocol.ParseAck(line)
	if err != nil {
		l.logger.Warn("ignoring malformed ack", ports.Err(err))
		return
	}

	if l.pending != nil && l.pending.Resolve(ack) {
		l.logger.Debug("ack resolved pending send",
			ports.String("file", ack.Filename),
			ports.String("status", string(ack.Status)),
		)
		return
	}

	if ack.Status != domain.StatusSuccess {
		l.logger.Info("late failure ack ignored", ports.String("file", ack.Filename))
		return
	}

	name := filepath.Base(ack.Filename)
	if l.cfg.MonitoredDir != "" {
		if err := l.disposer.Delete(filepath.Join(l.cfg.MonitoredDir, name)); err != nil {
			l.logger.Error("delete acknowledged source failed",
				ports.String("file", name),
				ports.Err(err),
			)
		}
	}
	cleared, err := l.disposer.ClearQuarantined(name)
	if err != nil {
		l.logger.Error("clear quarantined copy failed",
			ports.String("file", name),
			ports.Err(err),
		)
		return
	}
	l.logger.Info("late success ack applied",
		ports.String("file", name),
		ports.Bool("quarantine_cleared", cleared),
	)
}
