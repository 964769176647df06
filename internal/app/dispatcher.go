package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
	"github.com/bft-labs/propship/internal/protocol"
)

// Default dispatcher configuration values.
const (
	DefaultMaxHandlers    = 64
	DefaultHandlerTimeout = 30 * time.Second
	DefaultAuditCacheSize = 256
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Addr is the host:port to listen on.
	Addr string
	// MaxHandlers bounds concurrently handled connections.
	MaxHandlers int
	// HandlerTimeout bounds the I/O of one connection.
	HandlerTimeout time.Duration
	// AuditCacheSize is the number of filenames whose last checksum is kept.
	AuditCacheSize int
}

// Dispatcher accepts connections and hands each one to a bounded handler
// that reads one envelope, stores it and acknowledges it.
type Dispatcher struct {
	cfg       DispatcherConfig
	store     ports.EntryStore
	responder ports.AckResponder
	logger    ports.Logger
	audit     *lru.Cache

	mu sync.Mutex
	ln net.Listener
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig, store ports.EntryStore, responder ports.AckResponder, logger ports.Logger) (*Dispatcher, error) {
	if cfg.MaxHandlers <= 0 {
		cfg.MaxHandlers = DefaultMaxHandlers
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = DefaultHandlerTimeout
	}
	if cfg.AuditCacheSize <= 0 {
		cfg.AuditCacheSize = DefaultAuditCacheSize
	}
	audit, err := lru.New(cfg.AuditCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create audit cache: %w", err)
	}
	return &Dispatcher{
		cfg:       cfg,
		store:     store,
		responder: responder,
		logger:    logger,
		audit:     audit,
	}, nil
}

// Listen binds the listening socket.
func (d *Dispatcher) Listen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", d.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.cfg.Addr, err)
	}
	d.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (d *Dispatcher) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

// Run accepts connections until ctx is done, then waits for in-flight
// handlers.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.Listen(); err != nil {
		return err
	}
	d.mu.Lock()
	ln := d.ln
	d.mu.Unlock()
	defer func() {
		ln.Close()
		d.mu.Lock()
		d.ln = nil
		d.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	d.logger.Info("server listening",
		ports.String("addr", ln.Addr().String()),
		ports.Int("max_handlers", d.cfg.MaxHandlers),
	)

	var g errgroup.Group
	g.SetLimit(d.cfg.MaxHandlers)
	defer g.Wait()

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
			return fmt.Errorf("accept: %w", err)
		}
		g.Go(func() error {
			d.Handle(ctx, conn)
			return nil
		})
	}
}

// Handle serves one connection: one envelope in, one acknowledgment out.
func (d *Dispatcher) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connID := uuid.NewString()
	remote := conn.RemoteAddr().String()

	if err := conn.SetDeadline(time.Now().Add(d.cfg.HandlerTimeout)); err != nil {
		d.logger.Warn("set deadline failed", ports.String("conn_id", connID), ports.Err(err))
	}

	env, err := protocol.ReadEnvelope(conn)
	if err != nil {
		d.logger.Error("read envelope failed",
			ports.String("conn_id", connID),
			ports.String("remote", remote),
			ports.Err(err),
		)
		return
	}

	checksum := protocol.Checksum(env.Map())
	filename, entries := env.Split()
	d.recordChecksum(connID, filename, checksum)

	ok := d.persist(ctx, connID, filename, entries)
	ack := domain.Ack{Filename: filename, Status: domain.StatusOf(ok)}
	if err := d.responder.Respond(ctx, conn, ack); err != nil {
		d.logger.Error("send ack failed",
			ports.String("conn_id", connID),
			ports.String("file", filename),
			ports.Err(err),
		)
		return
	}
	d.logger.Info("transmission handled",
		ports.String("conn_id", connID),
		ports.String("remote", remote),
		ports.String("file", filename),
		ports.String("status", string(ack.Status)),
		ports.Int("entries", len(entries)),
	)
}

func (d *Dispatcher) persist(ctx context.Context, connID, filename string, entries domain.EntrySet) bool {
	name, err := domain.StoreName(filename)
	if err != nil {
		d.logger.Error("rejecting transmission",
			ports.String("conn_id", connID),
			ports.String("file", filename),
			ports.Err(err),
		)
		return false
	}
	res, err := d.store.Write(ctx, name, entries)
	if err != nil {
		d.logger.Error("store write failed",
			ports.String("conn_id", connID),
			ports.String("file", name),
			ports.Err(err),
		)
		return false
	}
	d.logger.Debug("entries stored",
		ports.String("conn_id", connID),
		ports.String("path", res.Path),
		ports.String("backup", res.BackupPath),
		ports.Int("total", res.Entries),
	)
	return true
}

func (d *Dispatcher) recordChecksum(connID, filename, checksum string) {
	prev, seen := d.audit.Get(filename)
	d.audit.Add(filename, checksum)
	if seen && prev.(string) == checksum {
		d.logger.Warn("duplicate delivery",
			ports.String("conn_id", connID),
			ports.String("file", filename),
			ports.String("checksum", checksum),
		)
		return
	}
	d.logger.Debug("content checksum",
		ports.String("conn_id", connID),
		ports.String("file", filename),
		ports.String("checksum", checksum),
	)
}
