package propship

import (
	"context"
	"net"
	"os"

	"github.com/pkg/errors"

	"github.com/bft-labs/propship/internal/adapters/fs"
	"github.com/bft-labs/propship/internal/adapters/tcp"
	"github.com/bft-labs/propship/internal/app"
	"github.com/bft-labs/propship/internal/ports"
)

// Server accepts transmissions and merges them into its store directory.
// Use NewServer() to create an instance, then Start() to begin accepting.
type Server struct {
	*runner

	cfg        ServerConfig
	dispatcher *app.Dispatcher
}

// NewServer creates a Server in StateStopped.
// Returns an error if configuration is invalid.
func NewServer(cfg ServerConfig, opts ...Option) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	store := fs.NewStore(fs.StoreConfig{
		Dir:    cfg.StoreDir,
		Append: !cfg.Overwrite,
		Backup: cfg.Backup,
	}, logger)

	var responder ports.AckResponder
	switch cfg.AckMode {
	case AckModePush:
		responder = tcp.NewPushResponder(cfg.AckHost, cfg.AckPort, cfg.HandlerTimeout)
	default:
		responder = tcp.NewInlineResponder(cfg.HandlerTimeout)
	}

	dispatcher, err := app.NewDispatcher(app.DispatcherConfig{
		Addr:           cfg.ListenAddr,
		MaxHandlers:    cfg.MaxHandlers,
		HandlerTimeout: cfg.HandlerTimeout,
		AuditCacheSize: cfg.AuditCacheSize,
	}, store, responder, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		runner:     newRunner("server", o),
		cfg:        cfg,
		dispatcher: dispatcher,
	}, nil
}

// Start binds the listen address and accepts connections in the background.
// The provided context is used for the lifetime of the server.
func (s *Server) Start(ctx context.Context) error {
	return s.start(ctx, s.prepare, worker{name: "dispatcher", run: s.dispatcher.Run})
}

func (s *Server) prepare() error {
	if err := os.MkdirAll(s.cfg.StoreDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating store dir %s", s.cfg.StoreDir)
	}
	return s.dispatcher.Listen()
}

// Addr returns the bound listen address while running.
func (s *Server) Addr() net.Addr {
	return s.dispatcher.Addr()
}
