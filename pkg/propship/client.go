package propship

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/bft-labs/propship/internal/adapters/fs"
	"github.com/bft-labs/propship/internal/adapters/tcp"
	"github.com/bft-labs/propship/internal/app"
	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
)

// Client watches a directory and replicates new files to a Server.
// Use NewClient() to create an instance, then Start() to begin watching.
type Client struct {
	*runner

	cfg     ClientConfig
	watcher *app.Watcher
	acks    *app.AckListener
}

// NewClient creates a Client in StateStopped.
// Returns an error if configuration is invalid.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	filter, err := app.NewKeyFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}
	quarantine := fs.NewQuarantine(cfg.FailedDir)

	var (
		waiter ports.AckWaiter
		acks   *app.AckListener
	)
	switch cfg.AckWait {
	case AckWaitTimed:
		waiter = tcp.NewTimedWaiter(cfg.AckTimeout, quarantine, logger)
	case AckWaitPush:
		pending := app.NewPendingSet(cfg.AckTimeout)
		waiter = pending
		acks = app.NewAckListener(app.AckListenerConfig{
			Addr:         cfg.AckAddr,
			MonitoredDir: cfg.MonitoredDir,
		}, pending, quarantine, logger)
	default:
		waiter = tcp.NewInlineWaiter()
	}

	sender := app.NewSender(app.SenderConfig{DialAttempts: cfg.DialAttempts},
		tcp.NewDialer(cfg.ServerAddr, cfg.DialTimeout), waiter, quarantine, logger)

	watcher := app.NewWatcher(app.WatcherConfig{
		Dir:             cfg.MonitoredDir,
		Extension:       cfg.Extension,
		SettleDelay:     cfg.SettleDelay,
		ProcessInterval: cfg.ProcessInterval,
		ScanExisting:    cfg.ScanExisting,
	}, filter, fs.NewPropertiesReader(), sender, logger)

	return &Client{
		runner:  newRunner("client", o),
		cfg:     cfg,
		watcher: watcher,
		acks:    acks,
	}, nil
}

// Start begins watching in the background and returns once the watch and,
// in push mode, the ack listener are set up.
// The provided context is used for the lifetime of the client.
func (c *Client) Start(ctx context.Context) error {
	workers := []worker{{name: "watcher", run: c.watcher.Run}}
	if c.acks != nil {
		workers = append(workers, worker{name: "ack-listener", run: c.acks.Run})
	}
	return c.start(ctx, c.prepare, workers...)
}

func (c *Client) prepare() error {
	info, err := os.Stat(c.cfg.MonitoredDir)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWatchInvalid, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrWatchInvalid, c.cfg.MonitoredDir)
	}
	if c.acks != nil {
		return c.acks.Listen()
	}
	return nil
}

// AckAddr returns the address of the push ack listener while running, or
// nil when not in push mode.
func (c *Client) AckAddr() net.Addr {
	if c.acks == nil {
		return nil
	}
	return c.acks.Addr()
}
