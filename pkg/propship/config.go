package propship

import (
	"fmt"
	"regexp"
	"time"

	"github.com/bft-labs/propship/internal/app"
	"github.com/bft-labs/propship/internal/domain"
)

// AckWait selects how the client waits for an acknowledgment.
type AckWait string

const (
	// AckWaitInline blocks on the transmission connection for one line.
	AckWaitInline AckWait = "inline"
	// AckWaitTimed polls the transmission connection for up to AckTimeout.
	AckWaitTimed AckWait = "timed"
	// AckWaitPush waits for the server to dial the client's ack listener.
	AckWaitPush AckWait = "push"
)

// AckMode selects how the server delivers acknowledgments.
type AckMode string

const (
	// AckModeInline writes the acknowledgment on the transmission connection.
	AckModeInline AckMode = "inline"
	// AckModePush dials the client's ack listener.
	AckModePush AckMode = "push"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// ServerAddr is the host:port of the server.
	ServerAddr string

	// AckWait selects the acknowledgment strategy.
	AckWait AckWait
	// AckAddr is the listen address for pushed acknowledgments.
	AckAddr string
	// AckTimeout bounds timed and push waits.
	AckTimeout time.Duration

	DialTimeout  time.Duration
	DialAttempts int

	// MonitoredDir is watched for new files. It must exist.
	MonitoredDir string
	// FailedDir receives files whose transmission failed.
	FailedDir string
	// Extension selects which files are sent.
	Extension string
	// Filter is a regular expression that keys must fully match.
	Filter string

	ProcessInterval time.Duration
	SettleDelay     time.Duration
	ScanExisting    bool
}

// DefaultClientConfig returns a ClientConfig with default values.
// MonitoredDir must still be set.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerAddr:   "localhost:8080",
		AckWait:      AckWaitInline,
		AckAddr:      ":9090",
		AckTimeout:   10 * time.Second,
		DialTimeout:  5 * time.Second,
		DialAttempts: 1,
		FailedDir:    "failed",
		Extension:    app.DefaultExtension,
		Filter:       app.DefaultFilter,
		SettleDelay:  app.DefaultSettleDelay,
		ScanExisting: true,
	}
}

// SetDefaults fills zero values with defaults. Booleans are left as is.
func (c *ClientConfig) SetDefaults() {
	d := DefaultClientConfig()
	if c.ServerAddr == "" {
		c.ServerAddr = d.ServerAddr
	}
	if c.AckWait == "" {
		c.AckWait = d.AckWait
	}
	if c.AckAddr == "" {
		c.AckAddr = d.AckAddr
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = d.AckTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.DialAttempts == 0 {
		c.DialAttempts = d.DialAttempts
	}
	if c.FailedDir == "" {
		c.FailedDir = d.FailedDir
	}
	if c.Extension == "" {
		c.Extension = d.Extension
	}
	if c.Filter == "" {
		c.Filter = d.Filter
	}
}

// Validate checks the configuration for errors.
func (c *ClientConfig) Validate() error {
	if c.MonitoredDir == "" {
		return fmt.Errorf("%w: monitored dir is required", domain.ErrInvalidConfig)
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("%w: server address is required", domain.ErrInvalidConfig)
	}
	switch c.AckWait {
	case AckWaitInline, AckWaitTimed:
	case AckWaitPush:
		if c.AckAddr == "" {
			return fmt.Errorf("%w: ack address is required for push acks", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ack wait %q", domain.ErrInvalidConfig, c.AckWait)
	}
	if c.AckTimeout <= 0 || c.DialTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", domain.ErrInvalidConfig)
	}
	if c.DialAttempts < 1 {
		return fmt.Errorf("%w: dial attempts must be at least 1", domain.ErrInvalidConfig)
	}
	if c.ProcessInterval < 0 || c.SettleDelay < 0 {
		return fmt.Errorf("%w: intervals must not be negative", domain.ErrInvalidConfig)
	}
	if _, err := regexp.Compile(`^(?:` + c.Filter + `)$`); err != nil {
		return fmt.Errorf("%w: filter %q: %v", domain.ErrInvalidConfig, c.Filter, err)
	}
	return nil
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// ListenAddr is the host:port to accept transmissions on.
	ListenAddr string

	// StoreDir holds one store file per transmitted filename.
	StoreDir string
	// Overwrite replaces the store file with the incoming entries. By
	// default incoming entries are merged into the existing file.
	Overwrite bool
	// Backup keeps the previous store file under StoreDir/backup.
	Backup bool

	// AckMode selects the acknowledgment delivery.
	AckMode AckMode
	// AckHost overrides the host pushed acks are sent to. When empty the
	// ack goes to the host the transmission came from.
	AckHost string
	// AckPort is the client ack listener port for pushed acks.
	AckPort int

	MaxHandlers    int
	HandlerTimeout time.Duration
	AuditCacheSize int
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		StoreDir:       "store",
		AckMode:        AckModeInline,
		AckPort:        9090,
		MaxHandlers:    app.DefaultMaxHandlers,
		HandlerTimeout: app.DefaultHandlerTimeout,
		AuditCacheSize: app.DefaultAuditCacheSize,
	}
}

// SetDefaults fills zero values with defaults. Booleans are left as is.
func (c *ServerConfig) SetDefaults() {
	d := DefaultServerConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.StoreDir == "" {
		c.StoreDir = d.StoreDir
	}
	if c.AckMode == "" {
		c.AckMode = d.AckMode
	}
	if c.AckPort == 0 {
		c.AckPort = d.AckPort
	}
	if c.MaxHandlers == 0 {
		c.MaxHandlers = d.MaxHandlers
	}
	if c.HandlerTimeout == 0 {
		c.HandlerTimeout = d.HandlerTimeout
	}
	if c.AuditCacheSize == 0 {
		c.AuditCacheSize = d.AuditCacheSize
	}
}

// Validate checks the configuration for errors.
func (c *ServerConfig) Validate() error {
	if c.StoreDir == "" {
		return fmt.Errorf("%w: store dir is required", domain.ErrInvalidConfig)
	}
	switch c.AckMode {
	case AckModeInline:
	case AckModePush:
		if c.AckPort <= 0 || c.AckPort > 65535 {
			return fmt.Errorf("%w: ack port %d out of range", domain.ErrInvalidConfig, c.AckPort)
		}
	default:
		return fmt.Errorf("%w: unknown ack mode %q", domain.ErrInvalidConfig, c.AckMode)
	}
	if c.MaxHandlers <= 0 || c.HandlerTimeout <= 0 || c.AuditCacheSize <= 0 {
		return fmt.Errorf("%w: handler limits must be positive", domain.ErrInvalidConfig)
	}
	return nil
}
