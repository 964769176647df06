package cliconfig

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/propship/internal/domain"
)

// Acknowledgment strategies.
const (
	AckWaitInline = "inline"
	AckWaitTimed  = "timed"
	AckWaitPush   = "push"

	AckModeInline = "inline"
	AckModePush   = "push"
)

// ClientConfig holds CLI configuration for the replication client.
type ClientConfig struct {
	ServerHost string
	ServerPort int

	AckHost    string
	AckPort    int
	AckWait    string
	AckTimeout time.Duration

	DialTimeout  time.Duration
	DialAttempts int

	MonitoredDir    string
	FailedDir       string
	Extension       string
	Filter          string
	ProcessInterval time.Duration
	SettleDelay     time.Duration
	ScanExisting    bool

	LogFile  string
	LogLevel string
}

// ServerConfig holds CLI configuration for the store server.
type ServerConfig struct {
	ListenHost string
	Port       int

	StoreDir string
	Append   bool
	Backup   bool

	AckMode string
	AckHost string
	AckPort int

	MaxHandlers    int
	HandlerTimeout time.Duration
	AuditCacheSize int

	LogFile  string
	LogLevel string
}

// DefaultClientConfig returns a ClientConfig with default values.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerHost:   "localhost",
		ServerPort:   8080,
		AckPort:      9090,
		AckWait:      AckWaitInline,
		AckTimeout:   10 * time.Second,
		DialTimeout:  5 * time.Second,
		DialAttempts: 1,
		FailedDir:    "failed",
		Extension:    ".properties",
		Filter:       ".*",
		SettleDelay:  100 * time.Millisecond,
		ScanExisting: true,
		LogLevel:     "info",
	}
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		StoreDir:       "store",
		Append:         true,
		AckMode:        AckModeInline,
		AckPort:        9090,
		MaxHandlers:    64,
		HandlerTimeout: 30 * time.Second,
		AuditCacheSize: 256,
		LogLevel:       "info",
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

func validateLogLevel(level string) error {
	if level == "" {
		return nil
	}
	if _, err := zerolog.ParseLevel(level); err != nil {
		return invalid("log-level %q: %v", level, err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *ClientConfig) Validate() error {
	if c.MonitoredDir == "" {
		return invalid("monitored-dir is required")
	}
	if c.ServerHost == "" {
		return invalid("server-host is required")
	}
	if !validPort(c.ServerPort) {
		return invalid("server-port %d out of range", c.ServerPort)
	}

	switch c.AckWait {
	case AckWaitInline, AckWaitTimed:
	case AckWaitPush:
		if !validPort(c.AckPort) {
			return invalid("ack-port %d out of range", c.AckPort)
		}
	default:
		return invalid("unknown ack-wait %q (want inline, timed or push)", c.AckWait)
	}

	if c.AckTimeout <= 0 {
		return invalid("ack-timeout must be positive")
	}
	if c.DialTimeout <= 0 {
		return invalid("dial-timeout must be positive")
	}
	if c.DialAttempts < 1 {
		return invalid("dial-attempts must be at least 1")
	}
	if c.ProcessInterval < 0 || c.SettleDelay < 0 {
		return invalid("process-interval and settle-delay must not be negative")
	}
	if c.FailedDir == "" {
		return invalid("failed-dir is required")
	}
	if c.Extension == "" {
		return invalid("extension is required")
	}
	if _, err := regexp.Compile(`^(?:` + c.Filter + `)$`); err != nil {
		return invalid("filter %q: %v", c.Filter, err)
	}
	return validateLogLevel(c.LogLevel)
}

// ServerAddr returns the host:port the client sends to.
func (c *ClientConfig) ServerAddr() string {
	return joinHostPort(c.ServerHost, c.ServerPort)
}

// AckAddr returns the host:port the ack listener binds in push mode.
func (c *ClientConfig) AckAddr() string {
	return joinHostPort(c.AckHost, c.AckPort)
}

// Validate checks the configuration for errors.
func (c *ServerConfig) Validate() error {
	if !validPort(c.Port) {
		return invalid("port %d out of range", c.Port)
	}
	if c.StoreDir == "" {
		return invalid("store-dir is required")
	}

	switch c.AckMode {
	case AckModeInline:
	case AckModePush:
		if !validPort(c.AckPort) {
			return invalid("ack-port %d out of range", c.AckPort)
		}
	default:
		return invalid("unknown ack-mode %q (want inline or push)", c.AckMode)
	}

	if c.MaxHandlers <= 0 {
		return invalid("max-handlers must be positive")
	}
	if c.HandlerTimeout <= 0 {
		return invalid("handler-timeout must be positive")
	}
	if c.AuditCacheSize <= 0 {
		return invalid("audit-cache-size must be positive")
	}
	return validateLogLevel(c.LogLevel)
}

// ListenAddr returns the host:port the server binds.
func (c *ServerConfig) ListenAddr() string {
	return joinHostPort(c.ListenHost, c.Port)
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
