package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	toml "github.com/pelletier/go-toml/v2"
)

// ClientFileConfig mirrors ClientConfig but uses strings for durations to make TOML friendly.
type ClientFileConfig struct {
	ServerHost      string `toml:"server_host" yaml:"server_host"`
	ServerPort      int    `toml:"server_port" yaml:"server_port"`
	AckHost         string `toml:"ack_host" yaml:"ack_host"`
	AckPort         int    `toml:"ack_port" yaml:"ack_port"`
	AckWait         string `toml:"ack_wait" yaml:"ack_wait"`
	AckTimeout      string `toml:"ack_timeout" yaml:"ack_timeout"`
	DialTimeout     string `toml:"dial_timeout" yaml:"dial_timeout"`
	DialAttempts    int    `toml:"dial_attempts" yaml:"dial_attempts"`
	MonitoredDir    string `toml:"monitored_dir" yaml:"monitored_dir"`
	FailedDir       string `toml:"failed_dir" yaml:"failed_dir"`
	Extension       string `toml:"extension" yaml:"extension"`
	Filter          string `toml:"filter" yaml:"filter"`
	ProcessInterval string `toml:"process_interval" yaml:"process_interval"`
	SettleDelay     string `toml:"settle_delay" yaml:"settle_delay"`
	ScanExisting    *bool  `toml:"scan_existing" yaml:"scan_existing"`
	LogFile         string `toml:"log_file" yaml:"log_file"`
	LogLevel        string `toml:"log_level" yaml:"log_level"`
}

// ServerFileConfig mirrors ServerConfig but uses strings for durations to make TOML friendly.
type ServerFileConfig struct {
	ListenHost     string `toml:"listen_host" yaml:"listen_host"`
	Port           int    `toml:"port" yaml:"port"`
	StoreDir       string `toml:"store_dir" yaml:"store_dir"`
	Append         *bool  `toml:"append" yaml:"append"`
	Backup         *bool  `toml:"backup" yaml:"backup"`
	AckMode        string `toml:"ack_mode" yaml:"ack_mode"`
	AckHost        string `toml:"ack_host" yaml:"ack_host"`
	AckPort        int    `toml:"ack_port" yaml:"ack_port"`
	MaxHandlers    int    `toml:"max_handlers" yaml:"max_handlers"`
	HandlerTimeout string `toml:"handler_timeout" yaml:"handler_timeout"`
	AuditCacheSize int    `toml:"audit_cache_size" yaml:"audit_cache_size"`
	LogFile        string `toml:"log_file" yaml:"log_file"`
	LogLevel       string `toml:"log_level" yaml:"log_level"`
}

// FileConfig is the on-disk configuration with one table per role.
type FileConfig struct {
	Client ClientFileConfig `toml:"client" yaml:"client"`
	Server ServerFileConfig `toml:"server" yaml:"server"`
}

// LoadFileConfig reads and parses a config file from the given path.
// Files ending in .yaml or .yml are parsed as YAML, anything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.propship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".propship", "config.toml")
	}
	return ""
}

// ApplyClientFileConfig applies the [client] table to cfg.
// It respects flags that have been explicitly set (changed map).
func ApplyClientFileConfig(cfg *ClientConfig, fc ClientFileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("server-host", fc.ServerHost, &cfg.ServerHost)
	s.setString("ack-host", fc.AckHost, &cfg.AckHost)
	s.setString("ack-wait", fc.AckWait, &cfg.AckWait)
	s.setString("monitored-dir", fc.MonitoredDir, &cfg.MonitoredDir)
	s.setString("failed-dir", fc.FailedDir, &cfg.FailedDir)
	s.setString("extension", fc.Extension, &cfg.Extension)
	s.setString("filter", fc.Filter, &cfg.Filter)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("server-port", fc.ServerPort, &cfg.ServerPort)
	s.setInt("ack-port", fc.AckPort, &cfg.AckPort)
	s.setInt("dial-attempts", fc.DialAttempts, &cfg.DialAttempts)

	if err := s.setDuration("ack-timeout", fc.AckTimeout, &cfg.AckTimeout); err != nil {
		return err
	}
	if err := s.setDuration("dial-timeout", fc.DialTimeout, &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("process-interval", fc.ProcessInterval, &cfg.ProcessInterval); err != nil {
		return err
	}
	if err := s.setDuration("settle-delay", fc.SettleDelay, &cfg.SettleDelay); err != nil {
		return err
	}

	s.setBool("scan-existing", fc.ScanExisting, &cfg.ScanExisting)

	return nil
}

// ApplyServerFileConfig applies the [server] table to cfg.
// It respects flags that have been explicitly set (changed map).
func ApplyServerFileConfig(cfg *ServerConfig, fc ServerFileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen-host", fc.ListenHost, &cfg.ListenHost)
	s.setString("store-dir", fc.StoreDir, &cfg.StoreDir)
	s.setString("ack-mode", fc.AckMode, &cfg.AckMode)
	s.setString("ack-host", fc.AckHost, &cfg.AckHost)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("port", fc.Port, &cfg.Port)
	s.setInt("ack-port", fc.AckPort, &cfg.AckPort)
	s.setInt("max-handlers", fc.MaxHandlers, &cfg.MaxHandlers)
	s.setInt("audit-cache-size", fc.AuditCacheSize, &cfg.AuditCacheSize)

	if err := s.setDuration("handler-timeout", fc.HandlerTimeout, &cfg.HandlerTimeout); err != nil {
		return err
	}

	s.setBool("append", fc.Append, &cfg.Append)
	s.setBool("backup", fc.Backup, &cfg.Backup)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
