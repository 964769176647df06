package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by propship.
const EnvPrefix = "PROPSHIP_"

func env(name string) string { return os.Getenv(EnvPrefix + name) }

// ApplyClientEnvConfig applies PROPSHIP_* environment variables to cfg.
// Values override the config file but not explicitly set flags.
func ApplyClientEnvConfig(cfg *ClientConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("server-host", env("SERVER_HOST"), &cfg.ServerHost)
	s.setString("ack-host", env("ACK_HOST"), &cfg.AckHost)
	s.setString("ack-wait", env("ACK_WAIT"), &cfg.AckWait)
	s.setString("monitored-dir", env("MONITORED_DIR"), &cfg.MonitoredDir)
	s.setString("failed-dir", env("FAILED_DIR"), &cfg.FailedDir)
	s.setString("extension", env("EXTENSION"), &cfg.Extension)
	s.setString("filter", env("FILTER"), &cfg.Filter)
	s.setString("log-file", env("LOG_FILE"), &cfg.LogFile)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setIntFromString("server-port", env("SERVER_PORT"), &cfg.ServerPort); err != nil {
		return err
	}
	if err := s.setIntFromString("ack-port", env("ACK_PORT"), &cfg.AckPort); err != nil {
		return err
	}
	if err := s.setIntFromString("dial-attempts", env("DIAL_ATTEMPTS"), &cfg.DialAttempts); err != nil {
		return err
	}

	if err := s.setDuration("ack-timeout", env("ACK_TIMEOUT"), &cfg.AckTimeout); err != nil {
		return err
	}
	if err := s.setDuration("dial-timeout", env("DIAL_TIMEOUT"), &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("process-interval", env("PROCESS_INTERVAL"), &cfg.ProcessInterval); err != nil {
		return err
	}
	if err := s.setDuration("settle-delay", env("SETTLE_DELAY"), &cfg.SettleDelay); err != nil {
		return err
	}

	s.setBoolFromString("scan-existing", env("SCAN_EXISTING"), &cfg.ScanExisting)

	return nil
}

// ApplyServerEnvConfig applies PROPSHIP_* environment variables to cfg.
// Values override the config file but not explicitly set flags.
func ApplyServerEnvConfig(cfg *ServerConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen-host", env("LISTEN_HOST"), &cfg.ListenHost)
	s.setString("store-dir", env("STORE_DIR"), &cfg.StoreDir)
	s.setString("ack-mode", env("ACK_MODE"), &cfg.AckMode)
	s.setString("ack-host", env("ACK_HOST"), &cfg.AckHost)
	s.setString("log-file", env("LOG_FILE"), &cfg.LogFile)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setIntFromString("port", env("PORT"), &cfg.Port); err != nil {
		return err
	}
	if err := s.setIntFromString("ack-port", env("ACK_PORT"), &cfg.AckPort); err != nil {
		return err
	}
	if err := s.setIntFromString("max-handlers", env("MAX_HANDLERS"), &cfg.MaxHandlers); err != nil {
		return err
	}
	if err := s.setIntFromString("audit-cache-size", env("AUDIT_CACHE_SIZE"), &cfg.AuditCacheSize); err != nil {
		return err
	}

	if err := s.setDuration("handler-timeout", env("HANDLER_TIMEOUT"), &cfg.HandlerTimeout); err != nil {
		return err
	}

	s.setBoolFromString("append", env("APPEND"), &cfg.Append)
	s.setBoolFromString("backup", env("BACKUP"), &cfg.Backup)

	return nil
}
