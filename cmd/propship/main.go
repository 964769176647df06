package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/propship/internal/cliconfig"
	"github.com/bft-labs/propship/pkg/log"
	"github.com/bft-labs/propship/pkg/propship"
)

const longHelp = `Replicate .properties files from a watched directory to a store server.

The client watches a directory, sends the filtered entries of each new file
over TCP and deletes the file once the server acknowledges it. Files the
server rejects, or that are not acknowledged in time, move to a failed
directory. The server merges incoming entries into one store file per name,
optionally keeping a backup of the previous version.

Configuration is read from a TOML or YAML file (sections [client] and
[server]), then PROPSHIP_* environment variables, then flags.`

var exampleUsage = strings.TrimSpace(`
  propship server --store-dir /var/lib/propship --backup
  propship client --monitored-dir /etc/app/outbox --server-host replica --filter 'db\..*'
  propship client --config $HOME/.propship/config.toml --ack-wait push
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// runnable is the part of Client and Server the CLI drives.
type runnable interface {
	Start(ctx context.Context) error
	Stop() error
	Status() propship.State
	Err() error
	Done() <-chan struct{}
}

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "propship",
		Short:         "Replicate .properties files to a store server",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.propship/config.toml)")

	root.AddCommand(clientCommand(&cfgPath), serverCommand(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "propship:", err)
		os.Exit(1)
	}
}

// changedFlags returns the names of flags set on the command line.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// loadFile loads the config file if one exists at the given or default path.
func loadFile(cfgPath string) (*cliconfig.FileConfig, error) {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	if cfgFile == "" || !cliconfig.FileExists(cfgFile) {
		if cfgPath != "" {
			return nil, fmt.Errorf("config file %s not found", cfgPath)
		}
		return nil, nil
	}
	fc, err := cliconfig.LoadFileConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &fc, nil
}

func clientCommand(cfgPath *string) *cobra.Command {
	cfg := cliconfig.DefaultClientConfig()

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Watch a directory and send new files to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := changedFlags(cmd)

			fc, err := loadFile(*cfgPath)
			if err != nil {
				return err
			}
			if fc != nil {
				if err := cliconfig.ApplyClientFileConfig(&cfg, fc.Client, changed); err != nil {
					return err
				}
			}
			if err := cliconfig.ApplyClientEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := log.New(log.Options{
				Level:     cfg.LogLevel,
				File:      cfg.LogFile,
				Component: "client",
			})
			if err != nil {
				return err
			}
			defer logger.Close()

			l := logger.Logger()
			l.Info().Interface("config", cfg).Msg("configuration")

			c, err := propship.NewClient(propship.ClientConfig{
				ServerAddr:      cfg.ServerAddr(),
				AckWait:         propship.AckWait(cfg.AckWait),
				AckAddr:         cfg.AckAddr(),
				AckTimeout:      cfg.AckTimeout,
				DialTimeout:     cfg.DialTimeout,
				DialAttempts:    cfg.DialAttempts,
				MonitoredDir:    cfg.MonitoredDir,
				FailedDir:       cfg.FailedDir,
				Extension:       cfg.Extension,
				Filter:          cfg.Filter,
				ProcessInterval: cfg.ProcessInterval,
				SettleDelay:     cfg.SettleDelay,
				ScanExisting:    cfg.ScanExisting,
			}, propship.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("create client: %w", err)
			}
			return run(c, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.ServerHost, "server-host", cfg.ServerHost, "server host")
	f.IntVar(&cfg.ServerPort, "server-port", cfg.ServerPort, "server port")
	f.StringVar(&cfg.AckHost, "ack-host", cfg.AckHost, "listen host for pushed acknowledgments (default all interfaces)")
	f.IntVar(&cfg.AckPort, "ack-port", cfg.AckPort, "listen port for pushed acknowledgments")
	f.StringVar(&cfg.AckWait, "ack-wait", cfg.AckWait, "acknowledgment strategy: inline, timed or push")
	f.DurationVar(&cfg.AckTimeout, "ack-timeout", cfg.AckTimeout, "timeout for timed and push acknowledgments")
	f.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "server connect timeout")
	f.IntVar(&cfg.DialAttempts, "dial-attempts", cfg.DialAttempts, "connection attempts per file")
	f.StringVar(&cfg.MonitoredDir, "monitored-dir", cfg.MonitoredDir, "directory to watch (required)")
	f.StringVar(&cfg.FailedDir, "failed-dir", cfg.FailedDir, "directory for files that failed to replicate")
	f.StringVar(&cfg.Extension, "extension", cfg.Extension, "file extension to replicate")
	f.StringVar(&cfg.Filter, "filter", cfg.Filter, "regular expression keys must fully match")
	f.DurationVar(&cfg.ProcessInterval, "process-interval", cfg.ProcessInterval, "pause after each processed file")
	f.DurationVar(&cfg.SettleDelay, "settle-delay", cfg.SettleDelay, "wait between a file appearing and reading it")
	f.BoolVar(&cfg.ScanExisting, "scan-existing", cfg.ScanExisting, "send files already present at startup")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "append-only log file")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	return cmd
}

func serverCommand(cfgPath *string) *cobra.Command {
	cfg := cliconfig.DefaultServerConfig()

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept files from clients and merge them into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := changedFlags(cmd)

			fc, err := loadFile(*cfgPath)
			if err != nil {
				return err
			}
			if fc != nil {
				if err := cliconfig.ApplyServerFileConfig(&cfg, fc.Server, changed); err != nil {
					return err
				}
			}
			if err := cliconfig.ApplyServerEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := log.New(log.Options{
				Level:     cfg.LogLevel,
				File:      cfg.LogFile,
				Component: "server",
			})
			if err != nil {
				return err
			}
			defer logger.Close()

			l := logger.Logger()
			l.Info().Interface("config", cfg).Msg("configuration")

			s, err := propship.NewServer(propship.ServerConfig{
				ListenAddr:     cfg.ListenAddr(),
				StoreDir:       cfg.StoreDir,
				Overwrite:      !cfg.Append,
				Backup:         cfg.Backup,
				AckMode:        propship.AckMode(cfg.AckMode),
				AckHost:        cfg.AckHost,
				AckPort:        cfg.AckPort,
				MaxHandlers:    cfg.MaxHandlers,
				HandlerTimeout: cfg.HandlerTimeout,
				AuditCacheSize: cfg.AuditCacheSize,
			}, propship.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			return run(s, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.ListenHost, "listen-host", cfg.ListenHost, "listen host (default all interfaces)")
	f.IntVar(&cfg.Port, "port", cfg.Port, "listen port")
	f.StringVar(&cfg.StoreDir, "store-dir", cfg.StoreDir, "store directory")
	f.BoolVar(&cfg.Append, "append", cfg.Append, "merge incoming entries into existing store files")
	f.BoolVar(&cfg.Backup, "backup", cfg.Backup, "back up store files before replacing them")
	f.StringVar(&cfg.AckMode, "ack-mode", cfg.AckMode, "acknowledgment delivery: inline or push")
	f.StringVar(&cfg.AckHost, "ack-host", cfg.AckHost, "host for pushed acknowledgments (default the sending client)")
	f.IntVar(&cfg.AckPort, "ack-port", cfg.AckPort, "client port for pushed acknowledgments")
	f.IntVar(&cfg.MaxHandlers, "max-handlers", cfg.MaxHandlers, "maximum concurrently handled connections")
	f.DurationVar(&cfg.HandlerTimeout, "handler-timeout", cfg.HandlerTimeout, "I/O deadline per connection")
	f.IntVar(&cfg.AuditCacheSize, "audit-cache-size", cfg.AuditCacheSize, "filenames tracked for duplicate detection")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "append-only log file")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	return cmd
}

// run starts r and blocks until a signal arrives or r stops on its own.
func run(r runnable, logger *log.Zerolog) error {
	l := logger.Logger()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	select {
	case sig := <-sigCh:
		l.Info().Str("signal", sig.String()).Msg("received signal, stopping...")
	case <-r.Done():
		if r.Status() == propship.StateCrashed {
			l.Error().Err(r.Err()).Msg("crashed")
			return r.Err()
		}
	}

	if err := r.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	l.Info().Msg("stopped")
	return nil
}
