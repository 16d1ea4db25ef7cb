package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mockdeck/mockdeck/pkg/admin"
	"github.com/mockdeck/mockdeck/pkg/config"
	"github.com/mockdeck/mockdeck/pkg/engine"
	"github.com/mockdeck/mockdeck/pkg/logging"
	"github.com/mockdeck/mockdeck/pkg/proxy"
	"github.com/mockdeck/mockdeck/pkg/recording"
)

// serveFlags holds all flags for the serve command.
type serveFlags struct {
	configPath string
	host       string
	port       int
	hostSet    bool
	portSet    bool

	record         string
	saveDir        string
	saveConfig     string
	smartPaths     bool
	duplicates     string
	includePaths   []string
	excludePaths   []string
	excludeMethods []string

	adminAddr       string
	logLevel        string
	logFormat       string
	logOutput       io.Writer
	shutdownTimeout time.Duration
	bufferSize      int
	printURL        bool
	quiet           bool
}

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve mocks from a configuration file, or record an upstream",
	Long: `Serve the requests described in a configuration file until interrupted.

With --record, every request is forwarded to the given upstream instead and
the real responses are relayed back. Add --save-dir to turn the recorded
traffic into body files and a configuration that replays it.

Every exchange is printed to stdout as it completes. SIGHUP reloads the
configuration file and restarts the listener, printing the URL again when
--print-url is set. SIGINT or SIGTERM stop it.`,
	Example: `  # Serve a configuration file
  mockdeck serve --config mocks.yaml

  # Let the OS pick a port and print the URL
  mockdeck serve --config mocks.yaml --port 0 --print-url

  # Record an upstream and save the traffic as mocks
  mockdeck serve --record https://api.example.com --save-dir ./recorded --smart-paths

  # Expose the admin API alongside the mock server
  mockdeck serve --config mocks.yaml --admin 127.0.0.1:4290`,
	RunE: runServe,
}

func init() {
	f := &serveFlagVals

	serveCmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to configuration file (YAML or JSON)")
	serveCmd.Flags().StringVar(&f.host, "host", config.DefaultHostname, "Bind address (overrides the configuration file)")
	serveCmd.Flags().IntVarP(&f.port, "port", "p", config.DefaultPort, "Port (0 = OS auto-assign, overrides the configuration file)")
	serveCmd.Flags().StringVar(&f.record, "record", "", "Forward every request to this upstream base URL")
	serveCmd.Flags().StringVar(&f.saveDir, "save-dir", "", "Write recorded bodies and a replay configuration to this directory")
	serveCmd.Flags().StringVar(&f.saveConfig, "save-config", "", "Replay configuration path (default <save-dir>/mockdeck.yaml)")
	serveCmd.Flags().BoolVar(&f.smartPaths, "smart-paths", false, "Replace ID-like path segments with * in recorded definitions")
	serveCmd.Flags().StringVar(&f.duplicates, "duplicates", string(recording.StrategyLast), "Which exchange to keep when a method and path repeat (first, last)")
	serveCmd.Flags().StringSliceVar(&f.includePaths, "include", nil, "Only record paths matching these globs")
	serveCmd.Flags().StringSliceVar(&f.excludePaths, "exclude", nil, "Never record paths matching these globs")
	serveCmd.Flags().StringSliceVar(&f.excludeMethods, "exclude-method", nil, "Never record these methods")
	serveCmd.Flags().StringVar(&f.adminAddr, "admin", "", "Serve the admin API on this address")
	serveCmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	serveCmd.Flags().StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	serveCmd.Flags().DurationVar(&f.shutdownTimeout, "shutdown-timeout", 0, "How long to wait for in-flight requests on stop (0 = no limit)")
	serveCmd.Flags().IntVar(&f.bufferSize, "buffer-size", engine.DefaultExchangeBufferSize, "Exchanges replayed to new subscribers (0 = unbounded)")
	serveCmd.Flags().BoolVar(&f.printURL, "print-url", false, "Print the server URL to stdout on startup")
	serveCmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print exchanges")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	f := serveFlagVals
	f.hostSet = cmd.Flags().Changed("host")
	f.portSet = cmd.Flags().Changed("port")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	return serve(ctx, &f, cmd.OutOrStdout(), reload)
}

// configuration builds the run configuration from the file (if any) and the
// flags that override it.
func (f *serveFlags) configuration() (*config.Configuration, error) {
	var cfg *config.Configuration
	if f.configPath != "" {
		loaded, err := config.LoadFromFile(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if f.hostSet {
			cfg.Hostname = f.host
		}
		if f.portSet {
			cfg.Port = f.port
		}
	} else {
		empty, err := config.New(f.host, f.port)
		if err != nil {
			return nil, err
		}
		cfg = empty
	}

	if f.record != "" {
		cfg.Record = &config.RecordConfig{BaseURL: f.record}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// recordFilter returns nil when no filter flag was given.
func (f *serveFlags) recordFilter() (*proxy.Filter, error) {
	if len(f.includePaths) == 0 && len(f.excludePaths) == 0 && len(f.excludeMethods) == 0 {
		return nil, nil
	}
	filter := &proxy.Filter{
		IncludePaths:   f.includePaths,
		ExcludePaths:   f.excludePaths,
		ExcludeMethods: f.excludeMethods,
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return filter, nil
}

func (f *serveFlags) savePath() string {
	if f.saveConfig != "" {
		return f.saveConfig
	}
	return filepath.Join(f.saveDir, "mockdeck.yaml")
}

// serve runs the server until ctx is done. Every value received on reload
// re-reads the configuration and restarts the listener with it.
func serve(ctx context.Context, f *serveFlags, out io.Writer, reload <-chan os.Signal) error {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(f.logLevel),
		Format: logging.ParseFormat(f.logFormat),
		Output: f.logOutput,
	})

	cfg, err := f.configuration()
	if err != nil {
		return err
	}
	filter, err := f.recordFilter()
	if err != nil {
		return err
	}
	if f.saveDir != "" && !cfg.RecordMode() {
		return errors.New("--save-dir requires record mode (--record or a record section in the configuration)")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := engine.NewServer(
		engine.WithLogger(log),
		engine.WithMetricsRegistry(reg),
		engine.WithShutdownTimeout(f.shutdownTimeout),
		engine.WithRecordFilter(filter),
		engine.WithExchangeBufferSize(f.bufferSize),
		engine.WithRecordingBufferSize(f.bufferSize),
	)

	var wg sync.WaitGroup
	defer wg.Wait()

	var collector *recording.Collector
	if f.saveDir != "" {
		strategy, err := recording.ParseStrategy(f.duplicates)
		if err != nil {
			return err
		}
		conv := recording.NewConverter(recording.Options{Dir: f.saveDir, SmartPaths: f.smartPaths})
		collector = recording.NewCollector(conv, strategy, log.With("component", "recording"))

		sub := srv.SubscribeToRecordedExchanges()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sub.Close()
			collector.Run(context.Background(), sub.C())
		}()
	}

	if !f.quiet {
		sub := srv.SubscribeToNetworkExchanges()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sub.Close()
			for ex := range sub.C() {
				fmt.Fprintln(out, ex.String())
			}
		}()
	}

	// Close completes the streams, which ends both goroutines above.
	defer func() { _ = srv.Close() }()

	if err := srv.Start(cfg); err != nil {
		if isAddrInUse(err) {
			return fmt.Errorf("port %d is already in use, try --port 0 for auto-assign", cfg.Port)
		}
		return fmt.Errorf("failed to start server: %w", err)
	}
	warnFileFormatProblems(log, cfg)

	if f.printURL {
		fmt.Fprintln(out, srv.URL())
	}

	if f.adminAddr != "" {
		api := admin.New(srv,
			admin.WithLogger(log.With("component", "admin")),
			admin.WithGatherer(reg),
		)
		if err := api.Start(f.adminAddr); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = api.Stop(stopCtx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			if err := srv.Close(); err != nil {
				log.Warn("error while stopping server", "error", err)
			}
			wg.Wait()
			if collector != nil {
				return saveRecording(log, f, cfg, collector)
			}
			return nil

		case <-reload:
			next, err := f.configuration()
			if err != nil {
				log.Error("reload failed, keeping current configuration", "error", err)
				continue
			}
			if err := srv.Restart(next); err != nil {
				log.Error("restart failed", "error", err)
				continue
			}
			cfg = next
			warnFileFormatProblems(log, cfg)
			if f.printURL {
				fmt.Fprintln(out, srv.URL())
			}
			log.Info("configuration reloaded", "requests", cfg.Requests.Len())
		}
	}
}

func warnFileFormatProblems(log *slog.Logger, cfg *config.Configuration) {
	for _, problem := range cfg.Requests.FileFormatProblems() {
		log.Warn("body file does not match its content type", "error", problem)
	}
}

func saveRecording(log *slog.Logger, f *serveFlags, cfg *config.Configuration, c *recording.Collector) error {
	if c.Len() == 0 {
		log.Info("nothing recorded")
		return nil
	}
	path := f.savePath()
	if err := c.WriteConfig(path, cfg.Hostname, cfg.Port); err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	log.Info("recording saved", "path", path, "requests", c.Len())
	return nil
}

func isAddrInUse(err error) bool {
	var terr *engine.TransportError
	return errors.As(err, &terr) && errors.Is(terr.Err, syscall.EADDRINUSE)
}
