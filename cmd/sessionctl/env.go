package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/GoCodeAlone/sessionarchive/config"
	"github.com/GoCodeAlone/sessionarchive/objstore"
	"github.com/GoCodeAlone/sessionarchive/observability"
	"github.com/GoCodeAlone/sessionarchive/observability/tracing"
	"github.com/GoCodeAlone/sessionarchive/sessionstore"
	"go.opentelemetry.io/otel/trace"
)

// Output destinations, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	stdoutMu sync.Mutex
)

// printf writes one line of command output. Concurrent sessions share stdout.
func printf(format string, args ...any) {
	stdoutMu.Lock()
	defer stdoutMu.Unlock()
	fmt.Fprintf(stdout, format, args...) //nolint:gosec // G705: CLI output
}

const shutdownTimeout = 5 * time.Second

// commonFlags are accepted by every command that touches storage. Non-empty
// values override the configuration file.
type commonFlags struct {
	config   string
	driver   string
	bucket   string
	basePath string
	localDir string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "YAML configuration file")
	fs.StringVar(&c.driver, "driver", "", "Storage driver (overrides backend.driver)")
	fs.StringVar(&c.bucket, "bucket", "", "Bucket name (overrides store.bucket)")
	fs.StringVar(&c.basePath, "base-path", "", "Key prefix ending in \"/\" (overrides store.basePath)")
	fs.StringVar(&c.localDir, "local-dir", "", "Staging directory (overrides store.localDir)")
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
func (c *commonFlags) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if c.config != "" {
		loaded, err := config.LoadFromFile(c.config)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if c.driver != "" {
		cfg.Backend.Driver = c.driver
	}
	if c.bucket != "" {
		cfg.Store.Bucket = c.bucket
	}
	if c.basePath != "" {
		cfg.Store.BasePath = c.basePath
	}
	if c.localDir != "" {
		cfg.Store.LocalDir = c.localDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

// env is everything a command needs to run operations against the store.
type env struct {
	store    *sessionstore.Store
	client   objstore.Client
	logger   *slog.Logger
	metrics  *observability.Metrics
	sessions *tracing.SessionTracer
	provider *tracing.Provider
}

func openEnv(ctx context.Context, flags *commonFlags) (*env, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.Logging, stderr)
	if err != nil {
		return nil, err
	}

	e := &env{logger: logger, metrics: observability.NewMetrics(cfg.Metrics)}

	var tracer trace.Tracer
	if cfg.Tracing.Enabled {
		if cfg.Tracing.ServiceVersion == "" {
			cfg.Tracing.ServiceVersion = version
		}
		e.provider, err = tracing.NewProvider(ctx, cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		tracer = e.provider.Tracer()
	}
	e.sessions = tracing.NewSessionTracer(tracer)

	raw, err := objstore.Open(ctx, cfg.Backend)
	if err != nil {
		e.shutdownTracing()
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Driver, err)
	}
	e.client = objstore.Instrument(raw, objstore.Instrumentation{
		Driver:   cfg.Backend.Driver,
		Logger:   logger,
		Recorder: e.metrics,
		Tracer:   tracer,
	})

	e.store, err = sessionstore.New(cfg.SessionStoreConfig(e.client))
	if err != nil {
		_ = e.client.Close()
		e.shutdownTracing()
		return nil, err
	}
	logger.Debug("session store ready",
		"driver", cfg.Backend.Driver,
		"bucket", cfg.Store.Bucket,
		"basePath", cfg.Store.BasePath,
	)
	return e, nil
}

func (e *env) shutdownTracing() error {
	if e.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.provider.Shutdown(ctx)
}

// close flushes metrics and spans and releases the backend client.
func (e *env) close() error {
	var errs []error
	if err := e.metrics.WriteTextfile(); err != nil {
		errs = append(errs, err)
	}
	if err := e.shutdownTracing(); err != nil {
		errs = append(errs, fmt.Errorf("flush traces: %w", err))
	}
	if err := e.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	return errors.Join(errs...)
}

// traced runs fn inside a session span.
func (e *env) traced(ctx context.Context, op sessionstore.Op, sessionID string, fn func(context.Context) error) error {
	ctx, span := e.sessions.Start(ctx, string(op), sessionID)
	err := fn(ctx)
	e.sessions.End(span, err)
	return err
}

// withEnv opens an env, runs fn, and closes the env, joining any close error
// into the result.
func withEnv(flags *commonFlags, fn func(context.Context, *env) error) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	e, err := openEnv(ctx, flags)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(ctx, e)
}
