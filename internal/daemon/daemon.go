// Package daemon wires the ingest transports to the formatting pipeline.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/al-bashkir/securelog/internal/config"
	"github.com/al-bashkir/securelog/internal/formatter"
	"github.com/al-bashkir/securelog/internal/httpserver"
	"github.com/al-bashkir/securelog/internal/ipc"
	"github.com/al-bashkir/securelog/internal/sink"
)

// Daemon represents the main daemon process that coordinates all components.
type Daemon struct {
	cfg        *config.Config
	pipeline   *Pipeline
	out        *sink.Writer
	httpServer *httpserver.Server
	ipcServer  *ipc.Server

	httpAddr net.Addr
	ready    chan struct{}
}

// New creates a new daemon with all components initialized.
func New(cfg *config.Config) (*Daemon, error) {
	// The key set is built once and shared by every formatter
	keys := cfg.KeySet()
	f := formatter.New(keys, formatter.WithLimits(cfg.Limits()))

	slog.Info("redaction configured",
		"sensitive_keys", keys.Len(),
		"max_depth", cfg.Redaction.MaxDepth,
		"max_nodes", cfg.Redaction.MaxNodes,
	)

	out, err := sink.Open(sink.Options{
		Path:       cfg.Output.Path,
		MaxSizeMB:  cfg.Output.MaxSizeMB,
		MaxBackups: cfg.Output.MaxBackups,
		MaxAgeDays: cfg.Output.MaxAgeDays,
		Compress:   cfg.Output.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		pipeline: NewPipeline(f, out),
		out:      out,
		ready:    make(chan struct{}),
	}

	if cfg.Listen.HTTP != "" {
		// Issuer discovery for oidc mode happens here
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		auth, err := httpserver.NewAuthenticator(ctx, &cfg.Ingest.Auth)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("failed to initialize authentication: %w", err)
		}

		d.httpServer, err = httpserver.NewServer(cfg, d.pipeline.Handle, auth)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
		}

		slog.Info("HTTP server initialized",
			"listen", cfg.Listen.HTTP,
			"tls", cfg.TLS.Enabled,
			"auth", auth.Name(),
		)
	}

	if cfg.Listen.Socket != "" {
		d.ipcServer = ipc.NewServer(cfg.Listen.Socket, d.pipeline.Handle)
		d.ipcServer.SetMaxMessageBytes(cfg.Ingest.MaxBodyBytes)

		slog.Info("IPC server initialized",
			"socket", cfg.Listen.Socket,
		)
	}

	return d, nil
}

// Ready is closed once every listener is accepting connections.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// HTTPAddr returns the bound HTTP address, or nil before Ready.
func (d *Daemon) HTTPAddr() net.Addr {
	return d.httpAddr
}

// Run starts all daemon components and blocks until ctx is done or a
// shutdown signal is received.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting securelog daemon")

	// Start IPC server synchronously to catch startup errors
	if d.ipcServer != nil {
		if err := d.ipcServer.Start(ctx); err != nil {
			return multierr.Append(fmt.Errorf("failed to start IPC server: %w", err), d.out.Close())
		}
	}

	httpErrCh := make(chan error, 1)
	if d.httpServer != nil {
		ln, err := net.Listen("tcp", d.cfg.Listen.HTTP)
		if err != nil {
			err = fmt.Errorf("HTTP server failed: %w", err)
			if d.ipcServer != nil {
				err = multierr.Append(err, d.ipcServer.Stop())
			}
			return multierr.Append(err, d.out.Close())
		}
		d.httpAddr = ln.Addr()

		go func() {
			if err := d.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErrCh <- err
			}
			close(httpErrCh)
		}()
	}

	close(d.ready)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("shutdown requested")
	case err, ok := <-httpErrCh:
		if ok && err != nil {
			slog.Error("HTTP server failed", "error", err)
			runErr = fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := multierr.Append(runErr, d.shutdown(shutdownCtx))
	slog.Info("daemon shutdown complete", "lines_written", d.out.Lines())
	return err
}

// shutdown stops the transports before closing the sink so that in-flight
// batches are written.
func (d *Daemon) shutdown(ctx context.Context) error {
	var err error
	if d.ipcServer != nil {
		err = multierr.Append(err, d.ipcServer.Stop())
	}
	if d.httpServer != nil {
		if shutdownErr := d.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("error stopping HTTP server: %w", shutdownErr))
		}
	}
	if closeErr := d.out.Close(); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("error closing output: %w", closeErr))
	}
	return err
}
