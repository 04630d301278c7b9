package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MatthiasKunnen/screenlock/pkg/broadcast"
	"github.com/MatthiasKunnen/screenlock/pkg/config"
	"github.com/MatthiasKunnen/screenlock/pkg/lock"
	"github.com/MatthiasKunnen/screenlock/pkg/sink"
	"github.com/MatthiasKunnen/screenlock/pkg/watcher"
	"github.com/fatih/color"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/cobra"
)

func runWatch(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := cfg.Logging.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostname := logHostInfo(ctx, logger)

	sinks := []sink.Sink{consoleSink(cmd.OutOrStdout())}

	if cfg.Listen != "" {
		hub := broadcast.NewHub(logger)
		hub.SetHost(hostname)
		shutdown, err := serveEvents(cfg.Listen, hub, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		sinks = append(sinks, hub)
	}

	if err := sink.Default.Register(sink.Multi(sinks...)); err != nil {
		return fmt.Errorf("failed to register sink: %w", err)
	}

	w := watcher.New(func() (lock.Signal, error) {
		return lock.NewPlatformSignal(cfg.LockOptions(logger))
	}, &sink.Default, cfg.WatcherOptions(logger))

	err = w.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// consoleSink prints each event as a coloured line.
func consoleSink(out io.Writer) sink.Sink {
	lockColor := color.New(color.FgRed, color.Bold)
	unlockColor := color.New(color.FgGreen, color.Bold)
	dim := color.New(color.FgHiBlack)

	return sink.Func(func(topic string, payload string) error {
		c := unlockColor
		if payload == sink.PayloadLock {
			c = lockColor
		}

		_, err := fmt.Fprintf(out, "%s  %-6s  %s\n",
			dim.Sprint(time.Now().Format(time.DateTime)),
			c.Sprint(payload),
			dim.Sprint(topic),
		)
		return err
	})
}

// serveEvents exposes hub on addr at /events. The returned function stops the
// server and disconnects all clients.
func serveEvents(addr string, hub *broadcast.Hub, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/events", hub)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("event server failed", "err", err)
		}
	}()
	logger.Info("serving lock events", "url", "ws://"+ln.Addr().String()+"/events")

	return func() {
		hub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("failed to shut down event server", "err", err)
		}
	}, nil
}

// logHostInfo logs where the watcher runs and returns the host name, or an empty
// string when gopsutil cannot read it.
func logHostInfo(ctx context.Context, logger *slog.Logger) string {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		logger.Debug("failed to read host info", "err", err)
		return ""
	}

	logger.Info("starting screenlock",
		"version", version,
		"hostname", info.Hostname,
		"platform", info.Platform,
		"platform_version", info.PlatformVersion,
		"kernel", info.KernelVersion,
	)

	return info.Hostname
}
