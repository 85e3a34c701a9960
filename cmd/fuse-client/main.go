// davmount FUSE client
//
// Mounts a remote WebDAV share as a local read-only filesystem:
//
//	fuse-client -mount /mnt/dav -server https://cloud.example/remote.php/dav/files/alice -user alice
//
// Credentials come from flags, DAVMOUNT_* environment variables, or an
// optional YAML config file; a missing password is prompted for on the
// terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/davmount/davmount/internal/config"
	"github.com/davmount/davmount/internal/fuse"
	"github.com/davmount/davmount/internal/logging"
	"github.com/davmount/davmount/internal/metrics"
	"github.com/davmount/davmount/internal/vfs"
	"github.com/davmount/davmount/internal/webdav"
)

func main() {
	mountPoint := flag.String("mount", "", "Mount point for the WebDAV filesystem (required)")
	serverURL := flag.String("server", "", "WebDAV base URL, e.g. https://cloud.example/remote.php/dav/files/alice")
	username := flag.String("user", "", "Username for basic auth")
	token := flag.String("token", "", "Bearer token (alternative to basic auth)")
	configPath := flag.String("config", "", "Path to YAML config file")
	attrTTL := flag.Duration("ttl", 0, "Kernel attribute/entry cache TTL (0 uses config default)")
	metricsAddr := flag.String("metrics", "", "Prometheus listen address (empty disables)")
	prefetch := flag.Bool("prefetch", false, "Warm up with a recursive PROPFIND at startup")
	debug := flag.Bool("debug", false, "Enable FUSE protocol debugging")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags win over environment and file values.
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *username != "" {
		cfg.Username = *username
	}
	if *token != "" {
		cfg.Token = *token
	}
	if *attrTTL != 0 {
		cfg.AttrTTL = *attrTTL
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *prefetch {
		cfg.Prefetch = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if *mountPoint == "" {
		fmt.Fprintf(os.Stderr, "Error: -mount is required\n")
		flag.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: logger init: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if cfg.Username != "" && cfg.Password == "" {
		fmt.Fprintf(os.Stderr, "Password for %s: ", cfg.Username)
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: read password: %v\n", err)
			os.Exit(1)
		}
		cfg.Password = string(pw)
	}

	client := webdav.New(webdav.Config{
		BaseURL:       strings.TrimSuffix(cfg.ServerURL, "/"),
		Username:      cfg.Username,
		Password:      cfg.Password,
		Token:         cfg.Token,
		Timeout:       cfg.RequestTimeout,
		RetryAttempts: cfg.RetryAttempts,
	})

	handler := vfs.NewHandler(client, client.BasePath())
	davFS := fuse.NewDavFS(handler, fuse.Config{
		AttrTimeout: cfg.AttrTTL,
		Debug:       *debug,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			logging.Info("metrics listening", logging.String("addr", cfg.MetricsAddr))
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logging.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	logging.Info("davmount starting",
		logging.String("server", cfg.ServerURL),
		logging.String("mount", *mountPoint),
		logging.Duration("ttl", cfg.AttrTTL),
	)

	if err := client.Ping(ctx); err != nil {
		logging.Warn("server not reachable at startup", logging.Err(err))
	}

	if cfg.Prefetch {
		davFS.Prefetch(ctx, client)
	}

	server, err := davFS.Mount(*mountPoint)
	if err != nil {
		logging.Error("mount failed", logging.Err(err))
		os.Exit(1)
	}

	startHealthCheck(ctx, client, cfg.HealthCheckPeriod)

	logging.Info("filesystem mounted (read-only)", logging.String("mount", *mountPoint))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("unmounting")
	cancel()
	if err := server.Unmount(); err != nil {
		logging.Error("unmount failed", logging.Err(err))
	}
	logging.Info("done")
}

// startHealthCheck pings the server periodically so offline/online
// transitions get logged even when the mount is idle.
func startHealthCheck(ctx context.Context, client *webdav.Client, period time.Duration) {
	if period <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				wasOnline := client.IsOnline()
				if err := client.Ping(ctx); err == nil && !wasOnline {
					logging.Info("server is back online")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
