// Command vmserverd runs the virtual map-server scheduling core as a
// standalone process: it loads configuration, wires up a Server, drives its
// tick loop at a fixed rate, and serves the admin console on stdin.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pelletier/go-toml"

	"github.com/mangosd-go/vmserver/server"
	"github.com/mangosd-go/vmserver/server/cmd/builtin"
	"github.com/mangosd-go/vmserver/server/console"
)

func main() {
	configPath := flag.String("config", "vmserver.toml", "path to the TOML configuration file")
	flag.Parse()

	log := slog.Default()

	uc, err := loadUserConfig(*configPath)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}
	conf, err := uc.Config(log)
	if err != nil {
		log.Error("build config", "err", err)
		os.Exit(1)
	}

	srv, err := conf.New()
	if err != nil {
		log.Error("start server", "err", err)
		os.Exit(1)
	}
	builtin.Register(srv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go console.New(log).Run(ctx)
	go watchConfigReload(ctx, *configPath, srv, log)
	runTickLoop(ctx, srv, time.Duration(conf.Scheduling.UpdateIntervalMS)*time.Millisecond)

	if err := srv.Close(); err != nil {
		log.Error("close server", "err", err)
		os.Exit(1)
	}
}

func runTickLoop(ctx context.Context, srv *server.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			diff := now.Sub(last)
			last = now
			srv.Tick(diff.Milliseconds())
			srv.BumpWorldLoop()
		}
	}
}

// watchConfigReload re-reads path on SIGHUP and, if its content actually
// changed, hot-applies the load-balancer and tick-rate-warning thresholds
// to srv. A content hash (rather than mtime) avoids a spurious reload on a
// rewrite-with-identical-bytes, e.g. from an external config management
// tool that always touches the file.
func watchConfigReload(ctx context.Context, path string, srv *server.Server, log *slog.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)

	var lastHash uint64
	if b, err := os.ReadFile(path); err == nil {
		lastHash = xxhash.Sum64(b)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			b, err := os.ReadFile(path)
			if err != nil {
				log.Error("reload config: read", "err", err)
				continue
			}
			h := xxhash.Sum64(b)
			if h == lastHash {
				log.Info("reload config: unchanged", "path", path)
				continue
			}
			lastHash = h

			var uc server.UserConfig
			if err := toml.Unmarshal(b, &uc); err != nil {
				log.Error("reload config: parse", "err", err)
				continue
			}
			conf, err := uc.Config(log)
			if err != nil {
				log.Error("reload config: build", "err", err)
				continue
			}
			srv.ReloadThresholds(conf.Scheduling)
			log.Info("reload config: applied", "path", path)
		}
	}
}

func loadUserConfig(path string) (server.UserConfig, error) {
	uc := server.DefaultConfig()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		out, marshalErr := toml.Marshal(uc)
		if marshalErr != nil {
			return uc, marshalErr
		}
		return uc, os.WriteFile(path, out, 0o644)
	}
	if err != nil {
		return uc, err
	}
	return uc, toml.Unmarshal(b, &uc)
}
