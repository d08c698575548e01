package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mutter0815/blockmail/internal/editor"
	"github.com/Mutter0815/blockmail/internal/export"
	"github.com/Mutter0815/blockmail/internal/store"
	"github.com/Mutter0815/blockmail/pkg/config"
	"github.com/Mutter0815/blockmail/pkg/db"
	"github.com/Mutter0815/blockmail/pkg/logx"
	"github.com/Mutter0815/blockmail/pkg/metrics"
	"github.com/Mutter0815/blockmail/services/campaign-api/server"
)

func main() {
	logx.Init()
	defer logx.Sync()

	config.MustLoadAPI()
	cfg := config.API

	sqlDB, err := db.Open(cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_open_error", "error", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logx.L().Warnw("db_close_error", "error", err)
		} else {
			logx.L().Infow("db_closed")
		}
	}()

	sessions := editor.NewRegistry()
	h := server.NewHandlers(store.New(sqlDB), export.New(), sessions)
	srv := server.NewHTTPServer(":"+cfg.Port, h)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepSessions(sweepCtx, sessions, cfg.EditorSessionTTL)

	go func() {
		logx.L().Infow("api_listen_start", "addr", ":"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.L().Fatalw("http_server_error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logx.L().Infow("signal_received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logx.L().Errorw("server_shutdown_error", "error", err)
	} else {
		logx.L().Infow("server_shutdown_success")
	}

	logx.L().Infow("campaign-api stopped gracefully")
}

// sweepSessions drops editing sessions idle for longer than ttl.
func sweepSessions(ctx context.Context, reg *editor.Registry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	every := ttl / 4
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := reg.Sweep(ttl); n > 0 {
				logx.L().Infow("editor_sessions_swept", "closed", n, "open", reg.Len())
			}
			metrics.EditorSessionsOpen.Set(float64(reg.Len()))
		}
	}
}
