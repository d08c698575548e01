package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Mutter0815/blockmail/internal/export"
	"github.com/Mutter0815/blockmail/internal/store"
	"github.com/Mutter0815/blockmail/pkg/config"
	"github.com/Mutter0815/blockmail/pkg/db"
	"github.com/Mutter0815/blockmail/pkg/logx"
	"github.com/Mutter0815/blockmail/pkg/rmq"
	"github.com/Mutter0815/blockmail/services/sender-worker/mailer"
	"github.com/Mutter0815/blockmail/services/sender-worker/scheduler"
	"github.com/Mutter0815/blockmail/services/sender-worker/worker"
)

func main() {
	logx.Init()
	defer logx.Sync()

	config.MustLoadWorker()
	cfg := config.Worker

	sqlDB, err := db.Open(cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_open_error", "error", err)
	}
	defer sqlDB.Close()

	cons, err := rmq.NewConsumer(cfg.RMQURL, cfg.Queue, 10)
	if err != nil {
		logx.L().Fatalw("rmq_consumer_error", "error", err)
	}
	defer cons.Close()

	pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.Queue)
	if err != nil {
		logx.L().Fatalw("rmq_publisher_error", "error", err)
	}
	defer pub.Close()

	st := store.New(sqlDB)
	x := export.New()
	sched := scheduler.New(st, pub, cfg.SchedulerInterval, cfg.ClaimBatch)
	w := worker.New(st, cons, pub, mailer.New(cfg), x, cfg.MaxRetries)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logx.L().Errorw("scheduler_error", "error", err)
		}
	}()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logx.L().Errorw("worker_error", "error", err)
		stop()
	}
	wg.Wait()
	logx.L().Infow("sender-worker stopped gracefully")
}
