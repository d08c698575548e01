// Package scheduler turns due campaigns into per-recipient delivery jobs.
package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Mutter0815/blockmail/internal/campaign"
	"github.com/Mutter0815/blockmail/internal/store"
	"github.com/Mutter0815/blockmail/pkg/logx"
	"github.com/Mutter0815/blockmail/pkg/metrics"
	"github.com/Mutter0815/blockmail/pkg/rmq"
)

type storeAPI interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	ClaimDueCampaigns(ctx context.Context, now time.Time, limit int) ([]int64, error)
	GetCampaign(ctx context.Context, id int64) (campaign.Campaign, error)
	ListContacts(ctx context.Context, listID int64) ([]campaign.Contact, error)
	InsertMessagePending(ctx context.Context, tx *sql.Tx, campaignID, recipientID int64) error
	MarkCampaignSentIfComplete(ctx context.Context, campaignID int64) (bool, error)
	ReleaseCampaign(ctx context.Context, id int64) error
}

type publisherAPI interface {
	PublishJSON(ctx context.Context, body []byte) error
}

type Scheduler struct {
	Store    storeAPI
	Pub      publisherAPI
	Interval time.Duration
	Batch    int
	now      func() time.Time
}

func New(st *store.Store, pub *rmq.Publisher, interval time.Duration, batch int) *Scheduler {
	return &Scheduler{Store: st, Pub: pub, Interval: interval, Batch: batch, now: time.Now}
}

func (s *Scheduler) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Run ticks once, then on every interval until ctx is done. A tick that
// overruns the interval makes the next one skip.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logx.Named("scheduler")
	log.Infow("scheduler_started", "interval", s.Interval.String(), "batch", s.Batch)

	tick := func() {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("scheduler_tick_error", "error", err)
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(s.Interval), cron.FuncJob(tick))
	tick()
	c.Start()

	<-ctx.Done()
	log.Infow("scheduler_stopping")
	<-c.Stop().Done()
	return ctx.Err()
}

// Tick claims due campaigns and dispatches each. It returns how many were
// dispatched.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	ids, err := s.Store.ClaimDueCampaigns(claimCtx, s.clock(), s.Batch)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("claim due campaigns: %w", err)
	}
	metrics.SchedulerClaimedTotal.Add(float64(len(ids)))

	n := 0
	for _, id := range ids {
		if err := s.dispatch(ctx, id); err != nil {
			logx.L().Errorw("dispatch_error", "campaign_id", id, "error", err)
			s.release(ctx, id)
			continue
		}
		n++
	}
	return n, nil
}

// release hands a campaign whose dispatch failed back to the next tick.
func (s *Scheduler) release(ctx context.Context, id int64) {
	ctx1, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Store.ReleaseCampaign(ctx1, id); err != nil {
		logx.L().Errorw("release_campaign_error", "campaign_id", id, "error", err)
		return
	}
	logx.L().Infow("campaign_released", "campaign_id", id)
}

func (s *Scheduler) dispatch(ctx context.Context, id int64) error {
	ctx1, cancel1 := context.WithTimeout(ctx, 10*time.Second)
	defer cancel1()

	c, err := s.Store.GetCampaign(ctx1, id)
	if err != nil {
		return err
	}
	contacts, err := s.Store.ListContacts(ctx1, c.ListID)
	if err != nil {
		return fmt.Errorf("list contacts: %w", err)
	}

	err = s.Store.WithTx(ctx1, func(tx *sql.Tx) error {
		for _, ct := range contacts {
			if err := s.Store.InsertMessagePending(ctx1, tx, id, ct.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}

	if len(contacts) == 0 {
		if _, err := s.Store.MarkCampaignSentIfComplete(ctx1, id); err != nil {
			return err
		}
		logx.L().Warnw("campaign_list_empty", "campaign_id", id, "list_id", c.ListID)
		return nil
	}

	ctxPub, cancelPub := context.WithTimeout(ctx, 30*time.Second)
	defer cancelPub()

	for _, ct := range contacts {
		payload, err := json.Marshal(campaign.DeliveryJob{
			CampaignID:  id,
			RecipientID: ct.ID,
			Address:     ct.Email,
		})
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		if err := s.Pub.PublishJSON(ctxPub, payload); err != nil {
			return fmt.Errorf("publish job for recipient %d: %w", ct.ID, err)
		}
		metrics.PublishedJobsTotal.Inc()
	}

	logx.L().Infow("campaign_dispatched", "campaign_id", id, "recipients", len(contacts))
	return nil
}
