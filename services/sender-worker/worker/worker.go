package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Mutter0815/blockmail/internal/blocks"
	"github.com/Mutter0815/blockmail/internal/campaign"
	"github.com/Mutter0815/blockmail/internal/export"
	"github.com/Mutter0815/blockmail/internal/store"
	"github.com/Mutter0815/blockmail/pkg/logx"
	"github.com/Mutter0815/blockmail/pkg/metrics"
	"github.com/Mutter0815/blockmail/pkg/rmq"
	"github.com/Mutter0815/blockmail/services/sender-worker/mailer"
)

// maxCached bounds the rendered-campaign cache.
const maxCached = 64

func wlog() *zap.SugaredLogger { return logx.Named("worker") }

type storeAPI interface {
	GetCampaign(ctx context.Context, id int64) (campaign.Campaign, error)
	GetContact(ctx context.Context, id int64) (campaign.Contact, error)
	MessagePending(ctx context.Context, campaignID, recipientID int64) (bool, error)
	MarkMessageSent(ctx context.Context, campaignID, recipientID int64) error
	MarkMessageFailed(ctx context.Context, campaignID, recipientID int64, lastErr string) error
	MarkCampaignSentIfComplete(ctx context.Context, campaignID int64) (bool, error)
}

type publisherAPI interface {
	PublishJSONWithHeaders(ctx context.Context, body []byte, headers amqp.Table) error
}

type renderer interface {
	Render(ctx context.Context, doc export.Document) (export.Rendered, error)
	Personalize(markup string, r export.Recipient, campaignName string) (string, error)
}

type rendered struct {
	camp campaign.Campaign
	html string
}

type Worker struct {
	Store      storeAPI
	Cons       *rmq.Consumer
	Pub        publisherAPI
	Mailer     mailer.Mailer
	Export     renderer
	MaxRetries int

	mu    sync.Mutex
	cache map[int64]rendered
}

func New(st *store.Store, cons *rmq.Consumer, pub *rmq.Publisher, m mailer.Mailer, x *export.Exporter, maxRetries int) *Worker {
	return &Worker{Store: st, Cons: cons, Pub: pub, Mailer: m, Export: x, MaxRetries: maxRetries}
}

type action int

const (
	actAck action = iota
	actRequeue
	actRetry
)

// Run consumes delivery jobs until ctx is done or the broker connection
// drops.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.Cons.Consume()
	if err != nil {
		return err
	}
	closed := w.Cons.NotifyClose()
	wlog().Infow("worker_started", "queue", w.Cons.Queue, "max_retries", w.MaxRetries)

	for {
		select {
		case <-ctx.Done():
			wlog().Infow("worker_stopping")
			return ctx.Err()

		case amqpErr := <-closed:
			if amqpErr != nil {
				return fmt.Errorf("broker connection closed: %w", amqpErr)
			}
			return errors.New("broker connection closed")

		case d, ok := <-msgs:
			if !ok {
				wlog().Warnw("consumer_channel_closed")
				return nil
			}

			start := time.Now()
			retries := headerRetries(d.Headers)
			switch w.handle(ctx, d.Body, retries) {
			case actAck:
				_ = d.Ack(false)
			case actRequeue:
				_ = d.Nack(false, true)
			case actRetry:
				delay := backoffDelay(retries + 1)
				wlog().Infow("retry_requeue", "retries", retries+1, "delay", delay.String())
				if err := w.requeueMessage(ctx, d, retries+1, delay); err != nil {
					wlog().Errorw("retry_publish_error", "retries", retries+1, "error", err)
					_ = d.Nack(false, true)
				}
			}
			metrics.WorkerProcessDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// handle delivers one job and decides what happens to its queue message.
func (w *Worker) handle(ctx context.Context, body []byte, retries int) action {
	var job campaign.DeliveryJob
	if err := json.Unmarshal(body, &job); err != nil {
		wlog().Warnw("job_unmarshal_error", "error", err)
		metrics.Delivery(metrics.DeliveryInvalid)
		return actAck
	}
	jl := wlog().With(
		"campaign_id", job.CampaignID,
		"recipient_id", job.RecipientID,
		"address", job.Address,
	)

	// A re-dispatched campaign republishes jobs that may already be done.
	ctx0, cancel0 := context.WithTimeout(ctx, 5*time.Second)
	pending, err := w.Store.MessagePending(ctx0, job.CampaignID, job.RecipientID)
	cancel0()
	if err != nil {
		jl.Errorw("db_message_status_error", "error", err)
		return actRequeue
	}
	if !pending {
		jl.Infow("job_already_done")
		metrics.Delivery(metrics.DeliveryRepeat)
		return actAck
	}

	content, err := w.content(ctx, job.CampaignID)
	if err != nil {
		if campaign.IsNotFound(err) {
			jl.Warnw("campaign_gone")
			metrics.Delivery(metrics.DeliveryGone)
			return actAck
		}
		jl.Errorw("campaign_render_error", "error", err)
		return actRequeue
	}

	ctx1, cancel1 := context.WithTimeout(ctx, 5*time.Second)
	contact, err := w.Store.GetContact(ctx1, job.RecipientID)
	cancel1()
	if err != nil && !campaign.IsNotFound(err) {
		jl.Errorw("db_get_contact_error", "error", err)
		return actRequeue
	}

	markup, err := w.Export.Personalize(content.html, export.Recipient{
		Email:     job.Address,
		FirstName: contact.FirstName,
		LastName:  contact.LastName,
	}, content.camp.Name)
	if err != nil {
		jl.Warnw("personalize_error", "error", err)
		markup = content.html
	}
	text, _ := export.PlainText(markup)

	ctxSend, cancelSend := context.WithTimeout(ctx, 30*time.Second)
	sendStart := time.Now()
	err = w.Mailer.Send(ctxSend, mailer.Message{
		FromName: content.camp.SendFromName,
		To:       job.Address,
		Subject:  content.camp.Subject,
		HTML:     markup,
		Text:     text,
	})
	cancelSend()
	metrics.MailerSend(sendStart, err)

	if err != nil {
		jl.Infow("send_failed", "retries", retries, "error", err)
		if retries < w.MaxRetries {
			metrics.Delivery(metrics.DeliveryRetry)
			return actRetry
		}

		ctx2, cancel2 := context.WithTimeout(ctx, 5*time.Second)
		defer cancel2()
		if err := w.Store.MarkMessageFailed(ctx2, job.CampaignID, job.RecipientID, err.Error()); err != nil {
			jl.Errorw("db_mark_failed_error", "error", err)
			return actRequeue
		}
		jl.Warnw("drop_after_retries", "retries", retries)
		metrics.Delivery(metrics.DeliveryDropped)
		w.complete(ctx2, job.CampaignID)
		return actAck
	}

	ctx3, cancel3 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel3()
	if err := w.Store.MarkMessageSent(ctx3, job.CampaignID, job.RecipientID); err != nil {
		jl.Errorw("db_mark_sent_error", "error", err)
		return actRequeue
	}
	metrics.Delivery(metrics.DeliverySent)
	jl.Infow("send_success")

	w.complete(ctx3, job.CampaignID)
	return actAck
}

// complete flags the campaign sent once no message is pending.
func (w *Worker) complete(ctx context.Context, campaignID int64) {
	done, err := w.Store.MarkCampaignSentIfComplete(ctx, campaignID)
	if err != nil {
		wlog().Errorw("db_mark_campaign_sent_error", "campaign_id", campaignID, "error", err)
		return
	}
	if done {
		metrics.CampaignsCompleted.Inc()
		wlog().Infow("campaign_sent", "campaign_id", campaignID)
		w.mu.Lock()
		delete(w.cache, campaignID)
		w.mu.Unlock()
	}
}

// content returns the campaign and its rendered HTML, rendering once per
// campaign. Campaigns being sent no longer change, so entries stay valid.
func (w *Worker) content(ctx context.Context, id int64) (rendered, error) {
	w.mu.Lock()
	r, ok := w.cache[id]
	w.mu.Unlock()
	if ok {
		return r, nil
	}

	ctx1, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := w.Store.GetCampaign(ctx1, id)
	if err != nil {
		return rendered{}, err
	}
	list, _ := blocks.Decode(c.Blocks)
	styles := blocks.DefaultGlobalStyles()
	if custom, ok := blocks.DecodeGlobalStyles(c.GlobalStyles); ok {
		for k, v := range custom {
			styles[k] = v
		}
	}
	out, err := w.Export.Render(ctx1, export.Document{Subject: c.Subject, Blocks: list, Styles: styles})
	metrics.Export(err)
	if err != nil {
		return rendered{}, err
	}

	r = rendered{camp: c, html: out.HTML}
	w.mu.Lock()
	if w.cache == nil || len(w.cache) >= maxCached {
		w.cache = make(map[int64]rendered)
	}
	w.cache[id] = r
	w.mu.Unlock()
	return r, nil
}

func (w *Worker) requeueMessage(ctx context.Context, d amqp.Delivery, retries int, delay time.Duration) error {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	headers := copyHeaders(d.Headers)
	setHeaderRetries(&headers, retries)

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.Pub.PublishJSONWithHeaders(pubCtx, d.Body, headers); err != nil {
		return err
	}

	return d.Ack(false)
}

func headerRetries(h amqp.Table) int {
	if h == nil {
		return 0
	}
	if v, ok := h["x-retries"]; ok {
		switch t := v.(type) {
		case int32:
			return int(t)
		case int64:
			return int(t)
		case int:
			return t
		case uint8:
			return int(t)
		}
	}
	return 0
}

func setHeaderRetries(h *amqp.Table, n int) {
	if *h == nil {
		*h = amqp.Table{}
	}
	(*h)["x-retries"] = int32(n)
}

// backoffDelay is 1s, 2s, 4s, ... for the first, second, third retry.
func backoffDelay(retries int) time.Duration {
	if retries <= 0 {
		return 0
	}
	sec := math.Pow(2, float64(retries-1))
	return time.Duration(sec) * time.Second
}

func copyHeaders(h amqp.Table) amqp.Table {
	if h == nil {
		return amqp.Table{}
	}
	dup := make(amqp.Table, len(h))
	for k, v := range h {
		dup[k] = v
	}
	return dup
}
