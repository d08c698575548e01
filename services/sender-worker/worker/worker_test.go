package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Mutter0815/blockmail/internal/campaign"
	"github.com/Mutter0815/blockmail/internal/export"
	"github.com/Mutter0815/blockmail/services/sender-worker/mailer"
)

type fakeStore struct {
	campaigns  map[int64]campaign.Campaign
	contacts   map[int64]campaign.Contact
	getHits    int
	sent       []int64
	failed     []string
	completeOK bool
	completes  int
	done       map[int64]bool
}

func (f *fakeStore) GetCampaign(ctx context.Context, id int64) (campaign.Campaign, error) {
	f.getHits++
	c, ok := f.campaigns[id]
	if !ok {
		return campaign.Campaign{}, &campaign.ErrNotFound{Entity: "campaign", ID: id}
	}
	return c, nil
}

func (f *fakeStore) GetContact(ctx context.Context, id int64) (campaign.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return campaign.Contact{}, &campaign.ErrNotFound{Entity: "contact", ID: id}
	}
	return c, nil
}

func (f *fakeStore) MessagePending(ctx context.Context, campaignID, recipientID int64) (bool, error) {
	return !f.done[recipientID], nil
}

func (f *fakeStore) MarkMessageSent(ctx context.Context, campaignID, recipientID int64) error {
	f.sent = append(f.sent, recipientID)
	if f.done == nil {
		f.done = map[int64]bool{}
	}
	f.done[recipientID] = true
	return nil
}

func (f *fakeStore) MarkMessageFailed(ctx context.Context, campaignID, recipientID int64, lastErr string) error {
	f.failed = append(f.failed, lastErr)
	return nil
}

func (f *fakeStore) MarkCampaignSentIfComplete(ctx context.Context, campaignID int64) (bool, error) {
	f.completes++
	return f.completeOK, nil
}

type fakeMailer struct {
	msgs []mailer.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.msgs = append(m.msgs, msg)
	return m.err
}

func newFixture() (*fakeStore, *fakeMailer, *Worker) {
	fs := &fakeStore{
		campaigns: map[int64]campaign.Campaign{
			7: {ID: 7, Name: "Launch", Subject: "Hello", SendFromName: "Team",
				Blocks: `[{"id":"p","componentName":"ParagraphText","attributes":{"content":"Hi {{ contact.first_name }}"}}]`},
		},
		contacts: map[int64]campaign.Contact{101: {ID: 101, Email: "ann@example.com", FirstName: "Ann"}},
	}
	fm := &fakeMailer{}
	x := export.NewWithCompiler(func(_ context.Context, src string) (string, error) {
		return "<html><body>" + src + "</body></html>", nil
	})
	w := &Worker{Store: fs, Mailer: fm, Export: x, MaxRetries: 3}
	return fs, fm, w
}

const job = `{"campaign_id":7,"recipient_id":101,"address":"ann@example.com"}`

func TestHandle_Sends(t *testing.T) {
	fs, fm, w := newFixture()
	fs.completeOK = true

	if got := w.handle(context.Background(), []byte(job), 0); got != actAck {
		t.Fatalf("want ack, got %v", got)
	}
	if len(fm.msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(fm.msgs))
	}
	m := fm.msgs[0]
	if m.To != "ann@example.com" || m.Subject != "Hello" || m.FromName != "Team" {
		t.Fatalf("unexpected message %+v", m)
	}
	if !strings.Contains(m.HTML, "Hi Ann") {
		t.Fatalf("html not personalized: %s", m.HTML)
	}
	if !strings.Contains(m.Text, "Hi Ann") {
		t.Fatalf("text part missing: %q", m.Text)
	}
	if len(fs.sent) != 1 || fs.completes != 1 {
		t.Fatalf("sent=%v completes=%d", fs.sent, fs.completes)
	}
}

func TestHandle_SkipsDeliveredJob(t *testing.T) {
	fs, fm, w := newFixture()

	if got := w.handle(context.Background(), []byte(job), 0); got != actAck {
		t.Fatalf("want ack, got %v", got)
	}
	if got := w.handle(context.Background(), []byte(job), 0); got != actAck {
		t.Fatalf("repeat: want ack, got %v", got)
	}
	if len(fm.msgs) != 1 || len(fs.sent) != 1 {
		t.Fatalf("repeated job must not send again, msgs=%d sent=%v", len(fm.msgs), fs.sent)
	}
}

const job2 = `{"campaign_id":7,"recipient_id":102,"address":"bo@example.com"}`

func TestHandle_RendersOncePerCampaign(t *testing.T) {
	fs, _, w := newFixture()

	w.handle(context.Background(), []byte(job), 0)
	w.handle(context.Background(), []byte(job2), 0)
	if fs.getHits != 1 {
		t.Fatalf("want campaign loaded once, got %d", fs.getHits)
	}

	fs.completeOK = true
	fs.done = nil
	w.handle(context.Background(), []byte(job), 0)
	fs.done = nil
	w.handle(context.Background(), []byte(job), 0)
	if fs.getHits != 2 {
		t.Fatalf("completed campaign should leave the cache, got %d loads", fs.getHits)
	}
}

func TestHandle_RetryThenDrop(t *testing.T) {
	fs, fm, w := newFixture()
	fm.err = errors.New("421 try later")

	if got := w.handle(context.Background(), []byte(job), 2); got != actRetry {
		t.Fatalf("want retry, got %v", got)
	}
	if len(fs.failed) != 0 {
		t.Fatal("message must stay pending while retries remain")
	}

	if got := w.handle(context.Background(), []byte(job), 3); got != actAck {
		t.Fatalf("want ack after last retry, got %v", got)
	}
	if len(fs.failed) != 1 || fs.failed[0] != "421 try later" {
		t.Fatalf("unexpected failures %v", fs.failed)
	}
	if fs.completes != 1 {
		t.Fatal("completion not checked after final failure")
	}
}

func TestHandle_BadPayloadAndMissingCampaign(t *testing.T) {
	_, fm, w := newFixture()

	if got := w.handle(context.Background(), []byte("{"), 0); got != actAck {
		t.Fatalf("bad payload: want ack, got %v", got)
	}
	if got := w.handle(context.Background(), []byte(`{"campaign_id":99,"recipient_id":1,"address":"x@y.z"}`), 0); got != actAck {
		t.Fatalf("missing campaign: want ack, got %v", got)
	}
	if len(fm.msgs) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestHandle_RenderErrorRequeues(t *testing.T) {
	_, _, w := newFixture()
	w.Export = export.NewWithCompiler(func(context.Context, string) (string, error) {
		return "", errors.New("wasm trap")
	})

	if got := w.handle(context.Background(), []byte(job), 0); got != actRequeue {
		t.Fatalf("want requeue, got %v", got)
	}
}

func TestHeaders(t *testing.T) {
	if headerRetries(nil) != 0 {
		t.Fatal("nil headers")
	}
	h := amqp.Table{"x-retries": int64(2), "other": "v"}
	if headerRetries(h) != 2 {
		t.Fatal("int64 header")
	}
	dup := copyHeaders(h)
	setHeaderRetries(&dup, 3)
	if headerRetries(dup) != 3 || headerRetries(h) != 2 {
		t.Fatal("copy must not alias the original")
	}
	if dup["other"] != "v" {
		t.Fatal("other headers lost")
	}

	var empty amqp.Table
	setHeaderRetries(&empty, 1)
	if v, ok := empty["x-retries"].(int32); !ok || v != 1 {
		t.Fatalf("unexpected header %v", empty["x-retries"])
	}
}

func TestBackoffDelay(t *testing.T) {
	want := map[int]time.Duration{0: 0, 1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second}
	for in, d := range want {
		if got := backoffDelay(in); got != d {
			t.Fatalf("backoffDelay(%d)=%v, want %v", in, got, d)
		}
	}
}
