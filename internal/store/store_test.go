package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Mutter0815/blockmail/internal/campaign"
)

var campaignCols = []string{"id", "name", "subject", "send_from_name", "list_id", "blocks", "global_styles",
	"scheduled_send", "dispatched_at", "has_sent", "created_at", "updated_at"}

func campaignRow(id int64, hasSent bool, dispatched any) *sqlmock.Rows {
	ts := time.Unix(0, 0).UTC()
	return sqlmock.NewRows(campaignCols).
		AddRow(id, "Launch", "Hello", "Team", int64(3), "[]", "{}", nil, dispatched, hasSent, ts, ts)
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestInsertCampaign(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`
	INSERT INTO campaigns (name,subject,send_from_name,list_id,blocks,global_styles)
	VALUES ($1,$2,$3,$4,'[]','{}') RETURNING id`)).
		WithArgs("n", "s", "f", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := s.InsertCampaign(context.Background(), "n", "s", "f", 3)
	if err != nil {
		t.Fatal(err)
	}
	if id != 7 {
		t.Fatalf("want id=7, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetCampaign(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT (.+) FROM campaigns\s+WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(campaignRow(5, false, nil))

	c, err := s.GetCampaign(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != 5 || c.Name != "Launch" || c.ListID != 3 || c.Blocks != "[]" {
		t.Fatalf("unexpected campaign %+v", c)
	}
	if c.ScheduledSend != nil || c.DispatchedAt != nil {
		t.Fatal("want nil timestamps")
	}
	if c.Status() != campaign.StatusDraft {
		t.Fatalf("want draft, got %s", c.Status())
	}
}

func TestGetCampaign_NullContent(t *testing.T) {
	s, mock := newMock(t)
	ts := time.Unix(0, 0).UTC()
	mock.ExpectQuery(`SELECT (.+) FROM campaigns\s+WHERE id = \$1`).
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow(int64(6), "New", "Hi", "Team", int64(3), nil, nil, nil, nil, false, ts, ts))

	c, err := s.GetCampaign(context.Background(), 6)
	if err != nil {
		t.Fatal(err)
	}
	if c.Blocks != "" || c.GlobalStyles != "" {
		t.Fatalf("want empty content, got %q %q", c.Blocks, c.GlobalStyles)
	}
}

func TestGetCampaign_NotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT (.+) FROM campaigns`).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetCampaign(context.Background(), 9)
	if !campaign.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestListCampaigns(t *testing.T) {
	s, mock := newMock(t)
	ts := time.Unix(0, 0).UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM campaigns c JOIN lists l ON l.id = c.list_id ORDER BY c.updated_at DESC LIMIT 20 OFFSET 0`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "subject", "list_id", "has_sent", "scheduled_send", "dispatched_at", "updated_at", "name"}).
			AddRow(int64(2), "B", "sb", int64(1), false, ts, nil, ts, "Newsletter").
			AddRow(int64(1), "A", "sa", int64(1), true, nil, ts, ts, "Newsletter"))

	out, err := s.ListCampaigns(context.Background(), 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("want 2 rows, got %d", len(out))
	}
	if out[0].Status() != campaign.StatusScheduled || out[1].Status() != campaign.StatusSent {
		t.Fatalf("unexpected statuses %s %s", out[0].Status(), out[1].Status())
	}
	if out[0].ListName != "Newsletter" {
		t.Fatalf("unexpected list name %q", out[0].ListName)
	}
}

func TestUpdateCampaignBlocks(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE campaigns SET blocks = \$1, global_styles = \$2, updated_at = NOW\(\) WHERE id = \$3 AND has_sent = FALSE AND dispatched_at IS NULL`).
		WithArgs(`[{"id":"1"}]`, `{}`, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateCampaignBlocks(context.Background(), 4, `[{"id":"1"}]`, `{}`); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateCampaign_Sent(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE campaigns SET name = \$1`).
		WithArgs("n", "s", "f", int64(2), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM campaigns`).
		WithArgs(int64(4)).
		WillReturnRows(campaignRow(4, true, time.Unix(0, 0).UTC()))

	err := s.UpdateCampaign(context.Background(), 4, "n", "s", "f", 2)
	if !errors.Is(err, campaign.ErrAlreadySent) {
		t.Fatalf("want ErrAlreadySent, got %v", err)
	}
}

func TestUpdateCampaign_Missing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM campaigns`).
		WithArgs(int64(4)).
		WillReturnError(sql.ErrNoRows)

	err := s.UpdateCampaign(context.Background(), 4, "n", "s", "f", 2)
	if !campaign.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestDeleteCampaigns(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = ANY($1) AND has_sent = FALSE AND scheduled_send IS NULL`)).
		WithArgs("{1,2,3}").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(3)))

	ids, err := s.DeleteCampaigns(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("unexpected deleted ids %v", ids)
	}
}

func TestDeleteCampaigns_NoneDeleted(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`DELETE FROM campaigns`).
		WithArgs("{4}").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ids, err := s.DeleteCampaigns(context.Background(), []int64{4})
	if err != nil {
		t.Fatal(err)
	}
	if ids == nil || len(ids) != 0 {
		t.Fatalf("want empty non-nil ids, got %#v", ids)
	}
}

func TestScheduleCampaign(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2025, 10, 2, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM campaigns`).
		WithArgs(int64(4)).
		WillReturnRows(campaignRow(4, false, nil))
	mock.ExpectExec(`UPDATE campaigns\s+SET scheduled_send=\$1`).
		WithArgs(at, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.ScheduleCampaign(context.Background(), 4, &at); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestScheduleCampaign_AlreadySent(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT (.+) FROM campaigns`).
		WithArgs(int64(4)).
		WillReturnRows(campaignRow(4, true, nil))

	if err := s.ScheduleCampaign(context.Background(), 4, nil); !errors.Is(err, campaign.ErrAlreadySent) {
		t.Fatalf("want ErrAlreadySent, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestClaimDueCampaigns(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2025, 10, 2, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`UPDATE campaigns\s+SET dispatched_at=NOW\(\)`).
		WithArgs(now, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)).AddRow(int64(8)))

	ids, err := s.ClaimDueCampaigns(context.Background(), now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 8 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestReleaseCampaign(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE campaigns\s+SET dispatched_at=NULL`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.ReleaseCampaign(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMessagePending(t *testing.T) {
	s, mock := newMock(t)
	q := `SELECT status FROM messages WHERE campaign_id=\$1 AND recipient_id=\$2`
	mock.ExpectQuery(q).WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("sent"))
	mock.ExpectQuery(q).WithArgs(int64(7), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectQuery(q).WithArgs(int64(7), int64(3)).
		WillReturnError(sql.ErrNoRows)

	ctx := context.Background()
	if p, err := s.MessagePending(ctx, 7, 1); err != nil || p {
		t.Fatalf("sent message: pending=%v err=%v", p, err)
	}
	if p, err := s.MessagePending(ctx, 7, 2); err != nil || !p {
		t.Fatalf("pending message: pending=%v err=%v", p, err)
	}
	if p, err := s.MessagePending(ctx, 7, 3); err != nil || !p {
		t.Fatalf("missing row: pending=%v err=%v", p, err)
	}
}

func TestInsertMessagePending_WithTx(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO messages (campaign_id, recipient_id, status)`)).
		WithArgs(int64(7), int64(101)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.InsertMessagePending(ctx, tx, 7, 101)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithTx_Rollback(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	if err := s.WithTx(context.Background(), func(*sql.Tx) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkCampaignSentIfComplete(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE campaigns\s+SET has_sent=TRUE`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	done, err := s.MarkCampaignSentIfComplete(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("want done")
	}
}

func TestListContacts(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`FROM contacts\s+WHERE list_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "list_id", "email", "first_name", "last_name"}).
			AddRow(int64(1), int64(3), "a@x.com", "Ann", "Lee").
			AddRow(int64(2), int64(3), "b@x.com", "Bo", ""))

	out, err := s.ListContacts(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[1].Email != "b@x.com" {
		t.Fatalf("unexpected contacts %+v", out)
	}
}
