package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Mutter0815/blockmail/internal/campaign"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Store struct {
	DB *sql.DB
}

// CampaignSummary is a campaign row joined with its list name.
type CampaignSummary struct {
	campaign.Campaign
	ListName string
}

type CampaignStats struct {
	Total   int
	Pending int
	Sent    int
	Failed  int
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) InsertCampaign(ctx context.Context, name, subject, fromName string, listID int64) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
	INSERT INTO campaigns (name,subject,send_from_name,list_id,blocks,global_styles)
	VALUES ($1,$2,$3,$4,'[]','{}') RETURNING id`, name, subject, fromName, listID).Scan(&id)
	return id, err
}

const campaignColumns = `id, name, subject, send_from_name, list_id, blocks, global_styles,
		       scheduled_send, dispatched_at, has_sent, created_at, updated_at`

// GetCampaign loads one campaign. NULL blocks or styles read as empty, which
// opens an empty editor.
func (s *Store) GetCampaign(ctx context.Context, id int64) (campaign.Campaign, error) {
	var (
		c              campaign.Campaign
		blocks, styles sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Subject, &c.SendFromName, &c.ListID, &blocks, &styles,
		&c.ScheduledSend, &c.DispatchedAt, &c.HasSent, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Campaign{}, &campaign.ErrNotFound{Entity: "campaign", ID: id}
	}
	if err != nil {
		return campaign.Campaign{}, err
	}
	c.Blocks, c.GlobalStyles = blocks.String, styles.String
	return c, nil
}

func (s *Store) GetList(ctx context.Context, id int64) (campaign.List, error) {
	var l campaign.List
	err := s.DB.QueryRowContext(ctx, `
		SELECT l.id, l.name, (SELECT COUNT(*) FROM contacts c WHERE c.list_id = l.id)
		FROM lists l
		WHERE l.id = $1
	`, id).Scan(&l.ID, &l.Name, &l.ContactCount)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.List{}, &campaign.ErrNotFound{Entity: "list", ID: id}
	}
	return l, err
}

func (s *Store) ListCampaigns(ctx context.Context, limit, offset int) ([]CampaignSummary, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query, args, err := psql.
		Select("c.id", "c.name", "c.subject", "c.list_id", "c.has_sent", "c.scheduled_send",
			"c.dispatched_at", "c.updated_at", "l.name").
		From("campaigns c").
		Join("lists l ON l.id = c.list_id").
		OrderBy("c.updated_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CampaignSummary{}
	for rows.Next() {
		var c CampaignSummary
		if err := rows.Scan(&c.ID, &c.Name, &c.Subject, &c.ListID, &c.HasSent, &c.ScheduledSend,
			&c.DispatchedAt, &c.UpdatedAt, &c.ListName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCampaign(ctx context.Context, id int64, name, subject, sendFromName string, listID int64) error {
	return s.updateUnlocked(ctx, id, psql.Update("campaigns").
		Set("name", name).
		Set("subject", subject).
		Set("send_from_name", sendFromName).
		Set("list_id", listID))
}

func (s *Store) UpdateCampaignBlocks(ctx context.Context, id int64, blocks, globalStyles string) error {
	return s.updateUnlocked(ctx, id, psql.Update("campaigns").
		Set("blocks", blocks).
		Set("global_styles", globalStyles))
}

// updateUnlocked applies b to campaign id unless it has been sent or is
// being sent.
func (s *Store) updateUnlocked(ctx context.Context, id int64, b sq.UpdateBuilder) error {
	query, args, err := b.
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		Where("has_sent = FALSE AND dispatched_at IS NULL").
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return s.explainNoRows(ctx, id, res)
}

func (s *Store) explainNoRows(ctx context.Context, id int64, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if c.Locked() {
		return campaign.ErrAlreadySent
	}
	return nil
}

// DeleteCampaigns removes campaigns that are neither sent nor scheduled and
// returns the ids actually deleted.
func (s *Store) DeleteCampaigns(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `
		DELETE FROM campaigns
		WHERE id = ANY($1) AND has_sent = FALSE AND scheduled_send IS NULL
		RETURNING id
	`, int64Slice(ids))
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// ScheduleCampaign sets the send time, or clears it when at is nil.
func (s *Store) ScheduleCampaign(ctx context.Context, id int64, at *time.Time) error {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if c.Locked() {
		return campaign.ErrAlreadySent
	}

	var value any
	if at != nil {
		value = at.UTC()
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns
		   SET scheduled_send=$1, updated_at=NOW()
		 WHERE id=$2 AND has_sent=FALSE AND dispatched_at IS NULL
	`, value, id)
	if err != nil {
		return err
	}
	return s.explainNoRows(ctx, id, res)
}

func (s *Store) CountSentCampaigns(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns WHERE has_sent = TRUE`).Scan(&n)
	return n, err
}

// ClaimDueCampaigns marks up to limit campaigns scheduled at or before now
// as dispatching and returns their ids. Rows locked by another claimer are
// skipped.
func (s *Store) ClaimDueCampaigns(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `
		UPDATE campaigns
		   SET dispatched_at=NOW(), updated_at=NOW()
		 WHERE id IN (
			SELECT id FROM campaigns
			 WHERE has_sent=FALSE AND dispatched_at IS NULL AND scheduled_send <= $1
			 ORDER BY scheduled_send
			 LIMIT $2
			 FOR UPDATE SKIP LOCKED
		 )
		RETURNING id
	`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// ReleaseCampaign undoes a claim whose dispatch did not get every job out,
// so the next tick picks the campaign up again. Pending messages written by
// the failed attempt stay and are skipped on conflict.
func (s *Store) ReleaseCampaign(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns
		   SET dispatched_at=NULL, updated_at=NOW()
		 WHERE id=$1 AND has_sent=FALSE
	`, id)
	return err
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListContacts(ctx context.Context, listID int64) ([]campaign.Contact, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, list_id, email, first_name, last_name
		FROM contacts
		WHERE list_id = $1
		ORDER BY id
	`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.Contact
	for rows.Next() {
		var c campaign.Contact
		if err := rows.Scan(&c.ID, &c.ListID, &c.Email, &c.FirstName, &c.LastName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetContact(ctx context.Context, id int64) (campaign.Contact, error) {
	var c campaign.Contact
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, list_id, email, first_name, last_name
		FROM contacts
		WHERE id = $1
	`, id).Scan(&c.ID, &c.ListID, &c.Email, &c.FirstName, &c.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Contact{}, &campaign.ErrNotFound{Entity: "contact", ID: id}
	}
	return c, err
}

func (s *Store) InsertMessagePending(ctx context.Context, tx *sql.Tx, campaignID, recipientID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (campaign_id, recipient_id, status)
		VALUES ($1,$2,'pending')
		ON CONFLICT (campaign_id, recipient_id) DO NOTHING
	`, campaignID, recipientID)
	return err
}

// MessagePending reports whether the message still awaits delivery. A
// missing row counts as pending.
func (s *Store) MessagePending(ctx context.Context, campaignID, recipientID int64) (bool, error) {
	var status string
	err := s.DB.QueryRowContext(ctx, `
		SELECT status FROM messages WHERE campaign_id=$1 AND recipient_id=$2
	`, campaignID, recipientID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return status == "pending", nil
}

func (s *Store) MarkMessageSent(ctx context.Context, campaignID, recipientID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE messages
		   SET status='sent', sent_at=NOW(), last_error=NULL
		 WHERE campaign_id=$1 AND recipient_id=$2
	`, campaignID, recipientID)
	return err
}

func (s *Store) MarkMessageFailed(ctx context.Context, campaignID, recipientID int64, lastErr string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE messages
		   SET status='failed', last_error=$1
		 WHERE campaign_id=$2 AND recipient_id=$3
	`, lastErr, campaignID, recipientID)
	return err
}

// MarkCampaignSentIfComplete sets has_sent once no message of the campaign
// is pending. It reports whether the flag was set by this call.
func (s *Store) MarkCampaignSentIfComplete(ctx context.Context, campaignID int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns
		   SET has_sent=TRUE, updated_at=NOW()
		 WHERE id=$1 AND has_sent=FALSE
		   AND NOT EXISTS (
			SELECT 1 FROM messages WHERE campaign_id=$1 AND status='pending'
		   )
	`, campaignID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetCampaignStats(ctx context.Context, id int64) (CampaignStats, error) {
	var st CampaignStats
	err := s.DB.QueryRowContext(ctx, `
		SELECT
		  COUNT(*)                                         AS total,
		  COUNT(*) FILTER (WHERE status='pending')         AS pending,
		  COUNT(*) FILTER (WHERE status='sent')            AS sent,
		  COUNT(*) FILTER (WHERE status='failed')          AS failed
		FROM messages
		WHERE campaign_id = $1
	`, id).Scan(&st.Total, &st.Pending, &st.Sent, &st.Failed)
	if err != nil {
		return CampaignStats{}, fmt.Errorf("campaign stats: %w", err)
	}
	return st, nil
}

type int64Slice []int64

func (a int64Slice) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	b.WriteByte('}')
	return b.String(), nil
}
