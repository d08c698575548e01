package campaign

import "time"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
)

type Campaign struct {
	ID            int64
	Name          string
	Subject       string
	SendFromName  string
	ListID        int64
	Blocks        string
	GlobalStyles  string
	ScheduledSend *time.Time
	DispatchedAt  *time.Time
	HasSent       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c Campaign) Status() Status {
	switch {
	case c.HasSent:
		return StatusSent
	case c.DispatchedAt != nil:
		return StatusSending
	case c.ScheduledSend != nil:
		return StatusScheduled
	default:
		return StatusDraft
	}
}

// Locked reports whether content and schedule can no longer change.
func (c Campaign) Locked() bool {
	return c.HasSent || c.DispatchedAt != nil
}

type List struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ContactCount int    `json:"contact_count"`
}

type Contact struct {
	ID        int64
	ListID    int64
	Email     string
	FirstName string
	LastName  string
}

type CreateCampaignReq struct {
	Name     string `json:"campaign_name" binding:"required"`
	Subject  string `json:"email_subject" binding:"required"`
	FromName string `json:"from_name"     binding:"required"`
	ListID   int64  `json:"list_id"       binding:"required,gt=0"`
}

type CreateCampaignResp struct {
	ID int64 `json:"id"`
}

type UpdateCampaignReq struct {
	Name         string `json:"campaign_name"  binding:"required"`
	Subject      string `json:"email_subject"  binding:"required"`
	SendFromName string `json:"send_from_name" binding:"required"`
	ListID       int64  `json:"list_id"        binding:"required,gt=0"`
}

type UpdateBlocksReq struct {
	Blocks       string `json:"blocks"        binding:"required"`
	GlobalStyles string `json:"global_styles"`
}

type DeleteCampaignsReq struct {
	IDs []int64 `json:"campaign_ids" binding:"required,min=1,dive,gt=0"`
}

type DeleteCampaignsResp struct {
	Deleted int64 `json:"deleted"`
}

type ScheduleReq struct {
	ScheduledSend *time.Time `json:"scheduled_send"`
	Unschedule    bool       `json:"unschedule"`
}

type ListRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CampaignListItem struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Subject       string     `json:"subject"`
	HasSent       bool       `json:"has_sent"`
	ScheduledSend *time.Time `json:"scheduled_send"`
	Status        Status     `json:"status"`
	UpdatedAt     time.Time  `json:"updated_at"`
	List          ListRef    `json:"list"`
}

type CampaignDetails struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Subject       string     `json:"subject"`
	SendFromName  string     `json:"send_from_name"`
	Blocks        string     `json:"blocks"`
	GlobalStyles  string     `json:"global_styles"`
	HasSent       bool       `json:"has_sent"`
	ScheduledSend *time.Time `json:"scheduled_send"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	List          List       `json:"list"`
	Stats         struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
		Sent    int `json:"sent"`
		Failed  int `json:"failed"`
	} `json:"stats"`
}

type EditorInfo struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Subject      string `json:"subject"`
	SendFromName string `json:"send_from_name"`
	Blocks       string `json:"blocks"`
	GlobalStyles string `json:"global_styles"`
}

type SentCountResp struct {
	Count int `json:"count"`
}

// DeliveryJob is the queue payload for a single recipient of a campaign.
type DeliveryJob struct {
	CampaignID  int64  `json:"campaign_id"`
	RecipientID int64  `json:"recipient_id"`
	Address     string `json:"address"`
}
