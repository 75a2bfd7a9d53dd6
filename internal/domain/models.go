// Package domain defines the persistence models for users, send records,
// and daily quota counters. These types are mapped with GORM and form the
// core data layer of the mail dispatch service.
package domain

import "time"

// Send record lifecycle states. A record is created pending and moves
// exactly once to sent or failed.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// DayLayout is the calendar-day key format used for quota accounting.
const DayLayout = "2006-01-02"

// User is an identity known to the service, keyed by email address.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: unique, stored exactly as presented by the identity provider.
//   - Name / Picture: profile attributes refreshed on every sign-in.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email     string    `json:"email"      gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	Picture   string    `json:"picture"    gorm:"type:text;not null;default:''"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// SendRecord is one attempted email dispatch, owned by a user.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: owning user (FK, cascade on delete).
//   - FromName / SenderLocalPart: display name and local part of the sender.
//   - Recipient / Subject / Content: message as submitted; Content is raw HTML.
//   - ProviderMessageID: id assigned by the delivery provider, set on success.
//   - Status: pending, sent or failed (enforced by DB constraint).
//   - Day: calendar day (YYYY-MM-DD) in the quota time zone; the counting key.
//   - CreatedAt: creation instant.
//   - SentAt: set at creation and overwritten when the record is finalized.
type SendRecord struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID            string    `json:"user_id"             gorm:"type:char(36);not null;index;index:idx_records_user_day,priority:1"`
	FromName          string    `json:"from_name"           gorm:"type:varchar(255);not null"`
	SenderLocalPart   string    `json:"sender_local_part"   gorm:"type:varchar(64);not null"`
	Recipient         string    `json:"recipient"           gorm:"type:varchar(320);not null"`
	Subject           string    `json:"subject"             gorm:"type:varchar(998);not null"`
	Content           string    `json:"content"             gorm:"type:text;not null"`
	ProviderMessageID *string   `json:"provider_message_id,omitempty"`
	Status            string    `json:"status"              gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','sent','failed')"`
	Day               string    `json:"day"                 gorm:"type:char(10);not null;index:idx_records_user_day,priority:2"`
	CreatedAt         time.Time `json:"created_at"          gorm:"index"`
	SentAt            time.Time `json:"sent_at"`

	// User is the owner. Records are cascade-deleted with their user.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SendRecord.
func (SendRecord) TableName() string { return "send_records" }

// IsTerminal reports whether the record has left the pending state.
func (r SendRecord) IsTerminal() bool {
	return r.Status == StatusSent || r.Status == StatusFailed
}

// DailyQuota is the per-user, per-day reservation counter. Used is bumped
// by a conditional update so concurrent dispatches cannot exceed the limit.
type DailyQuota struct {
	UserID    string    `json:"user_id"    gorm:"type:char(36);primaryKey"`
	Day       string    `json:"day"        gorm:"type:char(10);primaryKey"`
	Used      int       `json:"used"       gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for DailyQuota.
func (DailyQuota) TableName() string { return "daily_quotas" }

// DayKey formats t as a quota day in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}
