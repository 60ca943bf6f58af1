// Package gorm provides GORM-based local persistence for promptlib.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/promptlib/pkg/models"
)

// GORM Models

// PromptRow is the stored form of a prompt. Position keeps the in-memory
// collection order across restarts.
type PromptRow struct {
	ID             string                 `gorm:"primaryKey;type:varchar(64)"`
	Position       int                    `gorm:"index:idx_prompts_position;not null"`
	Title          string                 `gorm:"type:text;not null"`
	Content        string                 `gorm:"type:text;not null"`
	Category       string                 `gorm:"type:text;index"`
	Tags           models.JSONStringArray `gorm:"type:text"` // JSON array
	SourceURL      string                 `gorm:"type:text"`
	AIModel        string                 `gorm:"type:text;index"`
	Notes          string                 `gorm:"type:text"`
	IsFavorite     bool                   `gorm:"default:false;index"`
	UsageCount     int                    `gorm:"default:0"`
	LastUsed       sql.NullString         `gorm:"type:text"`
	DateAdded      string                 `gorm:"type:text;not null"`
	DateAddedEpoch int64                  `gorm:"index:idx_prompts_date_added,sort:desc;not null"`
	CollectionID   string                 `gorm:"type:text"`
	IsTemplate     bool                   `gorm:"default:false"`
}

func (PromptRow) TableName() string { return "prompts" }

// BeforeCreate hook to ensure the date fields agree.
func (p *PromptRow) BeforeCreate(tx *gorm.DB) error {
	if p.DateAdded == "" {
		p.DateAdded = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if p.DateAddedEpoch == 0 {
		if t, err := time.Parse(time.RFC3339Nano, p.DateAdded); err == nil {
			p.DateAddedEpoch = t.UnixMilli()
		}
	}
	return nil
}

// CategoryRow is the stored form of a category.
type CategoryRow struct {
	ID       string `gorm:"primaryKey;type:varchar(64)"`
	Position int    `gorm:"not null"`
	Name     string `gorm:"type:text;not null"`
	Color    string `gorm:"type:text"`
	Icon     string `gorm:"type:text"`
}

func (CategoryRow) TableName() string { return "categories" }

// SettingsRow holds the single settings record (ID is always 1).
type SettingsRow struct {
	ID        int    `gorm:"primaryKey"`
	ViewMode  string `gorm:"type:text;not null"`
	SortBy    string `gorm:"type:text;not null"`
	Theme     string `gorm:"type:text;not null"`
	UpdatedAt string `gorm:"not null"`
}

func (SettingsRow) TableName() string { return "settings" }

// MetaRow is a small key/value table for storage bookkeeping.
type MetaRow struct {
	Key   string `gorm:"primaryKey;type:varchar(64)"`
	Value string `gorm:"type:text"`
}

func (MetaRow) TableName() string { return "local_meta" }

// OutboxStatus is the delivery state of an outbox operation.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxDead    OutboxStatus = "dead"
)

// OutboxKind is the remote call an outbox operation replays.
type OutboxKind string

const (
	OutboxCreate OutboxKind = "create"
	OutboxUpdate OutboxKind = "update"
	OutboxDelete OutboxKind = "delete"
)

// OutboxOp is a pending remote write.
type OutboxOp struct {
	ID               int64        `gorm:"primaryKey;autoIncrement"`
	UserID           string       `gorm:"type:text;index;not null"`
	Kind             OutboxKind   `gorm:"type:text;check:kind IN ('create', 'update', 'delete');not null"`
	PromptID         string       `gorm:"type:text;index;not null"`
	Payload          string       `gorm:"type:text"` // JSON prompt for create/update
	Status           OutboxStatus `gorm:"type:text;check:status IN ('pending', 'dead');default:'pending';index:idx_outbox_due,priority:1"`
	Attempts         int          `gorm:"default:0"`
	NextAttemptEpoch int64        `gorm:"index:idx_outbox_due,priority:2;not null"`
	LastError        sql.NullString
	CreatedAt        string `gorm:"not null"`
	CreatedAtEpoch   int64  `gorm:"not null"`
}

func (OutboxOp) TableName() string { return "outbox_ops" }

// BeforeCreate hook to ensure timestamps are set.
func (o *OutboxOp) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if o.CreatedAtEpoch == 0 {
		o.CreatedAtEpoch = now.UnixMilli()
	}
	if o.CreatedAt == "" {
		o.CreatedAt = now.Format(time.RFC3339)
	}
	if o.NextAttemptEpoch == 0 {
		o.NextAttemptEpoch = o.CreatedAtEpoch
	}
	if o.Status == "" {
		o.Status = OutboxPending
	}
	return nil
}
