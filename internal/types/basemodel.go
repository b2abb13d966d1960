package types

import (
	"context"
	"time"
)

// BaseModel is embedded by every persisted domain model.
// Changes here must be reflected in the SQL migrations.
type BaseModel struct {
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updated_by,omitempty"`
}

func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		TenantID:  GetTenantID(ctx),
		Status:    StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: GetUserID(ctx),
		UpdatedBy: GetUserID(ctx),
	}
}

// Touch stamps the audit fields for an update
func (b *BaseModel) Touch(ctx context.Context, now time.Time) {
	b.UpdatedAt = now.UTC()
	if userID := GetUserID(ctx); userID != "" {
		b.UpdatedBy = userID
	}
}
