package infra_postgres_archive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/picswap/core/internal/model"
)

type Driver struct {
	db *sqlx.DB
}

func New(
	db *sqlx.DB,
) *Driver {
	return &Driver{db: db}
}

type matchDTO struct {
	ID         uuid.UUID `db:"id"`
	Code       string    `db:"code"`
	HostID     string    `db:"host_id"`
	GuestID    string    `db:"guest_id"`
	ImageCount int       `db:"image_count"`
	CreatedAt  time.Time `db:"created_at"`
	EndedAt    time.Time `db:"ended_at"`
}

func (d *Driver) Record(ctx context.Context, m model.MatchRecord) error {
	dto := matchDTO{
		ID:         uuid.New(),
		Code:       m.Code,
		HostID:     m.HostID,
		GuestID:    m.GuestID,
		ImageCount: m.ImageCount,
		CreatedAt:  m.CreatedAt,
		EndedAt:    m.EndedAt,
	}

	query := `
		INSERT INTO matches (id, code, host_id, guest_id, image_count, created_at, ended_at)
		VALUES (:id, :code, :host_id, :guest_id, :image_count, :created_at, :ended_at)
	`

	_, err := d.db.NamedExecContext(ctx, query, dto)
	if err != nil {
		return err
	}
	return nil
}
