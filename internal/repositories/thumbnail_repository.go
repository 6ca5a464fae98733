package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bionicotaku/mergebot/internal/services"
)

// ThumbnailRepository 实现 services.ThumbnailRepo 接口。
// 每个用户最多保存一张自定义封面（Telegram file_id）。
type ThumbnailRepository struct {
	db *pgxpool.Pool
}

// NewThumbnailRepository 构造 ThumbnailRepository 实例。
func NewThumbnailRepository(db *pgxpool.Pool) services.ThumbnailRepo {
	return &ThumbnailRepository{db: db}
}

// Set 保存或替换用户封面。
func (r *ThumbnailRepository) Set(ctx context.Context, userID int64, fileID string) error {
	const q = `
		INSERT INTO thumbnails (user_id, file_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id)
		DO UPDATE SET file_id = EXCLUDED.file_id, updated_at = now()`
	if _, err := r.db.Exec(ctx, q, userID, fileID); err != nil {
		return fmt.Errorf("set thumbnail: %w", err)
	}
	return nil
}

// Get 返回用户封面的 file_id。
// 错误处理：pgx.ErrNoRows → services.ErrThumbnailNotFound。
func (r *ThumbnailRepository) Get(ctx context.Context, userID int64) (string, error) {
	var fileID string
	err := r.db.QueryRow(ctx, `SELECT file_id FROM thumbnails WHERE user_id = $1`, userID).Scan(&fileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", services.ErrThumbnailNotFound
		}
		return "", fmt.Errorf("get thumbnail: %w", err)
	}
	return fileID, nil
}

// Delete 删除用户封面，返回是否确实存在过。
func (r *ThumbnailRepository) Delete(ctx context.Context, userID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM thumbnails WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete thumbnail: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
