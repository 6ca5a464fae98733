// Package repositories 实现数据访问层，基于 pgx 连接池执行查询。
package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bionicotaku/mergebot/internal/services"
)

// UserRepository 实现 services.UserRepo 接口。
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository 构造 UserRepository 实例。
func NewUserRepository(db *pgxpool.Pool) services.UserRepo {
	return &UserRepository{db: db}
}

// Upsert 记录用户，重复提交只刷新用户名与活跃时间。
func (r *UserRepository) Upsert(ctx context.Context, userID int64, username string) error {
	const q = `
		INSERT INTO users (user_id, username, last_seen_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id)
		DO UPDATE SET username = EXCLUDED.username, last_seen_at = now()`
	if _, err := r.db.Exec(ctx, q, userID, username); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// IsBanned 查询封禁状态。未注册用户视为未封禁。
func (r *UserRepository) IsBanned(ctx context.Context, userID int64) (bool, error) {
	const q = `SELECT COALESCE(
		(SELECT banned FROM users WHERE user_id = $1), false)`
	var banned bool
	if err := r.db.QueryRow(ctx, q, userID).Scan(&banned); err != nil {
		return false, fmt.Errorf("query banned: %w", err)
	}
	return banned, nil
}

// SetBanned 写入封禁标记，用户不存在时一并落库。
func (r *UserRepository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	const q = `
		INSERT INTO users (user_id, banned)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET banned = EXCLUDED.banned`
	if _, err := r.db.Exec(ctx, q, userID, banned); err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}

// Count 返回已注册用户总数。
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// ListActiveIDs 返回未封禁用户 ID，按注册先后排序。
func (r *UserRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM users WHERE NOT banned ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return ids, nil
}
