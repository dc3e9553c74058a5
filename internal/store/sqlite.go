// 包 store 提供存储实现（SQLite），按应用维度持久化评论，
// 以 (app_id, review_id) 唯一键做幂等合并，重复写入不算新增。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go-review-trends/internal/model"
)

// ErrNotFound 表示指定应用尚无任何已存评论。
var ErrNotFound = errors.New("no stored reviews for app")

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 打开 SQLite 数据库并执行自动迁移。
func OpenSQLite(path string) (*SQLite, error) {
	// 说明：modernc sqlite 的 DSN 可直接使用文件路径，或以 'file:...' 前缀表示
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// 同一应用的写入需要串行化，单连接即可满足
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// migrate 执行建表语句，保持幂等。
func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reviews (
            app_id TEXT NOT NULL,
            review_id TEXT NOT NULL,
            app_name TEXT,
            text TEXT,
            rating INTEGER,
            created TIMESTAMP,
            fetched_at TIMESTAMP,
            UNIQUE(app_id, review_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_app ON reviews(app_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// Merge 将一批评论并入 appID 的集合并返回新增行数。
// 已存在的 review_id 直接忽略：既不算新增，也不算错误。
func (s *SQLite) Merge(ctx context.Context, appID string, incoming []model.Review) (int, error) {
	if len(incoming) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin merge %s: %w", appID, err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reviews(app_id, review_id, app_name, text, rating, created, fetched_at)
        VALUES(?,?,?,?,?,?,?)
        ON CONFLICT(app_id, review_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare merge %s: %w", appID, err)
	}
	defer stmt.Close()
	added := 0
	now := time.Now()
	for _, r := range incoming {
		if r.ID == "" {
			return added, fmt.Errorf("merge %s: review id required", appID)
		}
		res, err := stmt.ExecContext(ctx, appID, r.ID, r.AppName, r.Text, r.Rating, r.Created, now)
		if err != nil {
			return added, fmt.Errorf("merge %s review %s: %w", appID, r.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit merge %s: %w", appID, err)
	}
	return added, nil
}

// Load 读取 appID 的全部已存评论，按 (created, review_id) 稳定排序。
// 没有任何行时返回 ErrNotFound。
func (s *SQLite) Load(ctx context.Context, appID string) ([]model.Review, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT app_id, review_id, COALESCE(app_name,''), COALESCE(text,''), rating, created
        FROM reviews WHERE app_id = ? ORDER BY created, review_id`, appID)
	if err != nil {
		return nil, fmt.Errorf("query reviews %s: %w", appID, err)
	}
	defer rows.Close()
	var out []model.Review
	for rows.Next() {
		var r model.Review
		var created sql.NullTime
		if err := rows.Scan(&r.AppID, &r.ID, &r.AppName, &r.Text, &r.Rating, &created); err != nil {
			return nil, fmt.Errorf("scan reviews %s: %w", appID, err)
		}
		if created.Valid {
			r.Created = created.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews %s: %w", appID, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("load %s: %w", appID, ErrNotFound)
	}
	return out, nil
}

// Apps 返回已有评论的应用列表（按 app_id 排序），附带展示名。
func (s *SQLite) Apps(ctx context.Context) ([]model.Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT app_id, COALESCE(MAX(app_name),'') FROM reviews GROUP BY app_id ORDER BY app_id`)
	if err != nil {
		return nil, fmt.Errorf("query apps: %w", err)
	}
	defer rows.Close()
	var out []model.Application
	for rows.Next() {
		var a model.Application
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan apps: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate apps: %w", err)
	}
	return out, nil
}

// Count 统计单个应用已存评论数，应用不存在时返回 0。
func (s *SQLite) Count(ctx context.Context, appID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM reviews WHERE app_id = ?`, appID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reviews %s: %w", appID, err)
	}
	return n, nil
}
