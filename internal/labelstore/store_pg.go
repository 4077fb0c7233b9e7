// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package labelstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema human_labels 表；NewStorePg 启动时执行（幂等）
const Schema = `
CREATE TABLE IF NOT EXISTS human_labels (
    id            TEXT PRIMARY KEY,
    client_id     TEXT NOT NULL,
    entity        TEXT NOT NULL,
    only_once_id  INTEGER NOT NULL,
    job_id        INTEGER NOT NULL,
    query_id      INTEGER NOT NULL,
    outcome       TEXT NOT NULL,
    answer        INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_human_labels_entity ON human_labels (entity, created_at);
`

// StorePg Postgres 实现
type StorePg struct {
	pool *pgxpool.Pool
}

// NewStorePg 创建基于 PostgreSQL 的标注台账
func NewStorePg(ctx context.Context, dsn string) (*StorePg, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &StorePg{pool: pool}, nil
}

// Close 关闭连接池
func (s *StorePg) Close() {
	s.pool.Close()
}

func (s *StorePg) Record(ctx context.Context, l *Label) error {
	if l.ID == "" {
		l.ID = "lbl-" + uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO human_labels (id, client_id, entity, only_once_id, job_id, query_id, outcome, answer, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.ClientID, l.Entity, l.OnlyOnceID, l.JobID, l.QueryID, string(l.Outcome), l.Answer, l.CreatedAt)
	return err
}

func (s *StorePg) ListByEntity(ctx context.Context, entity string, limit int) ([]*Label, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, client_id, entity, only_once_id, job_id, query_id, outcome, answer, created_at
		 FROM human_labels WHERE entity = $1 ORDER BY created_at ASC LIMIT $2`,
		entity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLabels(rows)
}

func (s *StorePg) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM human_labels`).Scan(&n)
	return n, err
}

func scanLabels(rows pgx.Rows) ([]*Label, error) {
	var out []*Label
	for rows.Next() {
		var l Label
		var outcome string
		if err := rows.Scan(&l.ID, &l.ClientID, &l.Entity, &l.OnlyOnceID, &l.JobID, &l.QueryID, &outcome, &l.Answer, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Outcome = Outcome(outcome)
		out = append(out, &l)
	}
	return out, rows.Err()
}

var _ Store = (*StorePg)(nil)
