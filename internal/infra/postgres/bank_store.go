package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"channel-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// BankStore persists question banks as JSONB rows keyed by (group_id, name).
type BankStore struct {
	pool *pgxpool.Pool
}

func NewBankStore(pool *pgxpool.Pool) *BankStore {
	return &BankStore{pool: pool}
}

func (s *BankStore) Put(ctx context.Context, groupID, name string, items []domain.Question) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal bank: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_banks (group_id, name, data, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (group_id, name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		groupID, name, string(data))
	if err != nil {
		return fmt.Errorf("upsert bank: %w", err)
	}
	return nil
}

func (s *BankStore) ListAll(ctx context.Context) ([]domain.StoredBank, error) {
	rows, err := s.pool.Query(ctx, `SELECT group_id, name, data FROM quiz_banks ORDER BY group_id, name`)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredBank
	for rows.Next() {
		var (
			bank domain.StoredBank
			raw  []byte
		)
		if err := rows.Scan(&bank.GroupID, &bank.Name, &raw); err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		if err := json.Unmarshal(raw, &bank.Items); err != nil {
			return nil, fmt.Errorf("unmarshal bank %s/%s: %w", bank.GroupID, bank.Name, err)
		}
		out = append(out, bank)
	}
	return out, rows.Err()
}
