package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"channel-quiz-service/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// BankStore persists question banks in a single SQLite file.
type BankStore struct {
	db *sql.DB
}

func NewBankStore(path string) (*BankStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "quiz.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &BankStore{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *BankStore) Close() error {
	return s.db.Close()
}

func (s *BankStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS quiz_banks (
			group_id   TEXT NOT NULL,
			name       TEXT NOT NULL,
			data       TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (group_id, name)
		)`)
	if err != nil {
		return fmt.Errorf("create quiz_banks: %w", err)
	}
	return nil
}

func (s *BankStore) Put(ctx context.Context, groupID, name string, items []domain.Question) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal bank: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO quiz_banks (group_id, name, data, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		groupID, name, string(data))
	if err != nil {
		return fmt.Errorf("save bank: %w", err)
	}
	return nil
}

func (s *BankStore) ListAll(ctx context.Context) ([]domain.StoredBank, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, name, data FROM quiz_banks ORDER BY group_id, name`)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredBank
	for rows.Next() {
		var (
			bank domain.StoredBank
			raw  string
		)
		if err := rows.Scan(&bank.GroupID, &bank.Name, &raw); err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &bank.Items); err != nil {
			return nil, fmt.Errorf("unmarshal bank %s/%s: %w", bank.GroupID, bank.Name, err)
		}
		out = append(out, bank)
	}
	return out, rows.Err()
}
