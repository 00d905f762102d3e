package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/store"
)

// Store implements store.Store on Postgres. Rows are scoped by account id so
// several engines can share one database.
type Store struct {
	db        *DB
	logger    *zap.Logger
	accountID string
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Postgres-backed store for one account.
func NewStore(db *DB, logger *zap.Logger, accountID string) *Store {
	return &Store{
		db:        db,
		logger:    logger,
		accountID: accountID,
	}
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	query := `SELECT value FROM inapp_counters WHERE account_id = $1 AND key = $2`

	var v int64
	err := s.db.Pool().QueryRow(ctx, query, s.accountID, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query counter: %w", err)
	}
	return v, nil
}

func (s *Store) PutInt(ctx context.Context, key string, value int64) error {
	query := `
		INSERT INTO inapp_counters (account_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := s.db.Pool().Exec(ctx, query, s.accountID, key, value); err != nil {
		return fmt.Errorf("upsert counter: %w", err)
	}
	return nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	query := `
		INSERT INTO inapp_counters (account_id, key, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (account_id, key)
		DO UPDATE SET value = inapp_counters.value + 1, updated_at = NOW()
		RETURNING value
	`

	var v int64
	if err := s.db.Pool().QueryRow(ctx, query, s.accountID, key).Scan(&v); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return v, nil
}

// lockList serializes writers of one list for the rest of tx.
func (s *Store) lockList(ctx context.Context, tx pgx.Tx, key string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.accountID+"/"+key)
	if err != nil {
		return fmt.Errorf("lock list: %w", err)
	}
	return nil
}

func (s *Store) PushBack(ctx context.Context, key string, items ...[]byte) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.lockList(ctx, tx, key); err != nil {
		return err
	}

	var last int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM inapp_list_items WHERE account_id = $1 AND list_key = $2`,
		s.accountID, key,
	).Scan(&last)
	if err != nil {
		return fmt.Errorf("query tail position: %w", err)
	}

	batch := &pgx.Batch{}
	for i, item := range items {
		batch.Queue(
			`INSERT INTO inapp_list_items (account_id, list_key, position, item) VALUES ($1, $2, $3, $4)`,
			s.accountID, key, last+int64(i)+1, item,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert list items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) PushFront(ctx context.Context, key string, item []byte) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.lockList(ctx, tx, key); err != nil {
		return err
	}

	query := `
		INSERT INTO inapp_list_items (account_id, list_key, position, item)
		SELECT $1, $2, COALESCE(MIN(position), 1) - 1, $3
		FROM inapp_list_items
		WHERE account_id = $1 AND list_key = $2
	`
	if _, err := tx.Exec(ctx, query, s.accountID, key, item); err != nil {
		return fmt.Errorf("insert list head: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) PopFront(ctx context.Context, key string) ([]byte, error) {
	query := `
		DELETE FROM inapp_list_items
		WHERE id = (
			SELECT id FROM inapp_list_items
			WHERE account_id = $1 AND list_key = $2
			ORDER BY position
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING item
	`

	var item []byte
	err := s.db.Pool().QueryRow(ctx, query, s.accountID, key).Scan(&item)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		s.logger.Error("failed to pop list head",
			zap.Error(err),
			zap.String("list_key", key),
		)
		return nil, fmt.Errorf("pop list head: %w", err)
	}
	return item, nil
}

func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM inapp_list_items WHERE account_id = $1 AND list_key = $2`,
		s.accountID, key,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count list items: %w", err)
	}
	return n, nil
}

func (s *Store) Range(ctx context.Context, key string) ([][]byte, error) {
	query := `
		SELECT id, account_id, list_key, position, item, created_at
		FROM inapp_list_items
		WHERE account_id = $1 AND list_key = $2
		ORDER BY position
	`

	rows, err := s.db.Pool().Query(ctx, query, s.accountID, key)
	if err != nil {
		return nil, fmt.Errorf("query list items: %w", err)
	}
	defer rows.Close()

	var items [][]byte
	for rows.Next() {
		var li ListItem
		if err := rows.Scan(&li.ID, &li.AccountID, &li.ListKey, &li.Position, &li.Item, &li.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan list item: %w", err)
		}
		items = append(items, li.Item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate list items: %w", err)
	}
	return items, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM inapp_counters WHERE account_id = $1 AND key = $2`, s.accountID, key); err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM inapp_list_items WHERE account_id = $1 AND list_key = $2`, s.accountID, key); err != nil {
		return fmt.Errorf("delete list: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("store key deleted", zap.String("key", key))
	return nil
}
