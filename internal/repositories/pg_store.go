package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so the same repository code runs pooled or transactional.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the production Store. Outside a transaction its
// repositories run against the pool; WithinTx hands the callback a Store
// bound to a single pgx.Tx, committed only if the callback returns nil.
type PostgresStore struct {
	pool    *pgxpool.Pool
	tasks   *PostgresTaskRepository
	notes   *PostgresNoteRepository
	blocks  *PostgresBlockRepository
	devices *PostgresDeviceRepository
	outbox  *PostgresOutboxRepository
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	s := &PostgresStore{pool: pool}
	s.tasks = NewPostgresTaskRepository(pool)
	s.notes = NewPostgresNoteRepository(pool)
	s.blocks = NewPostgresBlockRepository(pool)
	s.devices = NewPostgresDeviceRepository(pool)
	s.outbox = NewPostgresOutboxRepository(pool)
	return s
}

func (s *PostgresStore) Tasks() TaskRepository     { return s.tasks }
func (s *PostgresStore) Notes() NoteRepository     { return s.notes }
func (s *PostgresStore) Blocks() BlockRepository   { return s.blocks }
func (s *PostgresStore) Devices() DeviceRepository { return s.devices }
func (s *PostgresStore) Outbox() OutboxRepository  { return s.outbox }

// txStore is the transaction-scoped view handed to WithinTx callbacks.
type txStore struct {
	tasks   *PostgresTaskRepository
	notes   *PostgresNoteRepository
	blocks  *PostgresBlockRepository
	devices *PostgresDeviceRepository
	outbox  *PostgresOutboxRepository
}

func newTxStore(tx pgx.Tx) *txStore {
	return &txStore{
		tasks:   NewPostgresTaskRepository(tx),
		notes:   NewPostgresNoteRepository(tx),
		blocks:  NewPostgresBlockRepository(tx),
		devices: NewPostgresDeviceRepository(tx),
		outbox:  NewPostgresOutboxRepository(tx),
	}
}

func (s *txStore) Tasks() TaskRepository     { return s.tasks }
func (s *txStore) Notes() NoteRepository     { return s.notes }
func (s *txStore) Blocks() BlockRepository   { return s.blocks }
func (s *txStore) Devices() DeviceRepository { return s.devices }
func (s *txStore) Outbox() OutboxRepository  { return s.outbox }

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newTxStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
