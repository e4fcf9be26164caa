package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib" // Import the driver
	"go.uber.org/zap"

	"asinshort/pkg/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS redirects (
		id            UUID PRIMARY KEY,
		tab_id        TEXT NOT NULL,
		from_url      TEXT NOT NULL,
		to_url        TEXT NOT NULL,
		asin          CHAR(10) NOT NULL,
		shape         TEXT NOT NULL,
		redirected_at TIMESTAMPTZ NOT NULL
	)`

type Storage struct {
	db  *sql.DB
	log *zap.Logger
}

func NewStorage(db *sql.DB, log *zap.Logger) *Storage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Storage{db: db, log: log}
}

// WaitForDB opens url with the pgx driver and pings it until it answers or
// attempts run out.
func WaitForDB(ctx context.Context, url string, attempts int, delay time.Duration, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			log.Info("Connected to database")
			return db, nil
		}
		log.Info("Waiting for database", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	db.Close()
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", attempts, err)
}

// JournalSink implements engine.Sink by appending redirects to Postgres.
type JournalSink struct {
	*Storage
}

func NewJournalSink(ctx context.Context, s *Storage) (*JournalSink, error) {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create redirects table: %w", err)
	}
	return &JournalSink{Storage: s}, nil
}

func (s *JournalSink) Save(ctx context.Context, batch []models.Redirect) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO redirects (id, tab_id, from_url, to_url, asin, shape, redirected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		// a failed statement aborts the whole transaction in Postgres
		if _, err := stmt.ExecContext(ctx, r.ID.String(), r.TabID, r.From, r.To, r.ASIN, r.Shape.String(), r.At); err != nil {
			return fmt.Errorf("save redirect %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("Saved redirects", zap.Int("count", len(batch)))
	return nil
}
