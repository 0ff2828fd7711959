// Package sqlstore is the relational journal backend: Postgres in
// production, SQLite for development and tests.
//
// Tables, one set per chain:
//
//	extrinsics_<chain>(hash, block, from_account, to_account, value, type, status, updated_at)
//	blocks_<chain>(block)
//	undecoded_events(chain, block, hash, data)
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"gorealisbridge/journal"
	"gorealisbridge/types"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"

	// InMemorySQLiteDSN creates an ephemeral in-memory SQLite database.
	InMemorySQLiteDSN = ":memory:"

	undecodedTable = "undecoded_events"
)

var gormConfig = &gorm.Config{
	Logger: logger.Default.LogMode(logger.Silent),
}

var chains = []types.Chain{types.Realis, types.BSC}

type extrinsicRow struct {
	Hash        string    `gorm:"column:hash;primaryKey"`
	Block       *uint64   `gorm:"column:block"`
	FromAccount string    `gorm:"column:from_account"`
	ToAccount   string    `gorm:"column:to_account"`
	Value       string    `gorm:"column:value"`
	Type        uint8     `gorm:"column:type"`
	Status      uint8     `gorm:"column:status"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

type blockRow struct {
	Block uint64 `gorm:"column:block"`
}

type undecodedRow struct {
	ID    uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Chain string `gorm:"column:chain"`
	Block uint64 `gorm:"column:block"`
	Hash  string `gorm:"column:hash"`
	Data  []byte `gorm:"column:data"`
}

func extrinsicsTable(chain types.Chain) string { return "extrinsics_" + chain.String() }
func blocksTable(chain types.Chain) string     { return "blocks_" + chain.String() }

type Store struct {
	db *gorm.DB
}

// Open connects to the given backend. The schema is expected to exist
// unless Migrate is called.
func Open(backend, dsn string) (*Store, error) {
	switch backend {
	case BackendPostgres:
		db, err := gorm.Open(postgres.Open(dsn), gormConfig)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open postgres database")
		}
		return &Store{db: db}, nil
	case BackendSQLite:
		return openSQLite(dsn)
	}
	return nil, errors.Errorf("unknown sql backend %q", backend)
}

// OpenInMemory opens a migrated, non-persistent SQLite store.
func OpenInMemory() (*Store, error) {
	s, err := openSQLite(InMemorySQLiteDSN)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openSQLite(dsn string) (*Store, error) {
	if dsn != InMemorySQLiteDSN && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// single connection, also keeps an in-memory database alive
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return &Store{db: db}, nil
}

// Migrate creates the journal tables. Production schemas are managed
// outside the bridge; this is for development and tests.
func (s *Store) Migrate() error {
	for _, chain := range chains {
		if err := s.db.Table(extrinsicsTable(chain)).AutoMigrate(&extrinsicRow{}); err != nil {
			return errors.Wrapf(err, "failed to migrate %s", extrinsicsTable(chain))
		}
		if err := s.db.Table(blocksTable(chain)).AutoMigrate(&blockRow{}); err != nil {
			return errors.Wrapf(err, "failed to migrate %s", blocksTable(chain))
		}
	}
	if err := s.db.Table(undecodedTable).AutoMigrate(&undecodedRow{}); err != nil {
		return errors.Wrapf(err, "failed to migrate %s", undecodedTable)
	}
	return nil
}

func (s *Store) InsertEvent(ctx context.Context, rec types.JournalRecord) (bool, error) {
	row := extrinsicRow{
		Hash:        rec.Hash,
		Block:       rec.Block,
		FromAccount: rec.From,
		ToAccount:   rec.To,
		Value:       string(rec.Value),
		Type:        uint8(rec.Kind),
		Status:      uint8(rec.Status),
		UpdatedAt:   rec.UpdatedAt.UTC(),
	}
	res := s.db.WithContext(ctx).
		Table(extrinsicsTable(rec.Chain)).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to insert event")
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) UpdateStatus(ctx context.Context, chain types.Chain, hash string, status types.Status, at time.Time) error {
	res := s.db.WithContext(ctx).
		Table(extrinsicsTable(chain)).
		Where("hash = ?", hash).
		Updates(map[string]any{
			"status":     uint8(status),
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update event status")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(journal.ErrNotFound, "%s %s", chain, hash)
	}
	return nil
}

func (s *Store) InsertCheckpoint(ctx context.Context, chain types.Chain, height uint64) error {
	err := s.db.WithContext(ctx).
		Table(blocksTable(chain)).
		Create(&blockRow{Block: height}).Error
	return errors.Wrap(err, "failed to insert checkpoint")
}

func (s *Store) MaxCheckpoint(ctx context.Context, chain types.Chain) (uint64, bool, error) {
	var max sql.NullInt64
	err := s.db.WithContext(ctx).
		Table(blocksTable(chain)).
		Select("MAX(block)").
		Row().
		Scan(&max)
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to read checkpoint")
	}
	if !max.Valid {
		return 0, false, nil
	}
	return uint64(max.Int64), true, nil
}

func (s *Store) InsertUndecoded(ctx context.Context, ev types.UndecodedEvent) error {
	err := s.db.WithContext(ctx).
		Table(undecodedTable).
		Create(&undecodedRow{
			Chain: ev.Chain.String(),
			Block: ev.Block,
			Hash:  ev.Hash,
			Data:  ev.Data,
		}).Error
	return errors.Wrap(err, "failed to insert undecoded event")
}

func (s *Store) Get(ctx context.Context, chain types.Chain, hash string) (types.JournalRecord, error) {
	var row extrinsicRow
	err := s.db.WithContext(ctx).
		Table(extrinsicsTable(chain)).
		Where("hash = ?", hash).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.JournalRecord{}, errors.Wrapf(journal.ErrNotFound, "%s %s", chain, hash)
	}
	if err != nil {
		return types.JournalRecord{}, errors.Wrap(err, "failed to get event")
	}
	return row.record(chain), nil
}

func (s *Store) ListByStatus(ctx context.Context, chain types.Chain, status types.Status, limit int) ([]types.JournalRecord, error) {
	var rows []extrinsicRow
	err := s.db.WithContext(ctx).
		Table(extrinsicsTable(chain)).
		Where("status = ?", uint8(status)).
		Order("block ASC").
		Order("updated_at ASC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events by status")
	}
	return records(chain, rows), nil
}

func (s *Store) ListStuck(ctx context.Context, chain types.Chain, before time.Time, limit int) ([]types.JournalRecord, error) {
	var rows []extrinsicRow
	err := s.db.WithContext(ctx).
		Table(extrinsicsTable(chain)).
		Where("status = ? AND updated_at < ?", uint8(types.StatusInProgress), before.UTC()).
		Order("updated_at ASC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stuck events")
	}
	return records(chain, rows), nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) IsTransient(err error) bool {
	return isTransient(err)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(err, "failed to close database connection")
	}
	return nil
}

func (r extrinsicRow) record(chain types.Chain) types.JournalRecord {
	return types.JournalRecord{
		Chain:     chain,
		Hash:      r.Hash,
		Block:     r.Block,
		From:      r.FromAccount,
		To:        r.ToAccount,
		Value:     []byte(r.Value),
		Kind:      types.EventKind(r.Type),
		Status:    types.Status(r.Status),
		UpdatedAt: r.UpdatedAt,
	}
}

// normalizeLimit maps non-positive limits to gorm's "no limit".
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func records(chain types.Chain, rows []extrinsicRow) []types.JournalRecord {
	out := make([]types.JournalRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record(chain))
	}
	return out
}

func (s *Store) String() string {
	return fmt.Sprintf("sqlstore(%s)", s.db.Dialector.Name())
}
