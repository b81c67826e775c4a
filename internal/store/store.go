// Package store persists short links with GORM. Counters are only ever
// changed with single UPDATE statements of the form col = col + n, so
// concurrent increments for one code cannot overwrite each other.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MagnunAVF/shortlink/internal"
)

// DB_DRIVER values accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Store struct {
	db *gorm.DB
}

// Tally is a number of clicks on one code during one day.
type Tally struct {
	Code   string
	Day    string
	Clicks int64
	LastAt time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func Open(driver, dsn string, log gormlogger.Interface) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: log, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// One connection: keeps :memory: databases alive and serializes writers.
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db), nil
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&internal.ShortLink{}, &internal.ClickDaily{})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) FindByCode(ctx context.Context, code string) (*internal.ShortLink, error) {
	var link internal.ShortLink
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find code %q: %w: %w", code, internal.ErrPersistenceUnavailable, err)
	}
	return &link, nil
}

// FindByTargetURL returns a non-expiring link pointing at targetURL.
func (s *Store) FindByTargetURL(ctx context.Context, targetURL string) (*internal.ShortLink, error) {
	var link internal.ShortLink
	err := s.db.WithContext(ctx).
		Where("target_url = ? AND expires_at IS NULL", targetURL).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find target %q: %w: %w", targetURL, internal.ErrPersistenceUnavailable, err)
	}
	return &link, nil
}

func (s *Store) Create(ctx context.Context, link *internal.ShortLink) error {
	err := s.db.WithContext(ctx).Create(link).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", internal.ErrCodeTaken, link.Code)
	}
	if err != nil {
		return fmt.Errorf("create %q: %w: %w", link.Code, internal.ErrPersistenceUnavailable, err)
	}
	return nil
}

// IncrementClickCount adds n clicks to code, stamped at the given time.
func (s *Store) IncrementClickCount(ctx context.Context, code string, n int64, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return increment(tx, Tally{Code: code, Day: internal.DayKey(at), Clicks: n, LastAt: at})
	})
}

// ApplyClickCounts applies a batch of tallies in one transaction. Tallies for
// codes that no longer exist are skipped and counted in the returned value.
func (s *Store) ApplyClickCounts(ctx context.Context, tallies []Tally) (skipped int, err error) {
	sorted := make([]Tally, len(tallies))
	copy(sorted, tallies)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LastAt.Before(sorted[j].LastAt) })

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skipped = 0
		for _, t := range sorted {
			err := increment(tx, t)
			if errors.Is(err, internal.ErrNotFound) {
				skipped++
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return skipped, err
}

func increment(tx *gorm.DB, t Tally) error {
	if t.Clicks <= 0 {
		return nil
	}

	res := tx.Model(&internal.ShortLink{}).
		Where("code = ?", t.Code).
		UpdateColumns(map[string]interface{}{
			"click_count":     gorm.Expr("click_count + ?", t.Clicks),
			"last_clicked_at": t.LastAt,
		})
	if res.Error != nil {
		return fmt.Errorf("increment %q: %w: %w", t.Code, internal.ErrPersistenceUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrNotFound
	}

	// Upsert: insert the day's first clicks, or add to the existing bucket
	daily := internal.ClickDaily{Code: t.Code, Day: t.Day, Clicks: t.Clicks}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"clicks": gorm.Expr("click_daily_stats.clicks + EXCLUDED.clicks"),
		}),
	}).Create(&daily).Error
	if err != nil {
		return fmt.Errorf("daily rollup %q: %w: %w", t.Code, internal.ErrPersistenceUnavailable, err)
	}
	return nil
}

// DailyClicks returns the rollup for the last `days` days up to now, oldest first.
func (s *Store) DailyClicks(ctx context.Context, code string, days int, now time.Time) ([]internal.ClickDaily, error) {
	if days <= 0 {
		return nil, nil
	}
	since := internal.DayKey(now.AddDate(0, 0, -(days - 1)))

	var rows []internal.ClickDaily
	err := s.db.WithContext(ctx).
		Where("code = ? AND day >= ?", code, since).
		Order("day").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("daily clicks %q: %w: %w", code, internal.ErrPersistenceUnavailable, err)
	}
	return rows, nil
}
