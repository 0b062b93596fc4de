package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const pgUniqueViolation = "23505"

type sessionRow struct {
	ID        string `gorm:"primaryKey;size:32"`
	Format    string `gorm:"size:8;not null"`
	Version   int    `gorm:"not null"`
	Finished  bool   `gorm:"not null;default:false;index"`
	Data      string `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "veto_sessions" }

type Postgres struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects with gorm over pgx and migrates the sessions table.
func OpenPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	log.Info("connecting to postgres")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Postgres{db: db, log: log}, nil
}

func (p *Postgres) Create(ctx context.Context, s engine.State) error {
	data, err := encodeState(s)
	if err != nil {
		return err
	}
	row := sessionRow{
		ID:       s.ID,
		Format:   string(s.Format),
		Version:  s.Version,
		Finished: s.Finished(),
		Data:     string(data),
	}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrSessionExists
		}
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (engine.State, error) {
	var row sessionRow
	err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, ErrSessionNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("select session %s: %w", id, err)
	}
	return decodeState(id, []byte(row.Data))
}

func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&sessionRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count session %s: %w", id, err)
	}
	return n > 0, nil
}

func (p *Postgres) Update(ctx context.Context, next engine.State, expectedVersion int) error {
	data, err := encodeState(next)
	if err != nil {
		return err
	}
	res := p.db.WithContext(ctx).Model(&sessionRow{}).
		Where("id = ? AND version = ?", next.ID, expectedVersion).
		Updates(map[string]any{
			"version":    next.Version,
			"finished":   next.Finished(),
			"data":       string(data),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update session %s: %w", next.ID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	ok, err := p.Exists(ctx, next.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	p.log.Debug("version conflict", zap.String("session_id", next.ID), zap.Int("expected_version", expectedVersion))
	return ErrVersionConflict
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	res := p.db.WithContext(ctx).Where("id = ?", id).Delete(&sessionRow{})
	if res.Error != nil {
		return fmt.Errorf("delete session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
