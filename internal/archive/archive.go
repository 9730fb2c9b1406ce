// Package archive persists finished battles to Postgres. The live system is
// entirely in-memory; this is the write-only boundary to the historical
// results store, and it is optional — an empty DSN disables it.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codeclash/battle-backend/internal/battle"
)

// CompletedBattle is the archived row for one finished battle.
type CompletedBattle struct {
	ID           string `gorm:"primaryKey"`
	BattleType   string `gorm:"index"`
	Winner       string
	Participants string // JSON array of participant summaries
	CreatedAt    time.Time
	CompletedAt  time.Time
}

type participantRecord struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	TestsPassed int        `json:"testsPassed"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Forfeited   bool       `json:"forfeited,omitempty"`
}

type Store struct {
	db *gorm.DB
}

// Open connects and migrates. An empty dsn returns a disabled store whose
// writes are no-ops, which keeps the caller free of nil checks.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return &Store{}, nil
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&CompletedBattle{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Enabled() bool { return s != nil && s.db != nil }

func (s *Store) SaveCompleted(ctx context.Context, final battle.State) error {
	if !s.Enabled() {
		return nil
	}
	records := make([]participantRecord, len(final.Participants))
	for i, p := range final.Participants {
		rec := participantRecord{
			ID:          p.ID,
			Name:        p.Name,
			TestsPassed: p.TestsPassed,
			Completed:   p.Completed,
			Forfeited:   p.Forfeited,
		}
		if p.Completed {
			at := p.CompletedAt
			rec.CompletedAt = &at
		}
		records[i] = rec
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return err
	}
	row := CompletedBattle{
		ID:           final.ID,
		BattleType:   final.BattleType,
		Winner:       final.Winner,
		Participants: string(blob),
		CreatedAt:    final.CreatedAt,
		CompletedAt:  final.EndedAt,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}
