package store

import (
	"context"

	"github.com/retrato-ai/retrato/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	Job() Job
	Statistics(ctx context.Context) (model.StatusCounts, error)
	Ping(ctx context.Context) error
	Close() error
}

type DataStore struct {
	job Job
	db  *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		job: NewJobStore(db),
		db:  db,
	}
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Statistics(ctx context.Context) (model.StatusCounts, error) {
	return s.job.Statistics(ctx)
}

func (s *DataStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
