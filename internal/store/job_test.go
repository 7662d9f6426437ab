package store_test

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/retrato-ai/retrato/internal/config"
	"github.com/retrato-ai/retrato/internal/store"
	"github.com/retrato-ai/retrato/internal/store/model"
	"gorm.io/gorm"
)

const (
	insertJobStm          = "INSERT INTO jobs (id, status, source_key, preset) VALUES ('%s', '%s', '%s', '%s');"
	insertJobAtStageStm   = "INSERT INTO jobs (id, status, stage, progress, run_token, source_key, preset) VALUES ('%s', '%s', '%s', %d, '%s', '%s', '%s');"
	insertFailedJobStm    = "INSERT INTO jobs (id, status, stage, progress, error_message, can_retry, run_token, source_key, preset) VALUES ('%s', 'failed', 'failed', %d, '%s', TRUE, '%s', '%s', '%s');"
	insertJobCreatedAtStm = "INSERT INTO jobs (id, status, source_key, preset, created_at) VALUES ('%s', '%s', '%s', '%s', '%s');"
)

var _ = Describe("job store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		cfg, err := config.NewDefault()
		Expect(err).To(BeNil())

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db

		Expect(s.Job().InitialMigration(context.TODO())).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	Context("create", func() {
		It("creates a pending job without a stage", func() {
			job, err := s.Job().Create(context.TODO(), model.NewJob("uploads/photo.jpg", "portrait"))
			Expect(err).To(BeNil())
			Expect(job).ToNot(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusPending))
			Expect(job.Stage).To(BeNil())
			Expect(job.Progress).To(Equal(0))
			Expect(job.SourceKey).To(Equal("uploads/photo.jpg"))
			Expect(job.Preset).To(Equal("portrait"))

			count := 0
			Expect(gormdb.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(1))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from jobs;")
		})
	})

	Context("get", func() {
		It("reads back a job by its id", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, jobID, "pending", "uploads/selfie.png", "anime"))
			Expect(tx.Error).To(BeNil())

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal(jobID))
			Expect(job.Status).To(Equal(model.JobStatusPending))
			Expect(job.SourceKey).To(Equal("uploads/selfie.png"))
			Expect(job.Preset).To(Equal("anime"))
		})

		It("returns ErrRecordNotFound for an unknown id", func() {
			_, err := s.Job().Get(context.TODO(), uuid.New())
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from jobs;")
		})
	})

	Context("list", func() {
		It("lists all the jobs", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "pending", "uploads/1.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "pending", "uploads/2.jpg", "vintage"))
			Expect(tx.Error).To(BeNil())

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter(), store.NewJobQueryOptions())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
		})

		It("filters by status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "pending", "uploads/1.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "completed", "uploads/2.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter().ByStatus(model.JobStatusCompleted), store.NewJobQueryOptions())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Status).To(Equal(model.JobStatusCompleted))
		})

		It("orders by creation time", func() {
			olderID := uuid.New()
			newerID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobCreatedAtStm, newerID, "pending", "uploads/new.jpg", "portrait", "2026-08-20 10:00:00"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobCreatedAtStm, olderID, "pending", "uploads/old.jpg", "portrait", "2026-08-20 09:00:00"))
			Expect(tx.Error).To(BeNil())

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter(), store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].ID).To(Equal(olderID))
			Expect(jobs[1].ID).To(Equal(newerID))
		})

		It("limits the result set", func() {
			for i := 0; i < 3; i++ {
				tx := gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "pending", fmt.Sprintf("uploads/%d.jpg", i), "portrait"))
				Expect(tx.Error).To(BeNil())
			}

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter(), store.NewJobQueryOptions().WithLimit(2))
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from jobs;")
		})
	})

	Context("begin run", func() {
		It("moves a pending job to processing and stamps the run token", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, jobID, "pending", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			job, err := s.Job().BeginRun(context.TODO(), jobID, "run-1")
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusProcessing))

			token := sql.NullString{}
			Expect(gormdb.Raw(fmt.Sprintf("SELECT run_token from jobs WHERE id = '%s';", jobID)).Scan(&token).Error).To(BeNil())
			Expect(token.Valid).To(BeTrue())
			Expect(token.String).To(Equal("run-1"))
		})

		It("lets only one of two competing starts win", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, jobID, "pending", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			_, err := s.Job().BeginRun(context.TODO(), jobID, "run-1")
			Expect(err).To(BeNil())

			_, err = s.Job().BeginRun(context.TODO(), jobID, "run-2")
			Expect(err).To(MatchError(store.ErrPreconditionFailed))

			token := sql.NullString{}
			Expect(gormdb.Raw(fmt.Sprintf("SELECT run_token from jobs WHERE id = '%s';", jobID)).Scan(&token).Error).To(BeNil())
			Expect(token.String).To(Equal("run-1"))
		})

		It("refuses a job that is not pending", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, jobID, "completed", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			_, err := s.Job().BeginRun(context.TODO(), jobID, "run-1")
			Expect(err).To(MatchError(store.ErrPreconditionFailed))
		})

		It("refuses an unknown job", func() {
			_, err := s.Job().BeginRun(context.TODO(), uuid.New(), "run-1")
			Expect(err).To(MatchError(store.ErrPreconditionFailed))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from jobs;")
		})
	})

	Context("advance stage", func() {
		It("assigns the first stage to a job that has none", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, jobID, "processing", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			job, err := s.Job().AdvanceStage(context.TODO(), jobID, nil, store.StageUpdate{
				Stage:    model.StageValidating,
				Status:   model.JobStatusProcessing,
				Progress: 5,
			})
			Expect(err).To(BeNil())
			Expect(job.Stage).ToNot(BeNil())
			Expect(*job.Stage).To(Equal(model.StageValidating))
			Expect(job.Progress).To(Equal(5))
		})

		It("moves a job forward when the observed stage still holds", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobAtStageStm, jobID, "processing", "generating", 40, "run-1", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			observed := model.StageGenerating
			job, err := s.Job().AdvanceStage(context.TODO(), jobID, &observed, store.StageUpdate{
				Stage:    model.StageStoring,
				Status:   model.JobStatusProcessing,
				Progress: 70,
			})
			Expect(err).To(BeNil())
			Expect(*job.Stage).To(Equal(model.StageStoring))
			Expect(job.Progress).To(Equal(70))
		})

		It("refuses a stale observed stage", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobAtStageStm, jobID, "processing", "storing", 70, "run-1", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			observed := model.StageGenerating
			_, err := s.Job().AdvanceStage(context.TODO(), jobID, &observed, store.StageUpdate{
				Stage:    model.StageStoring,
				Status:   model.JobStatusProcessing,
				Progress: 70,
			})
			Expect(err).To(MatchError(store.ErrPreconditionFailed))

			stage := sql.NullString{}
			Expect(gormdb.Raw(fmt.Sprintf("SELECT stage from jobs WHERE id = '%s';", jobID)).Scan(&stage).Error).To(BeNil())
			Expect(stage.String).To(Equal("storing"))
		})

		It("writes the completion columns and releases the run token", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobAtStageStm, jobID, "processing", "watermarking", 90, "run-9", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			observed := model.StageWatermarking
			resultKey := fmt.Sprintf("results/%s.png", jobID)
			job, err := s.Job().AdvanceStage(context.TODO(), jobID, &observed, store.StageUpdate{
				Stage:         model.StageComplete,
				Status:        model.JobStatusCompleted,
				Progress:      100,
				ResultKey:     &resultKey,
				ClearRunToken: true,
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusCompleted))
			Expect(job.Progress).To(Equal(100))

			row := struct {
				ResultKey sql.NullString
				RunToken  sql.NullString
			}{}
			Expect(gormdb.Raw(fmt.Sprintf("SELECT result_key, run_token from jobs WHERE id = '%s';", jobID)).Scan(&row).Error).To(BeNil())
			Expect(row.ResultKey.String).To(Equal(resultKey))
			Expect(row.RunToken.Valid).To(BeFalse())
		})

		It("records the failure details", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobAtStageStm, jobID, "processing", "generating", 40, "run-1", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			observed := model.StageGenerating
			message := "the image generation service rejected the photo"
			canRetry := false
			job, err := s.Job().AdvanceStage(context.TODO(), jobID, &observed, store.StageUpdate{
				Stage:         model.StageFailed,
				Status:        model.JobStatusFailed,
				Progress:      40,
				ErrorMessage:  &message,
				CanRetry:      &canRetry,
				ClearRunToken: true,
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(job.ErrorMessage).ToNot(BeNil())
			Expect(*job.ErrorMessage).To(Equal(message))
			Expect(job.CanRetry).To(BeFalse())

			token := sql.NullString{}
			Expect(gormdb.Raw(fmt.Sprintf("SELECT run_token from jobs WHERE id = '%s';", jobID)).Scan(&token).Error).To(BeNil())
			Expect(token.Valid).To(BeFalse())
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from jobs;")
		})
	})

	Context("reset for retry", func() {
		It("returns a failed job to the pending pool", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertFailedJobStm, jobID, 40, "generation timed out", "run-1", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			job, err := s.Job().ResetForRetry(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusPending))
			Expect(job.Stage).To(BeNil())
			Expect(job.Progress).To(Equal(0))
			Expect(job.ErrorMessage).To(BeNil())
			Expect(job.CanRetry).To(BeFalse())

			row := struct {
				ErrorMessage sql.NullString
				RunToken     sql.NullString
			}{}
			Expect(gormdb.Raw(fmt.Sprintf("SELECT error_message, run_token from jobs WHERE id = '%s';", jobID)).Scan(&row).Error).To(BeNil())
			Expect(row.ErrorMessage.Valid).To(BeFalse())
			Expect(row.RunToken.Valid).To(BeFalse())
		})

		It("refuses a job that has not failed", func() {
			jobID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, jobID, "pending", "uploads/photo.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())

			_, err := s.Job().ResetForRetry(context.TODO(), jobID)
			Expect(err).To(MatchError(store.ErrPreconditionFailed))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from jobs;")
		})
	})

	Context("statistics", func() {
		It("counts jobs per status and zero-fills the missing ones", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "pending", "uploads/1.jpg", "portrait"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.NewString(), "pending", "uploads/2.jpg", "anime"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFailedJobStm, uuid.New(), 40, "boom", "run-1", "uploads/3.jpg", "vintage"))
			Expect(tx.Error).To(BeNil())

			counts, err := s.Job().Statistics(context.TODO())
			Expect(err).To(BeNil())
			Expect(counts).To(HaveKeyWithValue(model.JobStatusPending, int64(2)))
			Expect(counts).To(HaveKeyWithValue(model.JobStatusFailed, int64(1)))
			Expect(counts).To(HaveKeyWithValue(model.JobStatusProcessing, int64(0)))
			Expect(counts).To(HaveKeyWithValue(model.JobStatusCompleted, int64(0)))
		})

		AfterEach(func() {
			gormdb.Exec("DELETE from jobs;")
		})
	})
})
