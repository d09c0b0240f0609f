package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/model"
	generateimage "portrait-studio-server/modules/generate-image"
)

// Generator - 최종 이미지 생성 (generateimage.Service)
type Generator interface {
	Generate(ctx context.Context, req generateimage.Request) (*generateimage.Result, error)
}

// Notifier - job 상태 변경 알림 (studio.Manager가 websocket으로 전달)
type Notifier interface {
	NotifyJob(job *model.GenerationJob)
}

// Worker - Redis Queue Worker
type Worker struct {
	store       *JobStore
	rdb         *redis.Client
	generator   Generator
	notifier    Notifier
	pollTimeout time.Duration
	jobTimeout  time.Duration
	saveTimeout time.Duration
	wg          sync.WaitGroup
}

// NewWorker - notifier는 nil 가능
func NewWorker(rdb *redis.Client, store *JobStore, generator Generator, notifier Notifier) *Worker {
	return &Worker{
		store:       store,
		rdb:         rdb,
		generator:   generator,
		notifier:    notifier,
		pollTimeout: 5 * time.Second,
		jobTimeout:  3 * time.Minute,
		saveTimeout: 5 * time.Second,
	}
}

// Run - ctx가 끝날 때까지 큐 감시, 종료 시 처리 중인 job을 기다림
func (w *Worker) Run(ctx context.Context) {
	log.Info().Msgf("👀 Watching queue: %s", QueueKey)
	defer w.wg.Wait()

	for {
		if ctx.Err() != nil {
			log.Info().Msg("🛑 Worker stopping")
			return
		}

		// Job 받기 (BRPOP - Blocking Right Pop)
		result, err := w.rdb.BRPop(ctx, w.pollTimeout, QueueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Msgf("❌ Redis BRPOP error: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// result[0]은 queue 이름, result[1]이 실제 job_id
		jobID := result[1]
		log.Info().Msgf("🎯 Received new job: %s", jobID)

		// Job 처리 (goroutine으로 비동기)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.Process(context.WithoutCancel(ctx), jobID)
		}()
	}
}

// Process - job 하나 처리: processing → completed/failed
func (w *Worker) Process(parent context.Context, jobID string) {
	ctx, cancel := context.WithTimeout(parent, w.jobTimeout)
	defer cancel()

	job, err := w.store.Update(ctx, jobID, func(job *model.GenerationJob) error {
		if job.Status != model.StatusPending {
			return ErrJobFinished
		}
		now := time.Now().UTC()
		job.Status = model.StatusProcessing
		job.StartedAt = &now
		return nil
	})
	if errors.Is(err, ErrJobFinished) {
		log.Info().Msgf("⏭️  Skipping job %s (status: %s)", jobID, job.Status)
		return
	}
	if err != nil {
		log.Error().Msgf("❌ Failed to fetch job %s: %v", jobID, err)
		return
	}
	w.notify(job)

	img, err := w.store.LoadImage(ctx, jobID)
	var result *generateimage.Result
	if err == nil {
		result, err = w.generator.Generate(ctx, generateimage.Request{
			SessionID: job.SessionID,
			JobID:     job.JobID,
			Image:     img,
			Options:   job.Options,
		})
	}

	// 생성이 타임아웃으로 끝나도 결과는 저장해야 하므로 별도 context 사용
	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(parent), w.saveTimeout)
	defer saveCancel()

	job, saveErr := w.store.Update(saveCtx, jobID, func(job *model.GenerationJob) error {
		now := time.Now().UTC()
		job.CompletedAt = &now
		if err != nil {
			job.Status = model.StatusFailed
			job.Error = err.Error()
			return nil
		}
		job.Status = model.StatusCompleted
		job.ImageURL = result.ImageURL
		job.DataURL = result.DataURL
		return nil
	})
	if saveErr != nil {
		log.Error().Msgf("❌ Failed to save job %s result: %v", jobID, saveErr)
		return
	}
	if delErr := w.store.DeleteImage(saveCtx, jobID); delErr != nil {
		log.Warn().Msgf("⚠️  Failed to delete job image %s: %v", jobID, delErr)
	}

	if err != nil {
		log.Error().Msgf("❌ Job %s failed: %v", jobID, err)
	} else {
		log.Info().Msgf("✅ Job %s processing completed", jobID)
	}
	w.notify(job)
}

func (w *Worker) notify(job *model.GenerationJob) {
	if w.notifier != nil {
		w.notifier.NotifyJob(job)
	}
}
