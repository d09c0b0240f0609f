package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"portrait-studio-server/modules/common/model"
)

const QueueKey = "jobs:queue"

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobFinished   = errors.New("job already finished")
	ErrImageNotFound = errors.New("job image not found")
)

func jobKey(jobID string) string   { return "jobs:" + jobID }
func imageKey(jobID string) string { return "jobs:" + jobID + ":image" }

// JobStore - Redis에 job 레코드와 입력 이미지 저장
type JobStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewJobStore - ttl이 지나면 job 레코드 자동 삭제
func NewJobStore(rdb *redis.Client, ttl time.Duration) *JobStore {
	return &JobStore{rdb: rdb, ttl: ttl}
}

// Save - job 레코드 저장 (UpdatedAt 갱신)
func (s *JobStore) Save(ctx context.Context, job *model.GenerationJob) error {
	job.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := s.rdb.Set(ctx, jobKey(job.JobID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.JobID, err)
	}
	return nil
}

// Load - job 레코드 조회
func (s *JobStore) Load(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	return s.decode(s.rdb.Get(ctx, jobKey(jobID)))
}

func (s *JobStore) decode(cmd *redis.StringCmd) (*model.GenerationJob, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job model.GenerationJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// updateRetries - WATCH 충돌 시 재시도 횟수
const updateRetries = 10

// Update - WATCH로 낙관적 잠금을 걸고 mutate 적용
// 다른 클라이언트가 먼저 레코드를 바꾸면 최신 값으로 다시 시도
// mutate가 에러를 반환하면 저장하지 않고 읽은 job과 에러를 그대로 반환
func (s *JobStore) Update(ctx context.Context, jobID string, mutate func(*model.GenerationJob) error) (*model.GenerationJob, error) {
	key := jobKey(jobID)

	for attempt := 0; attempt < updateRetries; attempt++ {
		var job *model.GenerationJob
		var mutateErr error

		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			loaded, err := s.decode(tx.Get(ctx, key))
			if err != nil {
				return err
			}
			job = loaded
			if mutateErr = mutate(job); mutateErr != nil {
				return nil
			}

			job.UpdatedAt = time.Now().UTC()
			raw, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("failed to encode job: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, raw, s.ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Msgf("🔁 Job %s changed concurrently, retrying update (%d)", jobID, attempt+1)
			continue
		}
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to update job %s: %w", jobID, err)
		}
		if mutateErr != nil {
			return job, mutateErr
		}
		return job, nil
	}
	return nil, fmt.Errorf("failed to update job %s: %w", jobID, redis.TxFailedErr)
}

// SaveImage - job 입력 이미지 저장
func (s *JobStore) SaveImage(ctx context.Context, jobID string, img *model.UploadedImage) error {
	key := imageKey(jobID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, "mime", img.MimeType, "data", img.Data, "width", img.Width, "height", img.Height)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job image %s: %w", jobID, err)
	}
	return nil
}

// LoadImage - job 입력 이미지 조회
func (s *JobStore) LoadImage(ctx context.Context, jobID string) (*model.UploadedImage, error) {
	fields, err := s.rdb.HGetAll(ctx, imageKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job image %s: %w", jobID, err)
	}
	if len(fields["data"]) == 0 {
		return nil, ErrImageNotFound
	}

	width, _ := strconv.Atoi(fields["width"])
	height, _ := strconv.Atoi(fields["height"])
	return &model.UploadedImage{
		Data:     []byte(fields["data"]),
		MimeType: fields["mime"],
		Width:    width,
		Height:   height,
	}, nil
}

// DeleteImage - 처리가 끝난 job의 입력 이미지 삭제
func (s *JobStore) DeleteImage(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, imageKey(jobID)).Err()
}

// Enqueue - job 저장 후 큐에 등록, 큐 길이 반환
func (s *JobStore) Enqueue(ctx context.Context, job *model.GenerationJob, img *model.UploadedImage) (int64, error) {
	if err := s.SaveImage(ctx, job.JobID, img); err != nil {
		return 0, err
	}
	if err := s.Save(ctx, job); err != nil {
		return 0, err
	}

	queueLen, err := s.rdb.LPush(ctx, QueueKey, job.JobID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return queueLen, nil
}

// Cancel - 대기 중인 job 취소 (처리 중/완료된 job은 ErrJobFinished)
// 취소된 job은 worker가 건너뛰므로 입력 이미지도 여기서 삭제
func (s *JobStore) Cancel(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	job, err := s.Update(ctx, jobID, func(job *model.GenerationJob) error {
		if job.Status != model.StatusPending {
			return ErrJobFinished
		}
		now := time.Now().UTC()
		job.Status = model.StatusCancelled
		job.CompletedAt = &now
		return nil
	})
	if err != nil {
		return job, err
	}
	if delErr := s.DeleteImage(ctx, jobID); delErr != nil {
		log.Warn().Msgf("⚠️  Failed to delete cancelled job image %s: %v", jobID, delErr)
	}
	return job, nil
}

// QueueLength - 대기열 길이
func (s *JobStore) QueueLength(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, QueueKey).Result()
}
