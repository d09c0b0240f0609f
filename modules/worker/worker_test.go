package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portrait-studio-server/modules/common/model"
	generateimage "portrait-studio-server/modules/generate-image"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *redis.Client, *JobStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb, NewJobStore(rdb, time.Hour)
}

type fakeGenerator struct {
	mu   sync.Mutex
	reqs []generateimage.Request
	err  error
}

func (f *fakeGenerator) Generate(_ context.Context, req generateimage.Request) (*generateimage.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &generateimage.Result{MimeType: "image/png", DataURL: "data:image/png;base64,AA==", ImageURL: "https://cdn/x.png"}, nil
}

type recorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *recorder) NotifyJob(job *model.GenerationJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, job.Status)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

var portrait = &model.UploadedImage{Data: []byte{0x89, 'P', 'N', 'G', 0}, MimeType: "image/png", Width: 4, Height: 3}

func newJob(id string) *model.GenerationJob {
	return &model.GenerationJob{
		JobID:     id,
		SessionID: "s-1",
		Status:    model.StatusPending,
		Options:   model.Options{Style: "Anime", AspectRatio: model.AspectPortrait},
		CreatedAt: time.Now().UTC(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	mr, _, store := setupStore(t)
	ctx := context.Background()

	pos, err := store.Enqueue(ctx, newJob("j-1"), portrait)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)

	job, err := store.Load(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, job.Status)
	assert.Equal(t, "Anime", job.Options.Style)
	assert.False(t, job.UpdatedAt.IsZero())

	img, err := store.LoadImage(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, portrait, img)

	assert.True(t, mr.TTL(jobKey("j-1")) > 0)
	assert.True(t, mr.TTL(imageKey("j-1")) > 0)

	n, err := store.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStoreMissing(t *testing.T) {
	_, _, store := setupStore(t)

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = store.LoadImage(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestStoreTTLExpires(t *testing.T) {
	mr, _, store := setupStore(t)
	require.NoError(t, store.Save(context.Background(), newJob("j-1")))

	mr.FastForward(2 * time.Hour)

	_, err := store.Load(context.Background(), "j-1")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCancel(t *testing.T) {
	_, _, store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, newJob("j-1")))

	job, err := store.Cancel(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, job.Status)

	job, err = store.Cancel(ctx, "j-1")
	assert.ErrorIs(t, err, ErrJobFinished)
	assert.Equal(t, model.StatusCancelled, job.Status)
}

func TestCancelDeletesImage(t *testing.T) {
	_, _, store := setupStore(t)
	ctx := context.Background()
	_, err := store.Enqueue(ctx, newJob("j-1"), portrait)
	require.NoError(t, err)

	_, err = store.Cancel(ctx, "j-1")
	require.NoError(t, err)

	_, err = store.LoadImage(ctx, "j-1")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestUpdateRetriesAfterConcurrentWrite(t *testing.T) {
	_, _, store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, newJob("j-1")))

	attempts := 0
	job, err := store.Update(ctx, "j-1", func(job *model.GenerationJob) error {
		attempts++
		if attempts == 1 {
			// 읽은 뒤 다른 연결에서 취소
			_, cancelErr := store.Cancel(ctx, "j-1")
			require.NoError(t, cancelErr)
		}
		if job.Status != model.StatusPending {
			return ErrJobFinished
		}
		job.Status = model.StatusProcessing
		return nil
	})

	assert.ErrorIs(t, err, ErrJobFinished)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, model.StatusCancelled, job.Status)

	stored, err := store.Load(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, stored.Status)
}

func TestCancelRacesProcess(t *testing.T) {
	_, rdb, store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		jobID := fmt.Sprintf("j-%d", i)
		_, err := store.Enqueue(ctx, newJob(jobID), portrait)
		require.NoError(t, err)

		gen := &fakeGenerator{}
		w := NewWorker(rdb, store, gen, nil)

		var cancelErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = store.Cancel(ctx, jobID)
		}()
		go func() {
			defer wg.Done()
			w.Process(ctx, jobID)
		}()
		wg.Wait()

		job, err := store.Load(ctx, jobID)
		require.NoError(t, err)
		if cancelErr == nil {
			assert.Equal(t, model.StatusCancelled, job.Status, jobID)
			assert.Empty(t, gen.reqs, jobID)
		} else {
			assert.ErrorIs(t, cancelErr, ErrJobFinished, jobID)
			assert.Equal(t, model.StatusCompleted, job.Status, jobID)
			assert.Len(t, gen.reqs, 1, jobID)
		}
	}
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ generateimage.Request) (*generateimage.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessTimeoutMarksFailed(t *testing.T) {
	_, rdb, store := setupStore(t)
	ctx := context.Background()
	_, err := store.Enqueue(ctx, newJob("j-1"), portrait)
	require.NoError(t, err)

	notes := &recorder{}
	w := NewWorker(rdb, store, blockingGenerator{}, notes)
	w.jobTimeout = 20 * time.Millisecond
	w.Process(ctx, "j-1")

	job, err := store.Load(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, job.Error, context.DeadlineExceeded.Error())
	assert.Equal(t, []string{model.StatusProcessing, model.StatusFailed}, notes.seen())

	_, err = store.LoadImage(ctx, "j-1")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestProcessCompletes(t *testing.T) {
	_, rdb, store := setupStore(t)
	ctx := context.Background()
	_, err := store.Enqueue(ctx, newJob("j-1"), portrait)
	require.NoError(t, err)

	gen := &fakeGenerator{}
	notes := &recorder{}
	NewWorker(rdb, store, gen, notes).Process(ctx, "j-1")

	job, err := store.Load(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Equal(t, "https://cdn/x.png", job.ImageURL)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, []string{model.StatusProcessing, model.StatusCompleted}, notes.seen())

	require.Len(t, gen.reqs, 1)
	assert.Equal(t, "s-1", gen.reqs[0].SessionID)
	assert.Equal(t, model.AspectPortrait, gen.reqs[0].Options.AspectRatio)
	assert.Equal(t, portrait.Data, gen.reqs[0].Image.Data)

	_, err = store.LoadImage(ctx, "j-1")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestProcessFails(t *testing.T) {
	_, rdb, store := setupStore(t)
	ctx := context.Background()
	_, err := store.Enqueue(ctx, newJob("j-1"), portrait)
	require.NoError(t, err)

	NewWorker(rdb, store, &fakeGenerator{err: errors.New("failed to generate image: boom")}, nil).Process(ctx, "j-1")

	job, err := store.Load(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Equal(t, "failed to generate image: boom", job.Error)
}

func TestProcessSkipsCancelled(t *testing.T) {
	_, rdb, store := setupStore(t)
	ctx := context.Background()
	_, err := store.Enqueue(ctx, newJob("j-1"), portrait)
	require.NoError(t, err)
	_, err = store.Cancel(ctx, "j-1")
	require.NoError(t, err)

	gen := &fakeGenerator{}
	NewWorker(rdb, store, gen, nil).Process(ctx, "j-1")

	assert.Empty(t, gen.reqs)
}

func TestRunDrainsQueue(t *testing.T) {
	_, rdb, store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &fakeGenerator{}
	w := NewWorker(rdb, store, gen, nil)
	w.pollTimeout = 50 * time.Millisecond

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	_, err := store.Enqueue(context.Background(), newJob("j-1"), portrait)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := store.Load(context.Background(), "j-1")
		return err == nil && job.Status == model.StatusCompleted
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestJobHandler(t *testing.T) {
	_, _, store := setupStore(t)
	require.NoError(t, store.Save(context.Background(), newJob("j-1")))

	notes := &recorder{}
	r := mux.NewRouter()
	NewJobHandler(store, notes).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/j-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job model.GenerationJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "j-1", job.JobID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/j-1/cancel", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{model.StatusCancelled}, notes.seen())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/j-1/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"job already cancelled"}`, rec.Body.String())
}
