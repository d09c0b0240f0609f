package studio

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portrait-studio-server/modules/common/model"
)

const testDelay = 20 * time.Millisecond

func TestSessionStartsWithDefaults(t *testing.T) {
	s := newSession("s", &fakeGenerator{}, testDelay)
	defer s.Close()

	state := s.State()
	assert.Equal(t, model.DefaultOptions(), state.Options)
	assert.False(t, state.CanUndo)
	assert.False(t, state.CanRedo)
	assert.False(t, state.HasImage)
}

func TestSessionUndoRedo(t *testing.T) {
	s := newSession("s", &fakeGenerator{}, time.Hour)
	defer s.Close()

	_, err := s.ApplyPatch(model.OptionsPatch{Style: strPtr("Anime")})
	require.NoError(t, err)
	_, err = s.ApplyPatch(model.OptionsPatch{Context: strPtr("Forest")})
	require.NoError(t, err)

	require.True(t, s.Undo())
	assert.Equal(t, "Anime", s.Options().Style)
	assert.Empty(t, s.Options().Context)

	state := s.State()
	assert.Equal(t, 1, state.PastCount)
	assert.Equal(t, 1, state.FutureCount)

	require.True(t, s.Redo())
	assert.Equal(t, "Forest", s.Options().Context)
	assert.False(t, s.Redo())
}

func TestSessionNoOpPatch(t *testing.T) {
	s := newSession("s", &fakeGenerator{}, time.Hour)
	defer s.Close()

	changed, err := s.ApplyPatch(model.OptionsPatch{Style: strPtr("Anime")})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.ApplyPatch(model.OptionsPatch{Style: strPtr(" Anime ")})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, s.State().PastCount)
}

func TestSessionEditAfterUndoDropsRedo(t *testing.T) {
	s := newSession("s", &fakeGenerator{}, time.Hour)
	defer s.Close()

	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("A")})
	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("B")})
	s.Undo()
	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("C")})

	assert.False(t, s.State().CanRedo)
	assert.Equal(t, 2, s.State().PastCount)
}

func TestSessionInvalidPatch(t *testing.T) {
	s := newSession("s", &fakeGenerator{}, time.Hour)
	defer s.Close()

	bad := model.AspectRatio("2:1")
	_, err := s.ApplyPatch(model.OptionsPatch{AspectRatio: &bad})
	assert.ErrorIs(t, err, model.ErrInvalidAspectRatio)
	assert.False(t, s.State().CanUndo)
}

func TestReplaceOptionsKeepsAspectRatio(t *testing.T) {
	s := newSession("s", &fakeGenerator{}, time.Hour)
	defer s.Close()

	wide := model.AspectWideLandscape
	_, _ = s.ApplyPatch(model.OptionsPatch{AspectRatio: &wide})

	assert.True(t, s.ReplaceOptions(model.Options{Style: "Art deco", Context: "Zeppelin", AspectRatio: model.AspectSquare}))
	assert.Equal(t, model.Options{Style: "Art deco", Context: "Zeppelin", AspectRatio: wide}, s.Options())

	require.True(t, s.Undo())
	assert.Empty(t, s.Options().Style)
}

func TestDebouncedPreviewCoalesces(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession("s", gen, testDelay)
	defer s.Close()

	s.SetImage(portrait)
	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("Anime")})
	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("Gothic")})
	_, _ = s.ApplyPatch(model.OptionsPatch{Context: strPtr("Library")})

	require.Eventually(t, func() bool { return len(gen.previewCalls()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(5 * testDelay)

	calls := gen.previewCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Gothic", calls[0].Style)
	assert.Equal(t, "Library", calls[0].Context)
	assert.NotNil(t, s.LastPreview())
}

func TestConcurrentEditsPreviewLatestOptions(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession("s", gen, testDelay)
	defer s.Close()

	s.SetImage(portrait)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr(fmt.Sprintf("style-%d-%d", i, j))})
			}
		}(i)
	}
	wg.Wait()

	want := s.Options()
	require.Eventually(t, func() bool {
		calls := gen.previewCalls()
		return len(calls) > 0 && calls[len(calls)-1] == want
	}, time.Second, 5*time.Millisecond)
	time.Sleep(5 * testDelay)

	calls := gen.previewCalls()
	assert.Equal(t, want, calls[len(calls)-1])
	assert.Equal(t, want, s.Options())
}

func TestPreviewSkippedWithoutImage(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession("s", gen, testDelay)
	defer s.Close()

	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("Anime")})
	time.Sleep(5 * testDelay)

	assert.Empty(t, gen.previewCalls())
}

func TestPreviewSkippedWhenNotReady(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession("s", gen, testDelay)
	defer s.Close()

	s.SetImage(portrait)
	_, _ = s.ApplyPatch(model.OptionsPatch{Lighting: strPtr("Neon")})
	time.Sleep(5 * testDelay)

	assert.Empty(t, gen.previewCalls())
}

func TestUndoTriggersPreview(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession("s", gen, testDelay)
	defer s.Close()

	s.SetImage(portrait)
	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("Anime")})
	require.Eventually(t, func() bool { return len(gen.previewCalls()) == 1 }, time.Second, 5*time.Millisecond)

	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("Gothic")})
	s.Undo()
	require.Eventually(t, func() bool { return len(gen.previewCalls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Anime", gen.previewCalls()[1].Style)
}

func TestCloseCancelsPendingPreview(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession("s", gen, testDelay)

	s.SetImage(portrait)
	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("Anime")})
	s.Close()
	time.Sleep(5 * testDelay)

	assert.Empty(t, gen.previewCalls())
	assert.False(t, s.State().PreviewPending)
}

func TestCloseAbortsRunningPreview(t *testing.T) {
	gen := &fakeGenerator{block: true}
	s := newSession("s", gen, testDelay)

	s.SetImage(portrait)
	_, _ = s.ApplyPatch(model.OptionsPatch{Style: strPtr("Anime")})
	require.Eventually(t, func() bool { return len(gen.previewCalls()) == 1 }, time.Second, 5*time.Millisecond)

	s.Close()
	time.Sleep(2 * testDelay)
	assert.Nil(t, s.LastPreview())
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newSession("s", &fakeGenerator{}, testDelay)
	s.Close()
	s.Close()
}
