package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const maxRetriesPerKey = 3

// attemptFunc - keyIndex 번째 API 키로 한 번 호출
type attemptFunc func(ctx context.Context, keyIndex int) (*genai.GenerateContentResponse, error)

// generateWithRetry - 429 에러 시 여러 API 키로 재시도
// 각 키당 최대 3번 재시도, 429가 아닌 에러는 바로 반환
func generateWithRetry(ctx context.Context, keyCount int, wait time.Duration, call attemptFunc) (*genai.GenerateContentResponse, error) {
	if keyCount == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}

	var lastErr error

	// 각 API 키로 시도
	for keyIndex := 0; keyIndex < keyCount; keyIndex++ {
		log.Debug().Msgf("🔑 [Gemini Retry] Trying API key #%d/%d", keyIndex+1, keyCount)

		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			if attempt > 1 {
				log.Debug().Msgf("   🔄 Retry attempt %d/%d for key #%d", attempt, maxRetriesPerKey, keyIndex+1)
			}

			result, err := call(ctx, keyIndex)
			if err == nil {
				if attempt > 1 || keyIndex > 0 {
					log.Info().Msgf("✅ [Gemini Retry] Success with API key #%d (attempt %d/%d)", keyIndex+1, attempt, maxRetriesPerKey)
				}
				return result, nil
			}

			lastErr = err

			// 429가 아닌 다른 에러면 바로 반환 (재시도 안 함)
			if !is429Error(err) {
				log.Error().Msgf("❌ [Gemini Retry] Key #%d failed with non-429 error: %v", keyIndex+1, err)
				return nil, err
			}

			log.Warn().Msgf("⚠️  [Gemini Retry] Key #%d hit rate limit (429) on attempt %d/%d", keyIndex+1, attempt, maxRetriesPerKey)

			// 마지막 시도가 아니면 대기 후 재시도
			if attempt < maxRetriesPerKey {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		log.Warn().Msgf("⚠️  [Gemini Retry] Key #%d exhausted all %d attempts, trying next key...", keyIndex+1, maxRetriesPerKey)
	}

	return nil, fmt.Errorf("all %d API keys exhausted (%d attempts each), last error: %w", keyCount, maxRetriesPerKey, lastErr)
}

// is429Error - 429 Rate Limit 에러인지 확인
func is429Error(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "resource_exhausted")
}
