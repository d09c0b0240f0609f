package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/supabase-community/supabase-go"
)

// GenerationsTable - 생성 이력 테이블
const GenerationsTable = "portrait_generations"

// Generation - 완료된 생성 한 건 (Supabase row)
type Generation struct {
	ID          string    `json:"id,omitempty"`
	SessionID   string    `json:"session_id"`
	JobID       string    `json:"job_id,omitempty"`
	Kind        string    `json:"kind"`
	Style       string    `json:"style"`
	Context     string    `json:"context"`
	CameraAngle string    `json:"camera_angle"`
	Lighting    string    `json:"lighting"`
	AspectRatio string    `json:"aspect_ratio"`
	FilePath    string    `json:"file_path"`
	FileSize    int64     `json:"file_size"`
	CreatedAt   time.Time `json:"created_at"`
}

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient(supabaseURL, serviceKey string) (*Client, error) {
	supabaseClient, err := supabase.NewClient(supabaseURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	return &Client{
		supabase: supabaseClient,
	}, nil
}

// InsertGeneration - 생성 이력 저장
func (c *Client) InsertGeneration(g *Generation) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	log.Debug().Msgf("💾 Inserting generation record: session=%s kind=%s", g.SessionID, g.Kind)

	_, _, err := c.supabase.From(GenerationsTable).
		Insert(g, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}

	log.Info().Msgf("✅ Generation record saved: %s", g.FilePath)
	return nil
}

// ListGenerations - 세션의 생성 이력 조회
func (c *Client) ListGenerations(sessionID string) ([]Generation, error) {
	data, _, err := c.supabase.From(GenerationsTable).
		Select("*", "exact", false).
		Eq("session_id", sessionID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query Supabase: %w", err)
	}

	var rows []Generation
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return rows, nil
}
