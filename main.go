package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"portrait-studio-server/modules/assistant"
	"portrait-studio-server/modules/common/config"
	"portrait-studio-server/modules/common/database"
	"portrait-studio-server/modules/common/gemini"
	"portrait-studio-server/modules/common/logger"
	"portrait-studio-server/modules/common/metrics"
	redisClient "portrait-studio-server/modules/common/redis"
	"portrait-studio-server/modules/common/storage"
	"portrait-studio-server/modules/common/utils"
	generateimage "portrait-studio-server/modules/generate-image"
	"portrait-studio-server/modules/options"
	"portrait-studio-server/modules/preview"
	"portrait-studio-server/modules/studio"
	"portrait-studio-server/modules/worker"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var port string
	var noWorker bool

	serve := func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context(), port, !noWorker)
	}

	root := &cobra.Command{
		Use:           "portrait-studio-server",
		Short:         "AI portrait studio server with undoable options and debounced previews",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          serve,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket server and the job worker",
		RunE:  serve,
	}
	for _, c := range []*cobra.Command{root, serveCmd} {
		c.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
		c.Flags().BoolVar(&noWorker, "no-worker", false, "do not consume the generation job queue")
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	return root
}

func runServer(parent context.Context, portOverride string, startWorker bool) error {
	if parent == nil {
		parent = context.Background()
	}

	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Error().Msgf("❌ Failed to load config: %v", err)
		return err
	}
	logger.Setup(cfg.AppEnv, cfg.LogLevel)
	if portOverride != "" {
		cfg.Port = portOverride
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Gemini 클라이언트
	geminiClient, err := gemini.NewClient(ctx, cfg.GeminiAPIKeys)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini: %w", err)
	}

	// 생성 서비스 (Supabase 업로드는 설정된 경우에만)
	var serviceOpts []generateimage.ServiceOption
	if cfg.StorageEnabled() {
		var recorder generateimage.Recorder
		if db, err := database.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey); err != nil {
			log.Warn().Msgf("⚠️  Generation history disabled: %v", err)
		} else {
			recorder = db
		}
		serviceOpts = append(serviceOpts, generateimage.WithStorage(
			storage.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket),
			recorder,
		))
	}
	if cfg.OutputWebP {
		serviceOpts = append(serviceOpts, generateimage.WithWebP(cfg.WebPQuality))
	}
	generator := generateimage.NewService(geminiClient, cfg.GeminiModel, serviceOpts...)
	helper := assistant.NewService(geminiClient, cfg.GeminiTextModel)

	// 세션 매니저 + 정리 루틴
	manager := studio.NewManager(generator, cfg.PreviewDebounce)
	manager.StartCleanupRoutine(ctx)
	defer manager.Shutdown()

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(enableCORS, logger.Middleware)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	options.RegisterRoutes(r)
	generateimage.NewGenerateImageHandler(generator).RegisterRoutes(r)
	preview.NewPreviewHandler(generator).RegisterRoutes(r)

	// Redis job 큐 (연결 실패 시 동기 API만 제공)
	var queue studio.JobQueue
	rdb, err := redisClient.Connect(ctx, cfg)
	if err != nil {
		log.Warn().Msgf("⚠️  Job queue disabled: %v", err)
	} else {
		defer closeRedis(rdb)
		store := worker.NewJobStore(rdb, cfg.JobTTL)
		queue = store
		worker.NewJobHandler(store, manager).RegisterRoutes(r)

		if startWorker {
			// Redis Queue Worker 시작 (백그라운드)
			w := worker.NewWorker(rdb, store, generator, manager)
			done := make(chan struct{})
			go func() {
				defer close(done)
				w.Run(ctx)
			}()
			defer func() { <-done }()
		}
	}

	studio.NewHandler(manager, generator, helper, queue).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Msgf("🚀 Portrait Studio Server starting on port %s (version %s)", cfg.Port, version)
	log.Info().Msgf("📡 WebSocket endpoint: ws://localhost:%s/ws", cfg.Port)
	log.Info().Msgf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Info().Msgf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Msgf("❌ Graceful shutdown failed: %v", err)
		}
	}
	return nil
}

func closeRedis(rdb *redis.Client) {
	if err := rdb.Close(); err != nil {
		log.Warn().Msgf("⚠️  Redis close: %v", err)
	}
}

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portrait-studio",
	})
}
