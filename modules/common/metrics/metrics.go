package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveSessions - 현재 열린 스튜디오 세션 수
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "studio_active_sessions",
		Help: "Number of open studio sessions",
	})

	// HistoryOperations - undo/redo/set 호출 수 (변경 여부별)
	HistoryOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_history_operations_total",
			Help: "Option history operations by kind and whether they changed state",
		},
		[]string{"op", "changed"},
	)

	// Generations - Gemini 호출 결과
	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_generations_total",
			Help: "Generation requests by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// GenerationDuration - Gemini 호출 시간
	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studio_generation_duration_seconds",
			Help:    "Duration of generation requests",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(ActiveSessions, HistoryOperations, Generations, GenerationDuration)
}

// RecordHistory - history 연산 기록
func RecordHistory(op string, changed bool) {
	label := "false"
	if changed {
		label = "true"
	}
	HistoryOperations.WithLabelValues(op, label).Inc()
}

// RecordGeneration - 생성 결과 기록
func RecordGeneration(kind string, seconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	Generations.WithLabelValues(kind, outcome).Inc()
	GenerationDuration.WithLabelValues(kind).Observe(seconds)
}

// Handler - /metrics 엔드포인트
func Handler() http.Handler {
	return promhttp.Handler()
}
