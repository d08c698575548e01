package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery results recorded by the worker.
const (
	DeliverySent    = "sent"
	DeliveryRetry   = "retry"
	DeliveryDropped = "dropped"
	DeliveryInvalid = "invalid"
	DeliveryGone    = "campaign_gone"
	DeliveryRepeat  = "duplicate"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "api_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	EditorSessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "editor_sessions_open", Help: "Editing sessions currently held in memory"},
	)
	EditorOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "editor_operations_total", Help: "Editor operations by kind and outcome"},
		[]string{"op", "outcome"},
	)
	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "export_renders_total", Help: "MJML to HTML renders"},
		[]string{"result"},
	)

	SchedulerClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scheduler_campaigns_claimed_total", Help: "Due campaigns claimed for dispatch"},
	)
	PublishedJobsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scheduler_published_jobs_total", Help: "Delivery jobs published to queue"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_deliveries_total", Help: "Delivery jobs handled, by result"},
		[]string{"result"},
	)
	MailerSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_mailer_send_duration_seconds",
			Help:    "Time spent handing one message to the mailer",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)
	WorkerProcessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_job_process_duration_seconds",
			Help:    "Time spent processing a job",
			Buckets: prometheus.DefBuckets,
		},
	)
	CampaignsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_campaigns_completed_total", Help: "Campaigns marked sent"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal, APIRequestDuration,
		EditorSessionsOpen, EditorOpsTotal, ExportsTotal,
		SchedulerClaimedTotal, PublishedJobsTotal,
		DeliveriesTotal, MailerSendDuration, WorkerProcessDuration, CampaignsCompleted,
	)
}

// EditorOp records one editor operation. err == nil counts as ok.
func EditorOp(op string, err error) {
	EditorOpsTotal.WithLabelValues(op, outcome(err)).Inc()
}

func Export(err error) {
	ExportsTotal.WithLabelValues(outcome(err)).Inc()
}

func Delivery(result string) {
	DeliveriesTotal.WithLabelValues(result).Inc()
}

// MailerSend observes one mailer call that started at start.
func MailerSend(start time.Time, err error) {
	MailerSendDuration.WithLabelValues(outcome(err)).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler { return promhttp.Handler() }
