package workspace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsAdded counts AddDocument calls. Labels: result (done, failed, invalid)
	DocumentsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "copyvara",
			Subsystem: "workspace",
			Name:      "documents_added_total",
			Help:      "Total number of captured documents by outcome",
		},
		[]string{"result"},
	)

	// QuestionsAsked counts Ask calls. Labels: result (answered, invalid, failed)
	QuestionsAsked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "copyvara",
			Subsystem: "workspace",
			Name:      "questions_total",
			Help:      "Total number of questions by outcome",
		},
		[]string{"result"},
	)

	// AnswersPadded counts answers extended to the minimum length.
	AnswersPadded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "copyvara",
			Subsystem: "workspace",
			Name:      "answers_padded_total",
			Help:      "Total number of generated answers padded with evidence supplements",
		},
	)

	// UpstreamDuration tracks external call latency. Labels: op (analyze, generate, persist, load)
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "copyvara",
			Subsystem: "workspace",
			Name:      "upstream_duration_seconds",
			Help:      "Duration of calls to generation and persistence services",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// UpstreamErrors counts failed external calls. Labels: op
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "copyvara",
			Subsystem: "workspace",
			Name:      "upstream_errors_total",
			Help:      "Total number of failed calls to generation and persistence services",
		},
		[]string{"op"},
	)

	// Collections reports in-memory collection sizes. Labels: collection
	Collections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "copyvara",
			Subsystem: "workspace",
			Name:      "collection_size",
			Help:      "Current size of each workspace collection",
		},
		[]string{"collection"},
	)
)
