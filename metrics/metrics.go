package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var BagsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "bagindexer_bags_processed_total",
}, []string{"result"})
var BytesHashed = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "bagindexer_bytes_hashed_total",
})
var BagSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "bagindexer_bag_seconds",
	Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
})
var Emitted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "bagindexer_emit_total",
}, []string{"emitter", "result"})
var InvalidBags = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "bagindexer_invalid_bags_total",
})

// result label values
const (
	ResultIndexed   = "indexed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
	ResultSucceeded = "ok"
	ResultError     = "error"
)

func init() {
	prometheus.MustRegister(BagsProcessed)
	prometheus.MustRegister(BytesHashed)
	prometheus.MustRegister(BagSeconds)
	prometheus.MustRegister(Emitted)
	prometheus.MustRegister(InvalidBags)
}
