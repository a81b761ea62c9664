package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

var httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "archivum_http_requests_total",
}, []string{"route", "method"})
var httpResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "archivum_http_responses_total",
}, []string{"route", "method", "statusCode"})
var httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "archivum_http_request_duration_seconds",
	Buckets: prometheus.DefBuckets,
}, []string{"route"})
var ingestOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "archivum_ingest_total",
}, []string{"outcome"})
var ingestedBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "archivum_ingested_bytes_total",
})
var packagesBuilt = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "archivum_dissemination_packages_total",
}, []string{"kind"})

func init() {
	prometheus.MustRegister(httpRequests)
	prometheus.MustRegister(httpResponses)
	prometheus.MustRegister(httpDuration)
	prometheus.MustRegister(ingestOutcomes)
	prometheus.MustRegister(ingestedBytes)
	prometheus.MustRegister(packagesBuilt)
}
