package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/initsync/internal/databases/mongo/oplog"
	"github.com/wal-g/initsync/utility"
)

const (
	MetricsPrefix                = "walg_initsync_"
	DefaultStatsPrefix           = "/stats"
	DefaultOplogApplyStatsPrefix = DefaultStatsPrefix + "/oplog_apply"
)

var (
	_ = []oplog.Observer{&ApplyStats{}}
	_ = []ApplyStatusReporter{&ApplyStats{}}
)

// ApplyStatusReporter defines oplog apply statistics fetching interface
type ApplyStatusReporter interface {
	Report() ApplyReport
}

// ApplyStatus is a state of oplog applying
type ApplyStatus string

const (
	ApplyStandBy  ApplyStatus = "standby"
	ApplyApplying ApplyStatus = "applying"
	ApplyFailed   ApplyStatus = "failed"
)

// ApplyReport defines oplog apply statistics report
type ApplyReport struct {
	Status        ApplyStatus   `json:"status"`
	Batches       uint64        `json:"batches"`
	FailedBatches uint64        `json:"failed_batches"`
	Ops           uint64        `json:"ops"`
	Bytes         uint64        `json:"bytes"`
	LastApplied   models.OpTime `json:"last_applied"`
	LastError     string        `json:"last_error,omitempty"`
}

type applyMetrics struct {
	batchesTotal       prometheus.Counter
	batchesFailedTotal prometheus.Counter
	opsTotal           prometheus.Counter
	bytesTotal         prometheus.Counter
	lastAppliedTS      prometheus.Gauge
	batchDuration      prometheus.Histogram
}

func newApplyMetrics() applyMetrics {
	return applyMetrics{
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricsPrefix + "applied_batches_total",
			Help: "Number of applied oplog batches.",
		}),
		batchesFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricsPrefix + "applied_batches_failed_total",
			Help: "Number of oplog batches failed to apply.",
		}),
		opsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricsPrefix + "applied_ops_total",
			Help: "Number of applied oplog entries.",
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricsPrefix + "applied_bytes_total",
			Help: "Size of applied oplog entries.",
		}),
		lastAppliedTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricsPrefix + "last_applied_timestamp_seconds",
			Help: "Timestamp of the last applied oplog entry.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricsPrefix + "batch_apply_duration_seconds",
			Help:    "Duration of oplog batch apply.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m applyMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.batchesTotal, m.batchesFailedTotal, m.opsTotal, m.bytesTotal, m.lastAppliedTS, m.batchDuration,
	}
}

type logFunc func(format string, args ...interface{})

// ApplyStats collects oplog apply statistics, implements oplog.Observer
type ApplyStats struct {
	ctx     context.Context
	metrics applyMetrics

	sync.Mutex
	rep ApplyReport
}

// ApplyStatsOption ...
type ApplyStatsOption func(*ApplyStats)

// EnableLogReport runs logging stats procedure in new goroutine
func EnableLogReport(logInterval time.Duration, logger logFunc) ApplyStatsOption {
	return func(st *ApplyStats) {
		go st.RunLogging(logInterval, logger)
	}
}

// NewApplyStats builds ApplyStats and registers its metrics at reg
func NewApplyStats(ctx context.Context, reg prometheus.Registerer, opts ...ApplyStatsOption) (*ApplyStats, error) {
	st := &ApplyStats{
		ctx:     ctx,
		metrics: newApplyMetrics(),
		rep:     ApplyReport{Status: ApplyStandBy},
	}
	if reg != nil {
		for _, c := range st.metrics.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	for _, optFunc := range opts {
		optFunc(st)
	}
	return st, nil
}

// OnBatchApplied updates stats with apply result
func (st *ApplyStats) OnBatchApplied(res oplog.BatchResult) {
	st.metrics.batchDuration.Observe(res.Duration.Seconds())

	st.Lock()
	defer st.Unlock()
	if res.Err != nil {
		st.metrics.batchesFailedTotal.Inc()
		st.rep.FailedBatches++
		st.rep.Status = ApplyFailed
		st.rep.LastError = res.Err.Error()
		return
	}

	st.metrics.batchesTotal.Inc()
	st.metrics.opsTotal.Add(float64(res.Ops))
	st.metrics.bytesTotal.Add(float64(res.Bytes))
	st.metrics.lastAppliedTS.Set(float64(res.LastOpTime.TS.TS))

	st.rep.Status = ApplyApplying
	st.rep.Batches++
	st.rep.Ops += uint64(res.Ops)
	st.rep.Bytes += uint64(res.Bytes)
	st.rep.LastApplied = res.LastOpTime
	st.rep.LastError = ""
}

// Report ...
func (st *ApplyStats) Report() ApplyReport {
	st.Lock()
	defer st.Unlock()
	return st.rep
}

// ServeHTTP implements stats http-handler
func (st *ApplyStats) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(st.Report())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(data); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
}

// RunLogging executes logFunc every logInterval with current stats
func (st *ApplyStats) RunLogging(logInterval time.Duration, logger logFunc) {
	logTimer := time.NewTimer(logInterval)
	defer logTimer.Stop()
	for {
		select {
		case <-st.ctx.Done():
			return
		case <-logTimer.C:
		}
		utility.ResetTimer(logTimer, logInterval)

		report := st.Report()
		switch report.Status {
		case ApplyStandBy:
			logger("OplogApplyStatus: status '%s', nothing applied yet", report.Status)
		case ApplyApplying:
			logger("OplogApplyStatus: status '%s', batches %d, ops %d, bytes %d, last applied %s",
				report.Status, report.Batches, report.Ops, report.Bytes, report.LastApplied)
		case ApplyFailed:
			logger("OplogApplyStatus: status '%s', failed batches %d, last error: %s",
				report.Status, report.FailedBatches, report.LastError)
		default:
			logger("OplogApplyStatus: unknown status '%s'", report.Status)
		}
	}
}
