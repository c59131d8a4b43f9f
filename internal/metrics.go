package internal

import (
	"fmt"
	"time"

	"github.com/cactus/go-statsd-client/v5/statsd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/viper"
	"github.com/wal-g/initsync/internal/webserver"
	"github.com/wal-g/tracelog"
)

const (
	HTTPExposePprof = "HTTP_EXPOSE_PPROF"
)

// MetricsRegistry collects metrics exposed at /metrics
var MetricsRegistry = prometheus.NewRegistry()

func init() {
	MetricsRegistry.MustRegister(collectors.NewGoCollector())
	AllowedSettings[HTTPExposePprof] = true
}

// ConfigureAndRunDefaultWebServer runs web server exposing metrics if HTTP_LISTEN is set
func ConfigureAndRunDefaultWebServer() error {
	httpListenAddr, httpListen := GetSetting(HTTPListen)
	exposePprof, err := GetBoolSettingDefault(HTTPExposePprof, false)
	if err != nil {
		return err
	}
	if !httpListen {
		if exposePprof {
			return fmt.Errorf("%s failed: %s is not set", HTTPExposePprof, HTTPListen)
		}
		return nil
	}

	ws := webserver.NewSimpleWebServer(httpListenAddr)
	webserver.EnableMetricsEndpoint(ws, MetricsRegistry)
	if exposePprof {
		webserver.EnablePprofEndpoints(ws)
	}
	if err := ws.Serve(); err != nil {
		return err
	}
	return webserver.SetDefaultWebServer(ws)
}

// statsdWriter is the part of statsd.Statter used to push metric values
type statsdWriter interface {
	Inc(stat string, value int64, rate float32, tags ...statsd.Tag) error
	Gauge(stat string, value int64, rate float32, tags ...statsd.Tag) error
}

// PushMetrics sends registry snapshot to statsd if WALG_STATSD_ADDRESS is set
func PushMetrics(g prometheus.Gatherer) {
	address := viper.GetString(StatsdAddressSetting)
	if address == "" {
		return
	}

	extraTags := viper.GetStringMapString(StatsdExtraTagsSetting)

	err := pushMetrics(address, g, extraTags)
	if err != nil {
		tracelog.WarningLogger.Printf("Pushing metrics failed: %v", err)
	}
}

func pushMetrics(address string, g prometheus.Gatherer, extraTags map[string]string) error {
	config := &statsd.ClientConfig{
		Address:       address,
		UseBuffered:   true,
		FlushInterval: 10 * time.Second,
		TagFormat:     statsd.InfixComma,
	}

	client, err := statsd.NewClientWithConfig(config)
	if err != nil {
		return err
	}
	defer client.Close()

	tracelog.DebugLogger.Printf("Sending metrics to statsd at %s", address)

	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	return writeMetricFamiliesToStatsd(client, mfs, extraTags)
}

func writeMetricFamiliesToStatsd(client statsdWriter, mfs []*dto.MetricFamily, extraTags map[string]string) error {
	for _, mf := range mfs {
		if err := writeMetricFamilyToStatsd(client, mf, extraTags); err != nil {
			return err
		}
	}
	return nil
}

// nolint: gocyclo
func writeMetricFamilyToStatsd(client statsdWriter, in *dto.MetricFamily, extraTags map[string]string) error {
	name := in.GetName()
	metricType := in.GetType()

	for _, metric := range in.Metric {
		tags := make([]statsd.Tag, 0, len(metric.Label)+len(extraTags))
		for _, lp := range metric.Label {
			tags = append(tags, statsd.Tag{lp.GetName(), lp.GetValue()})
		}
		for k, v := range extraTags {
			tags = append(tags, statsd.Tag{k, v})
		}

		var err error
		switch metricType {
		case dto.MetricType_COUNTER:
			if metric.Counter == nil {
				return fmt.Errorf("expected counter in metric %s %s", name, metric)
			}
			err = client.Inc(name, int64(metric.Counter.GetValue()), 1.0, tags...)
		case dto.MetricType_GAUGE:
			if metric.Gauge == nil {
				return fmt.Errorf("expected gauge in metric %s %s", name, metric)
			}
			err = client.Gauge(name, int64(metric.Gauge.GetValue()), 1.0, tags...)
		case dto.MetricType_UNTYPED:
			if metric.Untyped == nil {
				return fmt.Errorf("expected untyped in metric %s %s", name, metric)
			}
			err = client.Gauge(name, int64(metric.Untyped.GetValue()), 1.0, tags...)
		case dto.MetricType_SUMMARY:
			if metric.Summary == nil {
				return fmt.Errorf("expected summary in metric %s %s", name, metric)
			}
			err = writeCountAndSum(client, name,
				metric.Summary.GetSampleCount(), metric.Summary.GetSampleSum(), tags)
		case dto.MetricType_HISTOGRAM:
			if metric.Histogram == nil {
				return fmt.Errorf("expected histogram in metric %s %s", name, metric)
			}
			err = writeCountAndSum(client, name,
				metric.Histogram.GetSampleCount(), metric.Histogram.GetSampleSum(), tags)
		default:
			return fmt.Errorf("unexpected type in metric %s %s", name, metric)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// statsd has no buckets or quantiles, so only totals are sent
func writeCountAndSum(client statsdWriter, name string, count uint64, sum float64, tags []statsd.Tag) error {
	if err := client.Inc(name+"_count", int64(count), 1.0, tags...); err != nil {
		return err
	}
	return client.Gauge(name+"_sum", int64(sum), 1.0, tags...)
}
