package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/railops/dispatchd/core/kpi"
	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/infra/logger"
)

// InfluxSink writes KPI snapshots and solve metrics to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) kpi.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return kpi.NopSink{}
	}
	return sink
}

// RecordSnapshot writes the KPI snapshot as line protocol points.
func (s *InfluxSink) RecordSnapshot(snap model.KPISnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("rail_kpi").
		AddTag("component", "dispatcher").
		AddField("punctuality", round3(snap.Punctuality)).
		AddField("mean_delay_s", round3(snap.MeanDelay.Seconds())).
		AddField("throughput_per_hour", round3(snap.ThroughputPerHour)).
		AddField("trains", snap.Trains).
		SetTime(snap.At)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return err
	}
	for id, u := range snap.Utilization {
		up := write.NewPointWithMeasurement("rail_utilization").
			AddTag("resource", id).
			AddField("busy_fraction", round3(u)).
			SetTime(snap.At)
		if err := s.writeAPI.WritePoint(ctx, up); err != nil {
			return err
		}
	}
	return nil
}

// RecordSolve writes one solve quality point.
func (s *InfluxSink) RecordSolve(m kpi.SolveMetric) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("rail_solve").
		AddTag("rapid", strconv.FormatBool(m.Rapid)).
		AddTag("feasible", strconv.FormatBool(m.Feasible)).
		AddTag("budget_exceeded", strconv.FormatBool(m.BudgetExceeded)).
		AddTag("component", "scheduler").
		AddField("objective", round3(m.Objective)).
		AddField("confidence", round3(m.Confidence)).
		AddField("elapsed_ms", round3(m.Elapsed.Seconds()*1000)).
		AddField("trains", m.Trains).
		SetTime(m.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close shuts the underlying client down.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
