package metrics

import (
	"context"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/infra/logger"
)

// InfluxSink writes planning and control events to an InfluxDB instance
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
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
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
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPlan writes the planning result of a device.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	p := write.NewPointWithMeasurement("plan").
		AddTag("device", ev.Device).
		AddTag("kind", string(ev.Kind)).
		AddTag("status", ev.Status.String()).
		AddField("slots", ev.Slots).
		AddField("cost", round3(ev.Cost)).
		AddField("duration_ms", round3(float64(ev.Duration)/float64(time.Millisecond))).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAction writes an executed action.
func (s *InfluxSink) RecordAction(ev coremetrics.ActionEvent) error {
	p := write.NewPointWithMeasurement("device_action").
		AddTag("device", ev.Device).
		AddTag("kind", string(ev.Kind)).
		AddTag("transition", string(ev.Transition)).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("errors", ev.Error).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordVerification writes a state check.
func (s *InfluxSink) RecordVerification(ev coremetrics.VerificationEvent) error {
	p := write.NewPointWithMeasurement("verification_check").
		AddTag("device", ev.Device).
		AddTag("matched", strconv.FormatBool(ev.Matched)).
		AddField("check", ev.Check).
		AddField("corrected", ev.Corrected).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordLoad writes the peak estimate and one point per device limit.
func (s *InfluxSink) RecordLoad(ev coremetrics.LoadEvent) error {
	p := write.NewPointWithMeasurement("peak_power").
		AddTag("meter", "grid").
		AddField("peak_kw", round3(ev.PeakKW)).
		AddField("available_w", round3(ev.AvailableW)).
		SetTime(ev.Time)
	if err := s.write(p); err != nil {
		return err
	}
	devices := make([]string, 0, len(ev.Limits))
	for d := range ev.Limits {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	for _, d := range devices {
		lp := write.NewPointWithMeasurement("device_limit").
			AddTag("device", d).
			AddField("limit_w", round3(ev.Limits[d])).
			SetTime(ev.Time)
		if err := s.write(lp); err != nil {
			return err
		}
	}
	return nil
}

// RecordRevision writes a saved plan.
func (s *InfluxSink) RecordRevision(ev coremetrics.RevisionEvent) error {
	p := write.NewPointWithMeasurement("plan_revision").
		AddTag("reason", ev.Reason).
		AddField("revision", ev.Revision).
		AddField("entries", ev.Entries).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
