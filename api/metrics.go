package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName             = "horizon-api"
	observabilityEventName = "observability.event"
	requestEventDomain     = "horizon"
	attrPrefix             = "horizon.request."
)

// computeDuration tracks time spent in layout and analytics computation,
// separate from the HTTP-level metrics echoprometheus already exports.
var computeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "horizon_compute_duration_seconds",
	Help:    "Time spent computing chart layouts and analytics per route.",
	Buckets: prometheus.DefBuckets,
}, []string{"route"})

func init() {
	prometheus.MustRegister(computeDuration)
}

// requestMetrics collects per-request timings for the computation-heavy
// routes (gantt, dashboard) and emits them once, as both a span event and a
// structured log line.
type requestMetrics struct {
	logger          *log.Logger
	route           string
	span            trace.Span
	start           time.Time
	authDuration    time.Duration
	fetchDuration   time.Duration
	computeDuration time.Duration
	encodeDuration  time.Duration
	itemsReturned   int
	errorStage      string
}

// newRequestMetrics opens a span for the route and returns the metrics
// recorder plus the span-carrying context (nil when no tracer is installed).
func newRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*requestMetrics, context.Context) {
	m := &requestMetrics{
		logger: logger,
		route:  route,
		start:  time.Now(),
	}
	if ctx == nil {
		ctx = context.Background()
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, route)
	m.span = span
	return m, spanCtx
}

func (m *requestMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *requestMetrics) ObserveFetch(duration time.Duration) {
	if duration > 0 {
		m.fetchDuration = duration
	}
}

func (m *requestMetrics) ObserveCompute(duration time.Duration) {
	if duration > 0 {
		m.computeDuration = duration
		computeDuration.WithLabelValues(m.route).Observe(duration.Seconds())
	}
}

func (m *requestMetrics) ObserveEncode(duration time.Duration) {
	if duration > 0 {
		m.encodeDuration = duration
	}
}

func (m *requestMetrics) SetItemsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.itemsReturned = count
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *requestMetrics) eventName() string {
	name := strings.TrimPrefix(m.route, "/api/")
	name = strings.ReplaceAll(name, "/", ".")
	return name + ".request"
}

// Log ends the span and emits the observability event. Call exactly once,
// after the response is written.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)
	totalMs := durationToMillis(time.Since(m.start))

	attrs := []attribute.KeyValue{
		attribute.String("event.name", m.eventName()),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
		attribute.Float64(attrPrefix+"total_ms", totalMs),
		attribute.Int(attrPrefix+"items_returned", m.itemsReturned),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"auth_ms", durationToMillis(m.authDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.computeDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"compute_ms", durationToMillis(m.computeDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	var traceID string
	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", m.route),
			attribute.Int("http.status_code", status),
		)
		m.span.AddEvent(observabilityEventName, trace.WithAttributes(attrs...))
		if err != nil || status >= http.StatusInternalServerError {
			desc := "request failed"
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      m.eventName(),
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"http.route":      m.route,
		"http.status":     status,
		"attributes":      attributesToFields(attrs),
	}
	if traceID != "" {
		fields["trace_id"] = traceID
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEventName)
	case "WARN":
		entry.Warn(observabilityEventName)
	default:
		entry.Info(observabilityEventName)
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
