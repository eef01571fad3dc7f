package otel

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce      sync.Once
	taskOpsCounter       metric.Int64Counter
	webhookCounter       metric.Int64Counter
	activitiesCounter    metric.Int64Counter
	notificationsCounter metric.Int64Counter
	sseEventsCounter     metric.Int64Counter
	sseConnections       atomic.Int64
)

// InitMetrics creates the counters and the SSE connection gauge on the global meter.
// Only the first call does any work. Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		counters := []struct {
			dest *metric.Int64Counter
			name string
			desc string
		}{
			{&taskOpsCounter, "missioncontrol_task_operations_total", "Task operations (create, status, assign, comment) by resulting status"},
			{&webhookCounter, "missioncontrol_webhook_requests_total", "Webhook requests by action and result"},
			{&activitiesCounter, "missioncontrol_activities_total", "Activities appended by type"},
			{&notificationsCounter, "missioncontrol_notifications_delivered_total", "Mention notifications delivered, by channel"},
			{&sseEventsCounter, "missioncontrol_sse_events_total", "Change-feed events published"},
		}
		for _, c := range counters {
			if *c.dest, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
				return
			}
		}
		_, err = m.Int64ObservableGauge("missioncontrol_sse_connections",
			metric.WithDescription("Open /stream subscribers"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(sseConnections.Load())
				return nil
			}))
	})
	return err
}

// RecordTaskOp records a task operation (create, status, assign, comment).
func RecordTaskOp(ctx context.Context, op, status string) {
	if taskOpsCounter != nil {
		taskOpsCounter.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op), AttrStatus.String(status)))
	}
}

// RecordWebhook records one webhook request. result is "ok" or the failure class (unauthorized, invalid_json, ...).
func RecordWebhook(ctx context.Context, action, result string) {
	if webhookCounter != nil {
		webhookCounter.Add(ctx, 1, metric.WithAttributes(AttrAction.String(action), AttrResult.String(result)))
	}
}

// RecordActivity records one appended activity.
func RecordActivity(ctx context.Context, activityType string) {
	if activitiesCounter != nil {
		activitiesCounter.Add(ctx, 1, metric.WithAttributes(AttrType.String(activityType)))
	}
}

// RecordNotificationDelivered records a delivered notification on channel ("feed" when no outbound channel is configured).
func RecordNotificationDelivered(ctx context.Context, channel string) {
	if notificationsCounter != nil {
		notificationsCounter.Add(ctx, 1, metric.WithAttributes(AttrChannel.String(channel)))
	}
}

func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

func AddSSEConnection() { sseConnections.Add(1) }

// RemoveSSEConnection decrements the subscriber gauge, never below zero.
func RemoveSSEConnection() {
	for {
		n := sseConnections.Load()
		if n <= 0 || sseConnections.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// CountFunc returns counts keyed by status.
type CountFunc func(ctx context.Context) map[string]int64

// DomainGauges are read on every scrape. Nil funcs are not reported.
type DomainGauges struct {
	Tasks  CountFunc // missioncontrol_tasks{status}
	Agents CountFunc // missioncontrol_agents{status}
}

// InitMetricsWithGauges creates the instruments and registers the board gauges.
// Call after InitMeterProvider.
func InitMetricsWithGauges(ctx context.Context, g DomainGauges) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	m := Meter()
	for _, gauge := range []struct {
		name, desc string
		fn         CountFunc
	}{
		{"missioncontrol_tasks", "Tasks by status", g.Tasks},
		{"missioncontrol_agents", "Agents by status", g.Agents},
	} {
		if gauge.fn == nil {
			continue
		}
		fn := gauge.fn
		if _, err := m.Int64ObservableGauge(gauge.name,
			metric.WithDescription(gauge.desc),
			metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
				for status, n := range fn(ctx) {
					o.Observe(n, metric.WithAttributes(AttrStatus.String(status)))
				}
				return nil
			})); err != nil {
			return err
		}
	}
	return nil
}
