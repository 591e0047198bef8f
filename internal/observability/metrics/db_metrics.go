package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const scrapeTimeout = 5 * time.Second

// stateCollector reads row counts by state at scrape time. Each query returns
// (label, count) rows.
type stateCollector struct {
	db     *sql.DB
	logger *zap.Logger
	gauges []stateGauge
}

type stateGauge struct {
	desc  *prometheus.Desc
	query string
}

func newStateCollector(db *sql.DB, logger *zap.Logger) *stateCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	gauge := func(name, help, label, query string) stateGauge {
		return stateGauge{
			desc:  prometheus.NewDesc(metricPrefix+name, help, []string{label}, nil),
			query: query,
		}
	}
	return &stateCollector{
		db:     db,
		logger: logger,
		gauges: []stateGauge{
			gauge("devices", "Devices by current status", "status",
				`SELECT status, COUNT(*) FROM device_status GROUP BY status`),
			gauge("sites", "Sites by aggregate status", "status",
				`SELECT status, COUNT(*) FROM site_status GROUP BY status`),
			gauge("incidents", "Incidents by lifecycle status", "status",
				`SELECT status, COUNT(*) FROM incidents GROUP BY status`),
			gauge("event_outbox", "Outbox rows by delivery status", "status",
				`SELECT status, COUNT(*) FROM event_outbox GROUP BY status`),
			gauge("event_dlq", "Dead-lettered events by type", "event_type",
				`SELECT event_type, COUNT(*) FROM dead_letter_events GROUP BY event_type`),
		},
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()
	for _, g := range c.gauges {
		if err := c.collect(ctx, g, ch); err != nil {
			c.logger.Warn("metrics query failed", zap.String("metric", g.desc.String()), zap.Error(err))
		}
	}
}

func (c *stateCollector) collect(ctx context.Context, g stateGauge, ch chan<- prometheus.Metric) error {
	rows, err := c.db.QueryContext(ctx, g.query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			label sql.NullString
			count int64
		)
		if err := rows.Scan(&label, &count); err != nil {
			return err
		}
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, float64(count), label.String)
	}
	return rows.Err()
}
