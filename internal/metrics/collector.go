// Package metrics exports simulation activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gravitas-games/prodsim/internal/observe"
	"github.com/gravitas-games/prodsim/internal/player"
	"github.com/gravitas-games/prodsim/internal/production"
	"github.com/gravitas-games/prodsim/internal/sim"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

const namespace = "prodsim"

// Collector holds every prodsim metric. Event-driven metrics are updated
// from the world's streams; gauges are refreshed by Sample.
type Collector struct {
	transfersStarted  *prometheus.CounterVec
	transfersFinished *prometheus.CounterVec
	transfersLive     prometheus.Gauge

	buildingTransitions *prometheus.CounterVec
	buildingStops       *prometheus.CounterVec
	buildingProgress    *prometheus.GaugeVec

	containerUnits *prometheus.GaugeVec

	ticks        prometheus.Counter
	tickDuration prometheus.Histogram

	subs observe.Group
}

// NewCollector creates unregistered metrics.
func NewCollector() *Collector {
	return &Collector{
		transfersStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transfer",
				Name:      "started_total",
				Help:      "Transfers that reserved both ends, by origin",
			},
			[]string{"origin"},
		),
		transfersFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transfer",
				Name:      "finished_total",
				Help:      "Transfers reaching a terminal status",
			},
			[]string{"status"},
		),
		transfersLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "transfer",
				Name:      "live",
				Help:      "Transfers currently running",
			},
		),
		buildingTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "building",
				Name:      "transitions_total",
				Help:      "Building status changes by target status",
			},
			[]string{"building", "status"},
		),
		buildingStops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "building",
				Name:      "stops_total",
				Help:      "Times a building entered Stopped, by reason",
			},
			[]string{"building", "reason"},
		),
		buildingProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "building",
				Name:      "production_progress",
				Help:      "Production progress of the current cycle (0-1)",
			},
			[]string{"building"},
		),
		containerUnits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "container",
				Name:      "units",
				Help:      "Units held by a container",
			},
			[]string{"container"},
		),
		ticks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sim",
				Name:      "ticks_total",
				Help:      "Simulation ticks executed",
			},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sim",
				Name:      "tick_duration_seconds",
				Help:      "Wall time spent in one simulation tick",
				Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),
	}
}

// Register registers all metrics with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	metrics := []prometheus.Collector{
		c.transfersStarted,
		c.transfersFinished,
		c.transfersLive,
		c.buildingTransitions,
		c.buildingStops,
		c.buildingProgress,
		c.containerUnits,
		c.ticks,
		c.tickDuration,
	}

	for _, metric := range metrics {
		if err := reg.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// Attach subscribes to w's transfer and building streams until Close.
func (c *Collector) Attach(w *sim.World) {
	s := w.Scheduler()
	c.subs.Add(
		s.Started().Subscribe(func(e transfer.Started) {
			c.transfersStarted.WithLabelValues(origin(e.Tag)).Inc()
		}),
		s.Finished().Subscribe(func(e transfer.Finished) {
			c.transfersFinished.WithLabelValues(e.Status.String()).Inc()
		}),
		w.Transitions().Subscribe(func(tr production.Transition) {
			id := tr.Building.ID().String()
			c.buildingTransitions.WithLabelValues(id, tr.To.String()).Inc()
			if tr.To == production.Stopped {
				c.buildingStops.WithLabelValues(id, tr.Reason.String()).Inc()
			}
		}),
	)
}

// Sample refreshes gauges from the current world state. Call it from the
// goroutine that ticks w.
func (c *Collector) Sample(w *sim.World) {
	c.transfersLive.Set(float64(w.Scheduler().Len()))
	for _, b := range w.Buildings() {
		if w.IsPassive(b.ID()) {
			continue
		}
		c.buildingProgress.WithLabelValues(b.ID().String()).Set(b.ProductionProgress())
	}
	for _, ct := range w.Containers() {
		c.containerUnits.WithLabelValues(ct.Name()).Set(float64(ct.Total()))
	}
}

// ObserveTick records one tick that took d.
func (c *Collector) ObserveTick(d time.Duration) {
	c.ticks.Inc()
	c.tickDuration.Observe(d.Seconds())
}

// Close detaches from the world.
func (c *Collector) Close() {
	c.subs.Dispose()
}

func origin(tag any) string {
	switch tag.(type) {
	case production.BuildingID:
		return "building"
	case string:
		if tag == player.Tag {
			return "player"
		}
	}
	return "other"
}
