// Package metrics tallies routing outcomes per (domain, environment).
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"eeia/internal/domain"
)

// Counts is one row of the domain traffic table.
type Counts struct {
	Domain           domain.Domain      `json:"domain"`
	Environment      domain.Environment `json:"environment"`
	Total            int64              `json:"total"`
	Routed           int64              `json:"routed"`
	Offline          int64              `json:"offline"`
	TimeseriesStored int64              `json:"ts_stored"`
	ObjectStored     int64              `json:"obj_stored"`
}

type key struct {
	domain      domain.Domain
	environment domain.Environment
}

// Recorder exports decision tallies to Prometheus and keeps an in-process
// table for the JSON snapshot endpoint.
type Recorder struct {
	Packets       *prometheus.CounterVec
	Routed        *prometheus.CounterVec
	Offline       *prometheus.CounterVec
	Timeseries    *prometheus.CounterVec
	ObjectStorage *prometheus.CounterVec

	mu     sync.Mutex
	counts map[key]*Counts
}

// New registers the routing counters with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	labels := []string{"domain", "environment"}
	return &Recorder{
		Packets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eeia_routing_packets_total",
			Help: "Packets routed by domain and environment",
		}, labels),
		Routed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eeia_routing_forwarded_total",
			Help: "Packets whose decision allowed forwarding",
		}, labels),
		Offline: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eeia_routing_offline_total",
			Help: "Packets withheld from forwarding and parked offline",
		}, labels),
		Timeseries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eeia_routing_timeseries_stored_total",
			Help: "Decisions requesting timeseries storage",
		}, labels),
		ObjectStorage: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eeia_routing_object_stored_total",
			Help: "Decisions requesting object storage",
		}, labels),
		counts: make(map[key]*Counts),
	}
}

// Record tallies one decision.
func (r *Recorder) Record(d domain.RoutingDecision) {
	if r == nil {
		return
	}
	dom, env := d.Packet.Domain(), d.Packet.Environment()
	lv := []string{string(dom), string(env)}

	r.Packets.WithLabelValues(lv...).Inc()
	if d.ShouldForward {
		r.Routed.WithLabelValues(lv...).Inc()
	} else {
		r.Offline.WithLabelValues(lv...).Inc()
	}
	if d.StoreInTimeseries {
		r.Timeseries.WithLabelValues(lv...).Inc()
	}
	if d.StoreInObjectStorage {
		r.ObjectStorage.WithLabelValues(lv...).Inc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{domain: dom, environment: env}
	c, ok := r.counts[k]
	if !ok {
		c = &Counts{Domain: dom, Environment: env}
		r.counts[k] = c
	}
	c.Total++
	if d.ShouldForward {
		c.Routed++
	} else {
		c.Offline++
	}
	if d.StoreInTimeseries {
		c.TimeseriesStored++
	}
	if d.StoreInObjectStorage {
		c.ObjectStored++
	}
}

// Snapshot returns the table sorted by domain then environment.
func (r *Recorder) Snapshot() []Counts {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	out := make([]Counts, 0, len(r.counts))
	for _, c := range r.counts {
		out = append(out, *c)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Environment < out[j].Environment
	})
	return out
}
