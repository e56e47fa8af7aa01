// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package brb

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/brb/utils/metric"
)

type processMetrics struct {
	packetsHandled  prometheus.Counter
	packetsInvalid  prometheus.Counter
	opsDelivered    prometheus.Counter
	proofsBroadcast prometheus.Counter
	generation      prometheus.Gauge
	handleDuration  metric.Averager
}

func newProcessMetrics(reg prometheus.Registerer) (*processMetrics, error) {
	m := &processMetrics{
		packetsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brb_packets_handled",
			Help: "Number of packets handled",
		}),
		packetsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brb_packets_invalid",
			Help: "Number of packets rejected by validation",
		}),
		opsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brb_ops_delivered",
			Help: "Number of ops delivered to the data type",
		}),
		proofsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brb_proofs_broadcast",
			Help: "Number of proofs of agreement broadcast",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brb_generation",
			Help: "Committed membership generation",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.packetsHandled,
		m.packetsInvalid,
		m.opsDelivered,
		m.proofsBroadcast,
		m.generation,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	handleDuration, err := metric.NewAverager(
		"brb_handle_duration",
		"time (in ns) handling a packet took",
		reg,
	)
	if err != nil {
		return nil, err
	}
	m.handleDuration = handleDuration

	return m, nil
}
