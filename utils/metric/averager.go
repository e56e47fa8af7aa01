// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metric provides small helpers on top of prometheus.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Averager tracks a running average through a pair of prometheus counters.
type Averager interface {
	Observe(value float64)
}

type averager struct {
	count prometheus.Counter
	sum   prometheus.Counter
}

// NewAverager creates an Averager and registers its counters with [reg].
func NewAverager(name, desc string, reg prometheus.Registerer) (Averager, error) {
	a := &averager{
		count: prometheus.NewCounter(prometheus.CounterOpts{
			Name: name + "_count",
			Help: "Number of observations of: " + desc,
		}),
		sum: prometheus.NewCounter(prometheus.CounterOpts{
			Name: name + "_sum",
			Help: "Sum of observations of: " + desc,
		}),
	}
	if err := reg.Register(a.count); err != nil {
		return nil, err
	}
	if err := reg.Register(a.sum); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *averager) Observe(value float64) {
	a.count.Inc()
	a.sum.Add(value)
}
