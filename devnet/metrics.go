// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "devnet"

type metrics struct {
	blocks       prometheus.Counter
	height       prometheus.Gauge
	transactions *prometheus.CounterVec
	dumps        *prometheus.CounterVec
	execDuration prometheus.Histogram
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_produced",
			Help:      "Number of blocks produced since start",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_count",
			Help:      "Number of blocks in the chain",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions",
			Help:      "Number of transactions received, by kind and final status",
		}, []string{"kind", "status"}),
		dumps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dumps",
			Help:      "Number of dumps written, by outcome",
		}, []string{"outcome"}),
		execDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_seconds",
			Help:      "Time spent executing a transaction in the VM",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(m.blocks),
		registerer.Register(m.height),
		registerer.Register(m.transactions),
		registerer.Register(m.dumps),
		registerer.Register(m.execDuration),
	)
	return m, errs.Err
}
