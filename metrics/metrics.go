// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package metrics exports forwarding statistics to Prometheus.
package metrics

import (
	"github.com/btcsuite/btcfwd/forward"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "btcfwd"
	subsystem = "forward"
)

var (
	depositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "deposits_total",
		Help:      "Count of deposits accepted for forwarding.",
	}, []string{"network"})

	depositValue = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "deposit_value_satoshis",
		Help:      "Value of accepted deposits.",
		Buckets:   prometheus.ExponentialBuckets(1e3, 10, 8), // 1k..10B sat
	}, []string{"network"})

	pipelinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pipelines_total",
		Help:      "Count of finished forwarding pipelines.",
	}, []string{"network", "status", "stage"})

	forwardedSatoshis = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "forwarded_satoshis_total",
		Help:      "Value paid to the destination address.",
	}, []string{"network"})

	feeSatoshis = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fee_satoshis_total",
		Help:      "Network fees paid by sweeps.",
	}, []string{"network"})
)

// Forwarder records the progress of forwarding pipelines.  It implements
// forward.Observer.
type Forwarder struct {
	network string
}

// A compile time check to ensure Forwarder implements forward.Observer.
var _ forward.Observer = (*Forwarder)(nil)

// NewForwarder returns a Forwarder labelling its samples with network.
func NewForwarder(network string) *Forwarder {
	if network == "" {
		network = "unknown"
	}
	return &Forwarder{network: network}
}

// DepositSeen implements forward.Observer.
func (m *Forwarder) DepositSeen(deposit forward.Deposit) {
	depositsTotal.WithLabelValues(m.network).Inc()
	depositValue.WithLabelValues(m.network).Observe(float64(deposit.Value))
}

// PipelineDone implements forward.Observer.
func (m *Forwarder) PipelineDone(result *forward.Result) {
	pipelinesTotal.WithLabelValues(
		m.network, "success", forward.StageDone.String(),
	).Inc()
	forwardedSatoshis.WithLabelValues(m.network).Add(
		float64(result.Forwarded),
	)
	feeSatoshis.WithLabelValues(m.network).Add(float64(result.Fee))
}

// PipelineFailed implements forward.Observer.
func (m *Forwarder) PipelineFailed(stage forward.Stage, err error) {
	pipelinesTotal.WithLabelValues(m.network, "error", stage.String()).Inc()
	log.Debugf("Recorded %v failure: %v", stage, err)
}

// RegisterInFlight exports the number of running pipelines, as reported by
// inFlight, under the network label.
func RegisterInFlight(network string, inFlight func() int) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "in_flight",
		Help:        "Number of deposits currently being forwarded.",
		ConstLabels: prometheus.Labels{"network": network},
	}, func() float64 {
		return float64(inFlight())
	})

	return prometheus.Register(gauge)
}
