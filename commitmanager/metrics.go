// Copyright 2026 The Exocore Authors
// This file is part of Exocore.
//
// Exocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Exocore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Exocore. If not, see <http://www.gnu.org/licenses/>.

package commitmanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the commit manager's tick outcomes. A nil *Metrics is
// valid and every method on it is a no-op, so callers that don't care about
// observability (component tests) can skip registration entirely.
type Metrics struct {
	blocksCommitted prometheus.Counter
	blocksProposed  prometheus.Counter
	signaturesIssued prometheus.Counter
	refusalsIssued  prometheus.Counter
	operationsCleaned prometheus.Counter
}

// NewMetrics registers the commit manager's counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		blocksCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "exocore_commitmanager_blocks_committed_total",
			Help: "Blocks written to the chain store by the commit manager.",
		}),
		blocksProposed: factory.NewCounter(prometheus.CounterOpts{
			Name: "exocore_commitmanager_blocks_proposed_total",
			Help: "Block proposals created by this node.",
		}),
		signaturesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "exocore_commitmanager_signatures_total",
			Help: "BlockSign operations issued by this node.",
		}),
		refusalsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "exocore_commitmanager_refusals_total",
			Help: "BlockRefuse operations issued by this node.",
		}),
		operationsCleaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "exocore_commitmanager_operations_cleaned_total",
			Help: "Pending-store operations deleted by cleanup.",
		}),
	}
}

func (m *Metrics) incBlocksCommitted() {
	if m != nil {
		m.blocksCommitted.Inc()
	}
}

func (m *Metrics) incBlocksProposed() {
	if m != nil {
		m.blocksProposed.Inc()
	}
}

func (m *Metrics) incSignatures() {
	if m != nil {
		m.signaturesIssued.Inc()
	}
}

func (m *Metrics) incRefusals() {
	if m != nil {
		m.refusalsIssued.Inc()
	}
}

func (m *Metrics) addOperationsCleaned(n int) {
	if m != nil {
		m.operationsCleaned.Add(float64(n))
	}
}
