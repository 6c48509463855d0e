// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnvelopesValidated tracks the outcome of every envelope that passed
	// through the validator pipeline, by the step that decided it.
	EnvelopesValidated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "envelopes_total",
			Help:      "Total number of control envelopes validated",
		},
		[]string{"step", "result"}, // presence/ratelimit/size/timestamp/replay/signature, accept/reject
	)

	// ValidationDuration tracks how long the full pipeline takes per
	// envelope.
	ValidationDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "duration_seconds",
			Help:      "Envelope validation pipeline duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to 163ms
		},
	)

	// QuarantinedSources tracks envelopes dropped because their source was
	// already quarantined.
	QuarantinedSources = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "quarantined_sources_total",
			Help:      "Total number of envelopes dropped due to an active quarantine",
		},
	)
)
