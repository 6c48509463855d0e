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
	// DatagramsReceived tracks inbound UDP control datagrams by outcome.
	DatagramsReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "datagrams_received_total",
			Help:      "Total number of UDP control datagrams received",
		},
		[]string{"outcome"}, // accepted, oversize, rate_limited, malformed
	)

	// StreamsAccepted tracks QUIC streams accepted by ALPN and outcome.
	StreamsAccepted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "streams_accepted_total",
			Help:      "Total number of QUIC streams accepted",
		},
		[]string{"alpn", "outcome"}, // slskdn-overlay/slskdn-overlay-data, accepted/rate_limited/denied
	)

	// ActiveRelays tracks currently open RELAY_TCP proxy streams.
	ActiveRelays = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "active_relays",
			Help:      "Number of currently open RELAY_TCP proxy streams",
		},
	)

	// RelayBytesTransferred tracks bytes moved through RELAY_TCP proxies.
	RelayBytesTransferred = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "relay_bytes_total",
			Help:      "Total bytes transferred through RELAY_TCP proxies",
		},
		[]string{"direction"}, // upstream, downstream
	)

	// DispatchDuration tracks how long a registered handler takes to run.
	DispatchDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "dispatch_duration_seconds",
			Help:      "Handler dispatch duration in seconds by envelope type",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"type"},
	)
)
