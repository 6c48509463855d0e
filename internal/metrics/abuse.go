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
	// ReplayRejections tracks envelopes dropped as replays.
	ReplayRejections = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "abuse",
			Name:      "replay_rejections_total",
			Help:      "Total number of envelopes rejected as replays",
		},
	)

	// ReputationEvents tracks reputation score adjustments by kind.
	ReputationEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "abuse",
			Name:      "reputation_events_total",
			Help:      "Total number of reputation score adjustments",
		},
		[]string{"kind"}, // gossip-invalid-batch, manual-credit, ...
	)

	// PeersBanned tracks the number of peers currently below the ban
	// threshold.
	PeersBanned = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "abuse",
			Name:      "peers_banned",
			Help:      "Number of peers currently banned by reputation score",
		},
	)

	// DirectoryAbuseEvents tracks service-directory abuse detections by
	// kind, never auto-blocking.
	DirectoryAbuseEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "abuse",
			Name:      "directory_events_total",
			Help:      "Total number of service-directory abuse detections",
		},
		[]string{"kind"}, // directory-enumeration, directory-rapid-fire, directory-scanning
	)

	// MeshSyncQuarantines tracks gossip senders placed into quarantine.
	MeshSyncQuarantines = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "abuse",
			Name:      "mesh_sync_quarantines_total",
			Help:      "Total number of gossip senders placed into quarantine",
		},
	)
)
