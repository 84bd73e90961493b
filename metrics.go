package quic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	packetsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quince_packets_received_total",
		Help: "UDP datagrams read off the socket.",
	})
	packetsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quince_packets_sent_total",
		Help: "UDP datagrams written to the socket.",
	})
	packetsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quince_packets_dropped_total",
		Help: "Datagrams discarded before or during decryption, by reason.",
	}, []string{"reason"})
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quince_connections_active",
		Help: "Connections currently tracked in the engine registry.",
	})
	connectionsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quince_connections_accepted_total",
		Help: "Connections that completed their handshake.",
	})
)
