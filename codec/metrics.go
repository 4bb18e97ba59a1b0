package codec

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts bytes and calls per codec, per spec.md §4.2's "per-codec
// throughput counters", grounded on brawer-wikidata-qrank's use of
// prometheus/client_golang for pipeline instrumentation.
var (
	encodeCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tiffcore",
		Subsystem: "codec",
		Name:      "encode_calls_total",
		Help:      "Number of codec Encode invocations, by codec name.",
	}, []string{"codec"})

	decodeCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tiffcore",
		Subsystem: "codec",
		Name:      "decode_calls_total",
		Help:      "Number of codec Decode invocations, by codec name.",
	}, []string{"codec"})

	encodeBytesIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tiffcore",
		Subsystem: "codec",
		Name:      "encode_input_bytes_total",
		Help:      "Raw bytes passed into Encode, by codec name.",
	}, []string{"codec"})

	decodeBytesOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tiffcore",
		Subsystem: "codec",
		Name:      "decode_output_bytes_total",
		Help:      "Decoded bytes produced by Decode, by codec name.",
	}, []string{"codec"})
)

// MustRegister registers the codec package's metrics with reg. Callers
// decide which registry to use (cmd/tiffctl registers none); the metrics are not
// auto-registered against prometheus.DefaultRegisterer to keep this package
// safe to import from tests without a global side effect.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(encodeCalls, decodeCalls, encodeBytesIn, decodeBytesOut)
}
