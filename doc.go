// Package rush implements a single-threaded, userspace packet-forwarding
// engine that applies configurable QoS degradation — loss, latency,
// jitter, and rate limiting — to Ethernet traffic bridged between two host
// network interfaces.
//
// The engine is built from [App] instances wired together by [Link]
// ring buffers into a directed graph, and driven breath by breath by an
// [Engine]: each breath calls Pull on every source app and then Push on
// every app with pending input, in the graph's configuration order. A
// [Pool] of fixed-capacity [Packet] buffers backs every link in the graph,
// sized once at startup to bound memory use regardless of load.
//
// [RawSocket] apps read and write raw Ethernet frames on host interfaces.
// [Split] classifies packets into named flows by exact IPv4/protocol/port
// match and fans them out across independently configured [Loss],
// [Latency], [Jitter], and [RateLimiter] apps, one pipeline per flow label
// per direction; [Merge] and a single [Checksum] fix the results back
// together before a RawSocket transmits them. [FlowTop] taps each
// direction's raw traffic to maintain an approximate per-flow counter
// table, snapshotted to a fixed-layout binary file on request.
//
// [BuildGraph] assembles this graph from a [Spec] parsed by [ParseSpec];
// [Engine.Configure] applies a new graph to a running engine, reusing any
// app instance whose configuration is unchanged.
package rush
