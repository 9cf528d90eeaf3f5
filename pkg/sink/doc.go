// Package sink provides destinations for multipart part bodies.
//
// The simple sinks (Memory, Discard, File, Counting) are written to
// directly. Object stores implement Putter and are fed through a Spool,
// which buffers a part on local disk and commits it on Close. A Pool spreads
// commits across several stores with circuit breakers and priority based
// failover.
package sink
