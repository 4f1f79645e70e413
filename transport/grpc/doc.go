// Package grpctransport runs a worker group across processes over gRPC.
//
// The coordinator process serves the group with a Server and takes rank 0
// through Server.Root. Every other process dials it with Dial, which joins the
// group and assigns the next free rank. Collectives are unary RPCs that block
// on the server until every rank contributed to the same round.
//
// Points and aggregate sums travel as binary frames from the codec package
// inside JSON envelopes, so coordinates cross the wire bit-exactly.
package grpctransport
