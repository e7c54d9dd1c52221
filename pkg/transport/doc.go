// Package transport defines the link transports a node accepts link.in
// traffic on, plus the framing shared by the stream based ones.
//
// Key concepts:
// - Transport: dials and listens for Conns of one Kind (QUIC, TCP, named pipe, mem)
// - Conn: a connection to a peer; QUIC multiplexes streams, the others carry one
// - Stream: a bidirectional channel of length-prefixed frames
// - Conns: the set of live connections, closed together on shutdown
package transport
