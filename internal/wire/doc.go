// Package wire defines the daemon/client message envelope and the binary
// framing used to move envelopes across the local socket.
//
// Every message is an Envelope: a protocol version, a correlation id, a kind
// (Hello, Subscribe, Request, Response, Event, Err), a JSON payload, and a
// timestamp. Request kinds carry an Operation, a sealed set of remote calls
// with optional parameters.
//
// On the wire each envelope is framed as a 4-byte big-endian length (payload
// size plus one), a compression flag byte, and the JSON payload. Payloads over
// the compression threshold are gzip-compressed. Decode never blocks: callers
// accumulate bytes in a FrameBuffer and call TryDecode after every read until
// it reports that more data is needed.
//
// Decoding errors are fatal to the connection that produced them; the length
// header is bounded by Limits.MaxFrameBytes so a corrupt peer cannot force
// unbounded buffering.
package wire
