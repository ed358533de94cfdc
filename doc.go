// Package modbus implements the Modbus TCP session engine: MBAP framing,
// a client session loop that multiplexes queued requests over a single
// transaction-id stream, and a server session loop that dispatches decoded
// PDUs to per-unit handlers.
//
// RTU (serial) framing, TLS/authentication, and persisted device registers
// are out of scope; the server only routes to caller-supplied handlers.
package modbus
