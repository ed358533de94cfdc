package modbus

import "io"

// Transport is the bidirectional byte stream a session reads frames from
// and writes frames to. The core does not care whether it is backed by a
// TCP socket, a Unix socket, or a test double - it only needs ordered
// reads and writes.
type Transport interface {
	io.Reader
	io.Writer
}

// writeAll writes the whole buffer to w, wrapping any short-write/error
// condition as an IoError.
func writeAll(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return &IoError{Op: "write", Err: err}
		}
		buf = buf[n:]
	}
	return nil
}
