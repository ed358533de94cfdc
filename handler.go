package modbus

// ReadBitResult is what a single coil/discrete-input read returns.
type ReadBitResult struct {
	Value     bool
	Ok        bool
	Exception Exception
}

// ReadRegisterResult is what a single holding/input register read
// returns.
type ReadRegisterResult struct {
	Value     uint16
	Ok        bool
	Exception Exception
}

// WriteResult is what any write callback returns. When Ok is false and
// Exception is nil, the dispatcher defaults to ExIllegalDataAddress.
type WriteResult struct {
	Ok        bool
	Exception Exception
}

// ReadWriteResult is what the supplemental ReadWriteMultipleRegisters
// capability returns: the read values, on success.
type ReadWriteResult struct {
	Values    []uint16
	Ok        bool
	Exception Exception
}

// RequestHandler is the capability set a server binds to a unit id. Every
// method is invoked from whichever session currently owns the request for
// that unit, so implementations must internally serialize access to any
// mutable state they hold - handlers are shared across concurrently
// running sessions.
type RequestHandler interface {
	ReadCoil(index uint16) ReadBitResult
	ReadDiscreteInput(index uint16) ReadBitResult
	ReadHoldingRegister(index uint16) ReadRegisterResult
	ReadInputRegister(index uint16) ReadRegisterResult
	WriteSingleCoil(index uint16, value bool) WriteResult
	WriteSingleRegister(index uint16, value uint16) WriteResult
	WriteMultipleCoils(start uint16, values *BitIterator) WriteResult
	WriteMultipleRegisters(start uint16, values *RegisterIterator) WriteResult
	// ReadWriteMultipleRegisters backs function code 0x17: a combined
	// write-then-read, carried over from the reference implementation's
	// client task (see SPEC_FULL.md §4.6).
	ReadWriteMultipleRegisters(read AddressRange, writeStart uint16, values *RegisterIterator) ReadWriteResult
	// Destroy is the scoped release hook invoked once, when the handler's
	// last reference is dropped from the server (device map teardown).
	// It belongs to the handler's own capability set, not to Go's garbage
	// collector, mirroring the explicit destroy() the reference
	// implementation exposes across its FFI boundary.
	Destroy()
}

// sharedHandler wraps a RequestHandler with a reference count holding one
// reference per unit id the handler instance is bound to in a device map.
// The embedder's own references to the handler are not counted. Destroy
// fires exactly once, when the last counted reference is released.
type sharedHandler struct {
	handler RequestHandler
	refs    int32
}

func newSharedHandler(h RequestHandler) *sharedHandler {
	return &sharedHandler{handler: h, refs: 1}
}

func (s *sharedHandler) acquire() {
	s.refs++
}

// release decrements the reference count and calls Destroy once it
// reaches zero. Not safe for concurrent use: acquire runs under the owning
// DeviceMap's mutex, and release runs only from boundDeviceMap.destroy,
// which Serve calls once after every session has finished.
func (s *sharedHandler) release() {
	s.refs--
	if s.refs == 0 {
		s.handler.Destroy()
	}
}
