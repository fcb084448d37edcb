package modbus

// RequestValidator is an optional policy hook consulted by
// checkRegisterBounds before any address/quantity check runs. Returning OK
// permits the request to proceed to the normal bounds check; any other
// Exception aborts the request immediately with that code.
//
// The validator runs while the server-wide lock is held (asynchronous
// mode) or inline with the caller (synchronous mode, §5). It must not call
// back into Handler or Server methods that would themselves try to
// acquire that lock — reentrancy is not supported.
type RequestValidator func(unit, function byte, address, quantity uint16) Exception
