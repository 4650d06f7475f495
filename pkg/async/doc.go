// Package async provides asynchronous handles for work running on other goroutines.
//
// A Future is a handle to a single unit of work. It is created cold with New or
// NewTask and started through a Launcher, or it is completed externally through a
// Promise. Completed handles can be built directly with FromResult and FromError.
//
//	t := async.NewTask(func() error { return refresh() })
//	if err := t.Start(async.GoLauncher); err != nil {
//		return err
//	}
//	err := async.Wait(t, false)
//
// Any type with Done and Err methods is an Awaitable, including context.Context.
//
// # Faults
//
// A panic inside the work is recovered and stored as a *PanicError carrying the
// stack of the panic site. Wait returns the stored error value itself, so callers can
// compare it with errors.Is against the value the work returned.
//
// # Value
//
// Value is a small struct holding either an immediate result or a Future. Completed
// values never allocate; AsFuture allocates only when a Future is required.
package async
