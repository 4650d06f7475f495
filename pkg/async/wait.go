package async

import "context"

// Wait blocks until a has finished and returns its fault.
//
// By default an *AggregateError is unwrapped and its first inner error is returned
// as-is, keeping the identity of the value the work failed with. With
// passThroughAggregate the aggregate itself is returned.
func Wait(a Awaitable, passThroughAggregate bool) error {
	<-a.Done()
	return unwrapFault(a.Err(), passThroughAggregate)
}

// WaitContext is like Wait but gives up when ctx is done, returning ctx.Err().
func WaitContext(ctx context.Context, a Awaitable, passThroughAggregate bool) error {
	select {
	case <-a.Done():
		return unwrapFault(a.Err(), passThroughAggregate)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unwrapFault(err error, passThroughAggregate bool) error {
	if err == nil || passThroughAggregate {
		return err
	}
	if agg, ok := err.(*AggregateError); ok && len(agg.Errors) > 0 {
		return agg.Errors[0]
	}
	return err
}
