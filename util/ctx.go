package util

import "context"

// CancelOn returns a child of ctx that is also cancelled once doneC closes.
func CancelOn(ctx context.Context, doneC <-chan struct{}) (context.Context, context.CancelFunc) {
	if ctx == nil || doneC == nil {
		panic("ctx or doneC is nil")
	}
	ctxC, cancel := context.WithCancel(ctx)
	go loopCtxClose(ctxC, doneC, cancel)
	return ctxC, cancel
}

func loopCtxClose(
	ctx context.Context,
	doneC <-chan struct{},
	cancel context.CancelFunc,
) {
	defer cancel()
	select {
	case <-ctx.Done():
	case <-doneC:
	}
}
