package process

import (
	"context"
	"time"
)

// batchPollSleep is the pause between finished checks during the bounded
// polling phase of WaitAll. Overridable in tests.
var batchPollSleep = 6 * time.Second

// WaitAll waits for every process to finish and returns the first failure in
// order. With a positive timeout it first polls the processes for roughly
// that long so slow hosts surface early, then it still blocks on every
// process so none is left uncollected. Later failures are classified and
// logged by their own process but not returned.
func WaitAll(ctx context.Context, procs []*Process, timeout time.Duration) error {
	if timeout > 0 {
		tries := int(timeout / batchPollSleep)
		pending := make([]*Process, len(procs))
		copy(pending, procs)
		for try := 0; try < tries && len(pending) > 0; try++ {
			if try > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(batchPollSleep):
				}
			}
			left := pending[:0]
			for _, p := range pending {
				if !p.Finished() {
					left = append(left, p)
				}
			}
			pending = left
		}
	}

	var firstErr error
	for _, p := range procs {
		_, err := p.Wait(ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
