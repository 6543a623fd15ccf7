package collection

import (
	"context"
	"sync"
	"sync/atomic"
)

// requestState tracks a fetch through its lifecycle.
type requestState int32

const (
	statePending requestState = iota
	stateCompleted
	stateAborted
)

// Request is one in-flight fetch of a collection. It is returned by
// FetchAsync and settles exactly once, either completed (with or without
// error) or aborted because a newer fetch superseded it.
type Request struct {
	// ID is a unique request identifier, logged and sent as X-Request-ID.
	ID string
	// URL is the listing URL requested.
	URL string

	state        atomic.Int32
	cancel       context.CancelFunc
	done         chan struct{}
	once         sync.Once
	err          error
	supersededBy string
}

func newRequest(id, url string, cancel context.CancelFunc) *Request {
	return &Request{
		ID:     id,
		URL:    url,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Done is closed when the request settles.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request settles or ctx is done and returns the
// request's error.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the outcome of a settled request, nil while pending.
func (r *Request) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Aborted reports whether the request was superseded by a newer fetch.
func (r *Request) Aborted() bool {
	return requestState(r.state.Load()) == stateAborted
}

// SupersededBy returns the id of the request that aborted this one.
// Only meaningful once Aborted reports true and the request has settled.
func (r *Request) SupersededBy() string {
	<-r.done
	return r.supersededBy
}

// abort marks a pending request aborted and cancels its context. Must be
// called with the owning collection's lock held.
func (r *Request) abort(by string) bool {
	if !r.state.CompareAndSwap(int32(statePending), int32(stateAborted)) {
		return false
	}
	r.supersededBy = by
	r.cancel()
	return true
}

// complete moves a pending request to completed. It fails if the request
// has already been aborted.
func (r *Request) complete() bool {
	return r.state.CompareAndSwap(int32(statePending), int32(stateCompleted))
}

func (r *Request) finish(err error) {
	r.once.Do(func() {
		r.err = err
		r.cancel()
		close(r.done)
	})
}
