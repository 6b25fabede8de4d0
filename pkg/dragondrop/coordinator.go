package dragondrop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dragondrop-dev/dragondrop/pkg/notify"
)

// ErrUploadFailed is matched by every *UploadError.
var ErrUploadFailed = errors.New("dragondrop: upload failed")

// UploadError is the result of an upload that ended with an error
// notification.
type UploadError struct {
	ID string

	// Response is the server's response, or nil when the request never
	// completed.
	Response *Response
}

func (e *UploadError) Error() string {
	if e.Response != nil {
		return fmt.Sprintf("dragondrop: upload %q failed with status %d", e.ID, e.Response.StatusCode)
	}
	return fmt.Sprintf("dragondrop: upload %q failed", e.ID)
}

func (e *UploadError) Unwrap() error { return ErrUploadFailed }

// Pending is the eventual result of Coordinator.Upload.
type Pending struct {
	done chan struct{}
	once sync.Once
	body any
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) settle(body any, err error) {
	p.once.Do(func() {
		p.body = body
		p.err = err
		close(p.done)
	})
}

// Done is closed once the upload has succeeded or failed.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result returns the success body or an *UploadError. It is only meaningful
// after Done is closed.
func (p *Pending) Result() (any, error) {
	select {
	case <-p.done:
		return p.body, p.err
	default:
		return nil, nil
	}
}

// Wait blocks until the upload settles or ctx ends.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.body, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallOption configures a single Coordinator call.
type CallOption func(*callOptions)

type callOptions struct {
	scope notify.Subscriber
}

// WithScope subscribes through s instead of the coordinator's bus, so the
// subscription ends when s is closed.
func WithScope(s notify.Subscriber) CallOption {
	return func(o *callOptions) { o.scope = s }
}

// Coordinator triggers uploads and observes widgets by id without holding a
// reference to them. It keeps no per-id state.
type Coordinator struct {
	bus notify.Subscriber
}

// NewCoordinator creates a coordinator on bus. A nil bus means
// notify.Default().
func NewCoordinator(bus notify.Subscriber) *Coordinator {
	if bus == nil {
		bus = notify.Default()
	}
	return &Coordinator{bus: bus}
}

func (c *Coordinator) subscriber(opts []CallOption) notify.Subscriber {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.scope != nil {
		return o.scope
	}
	return c.bus
}

// Upload publishes an upload command for widget id and returns its pending
// result. The success and error subscriptions are both removed as soon as
// either fires.
//
// A command that reaches a busy widget is ignored by it; the pending result
// then settles with the outcome of the upload already in flight.
//
// A widget with no staged files (and not in manual mode) treats the command
// as a silent no-op and publishes nothing, so the pending result never
// settles. Bound the wait with the context passed to Wait.
func (c *Coordinator) Upload(id string, extra map[string]any, opts ...CallOption) *Pending {
	s := c.subscriber(opts)
	p := newPending()

	var (
		mu      sync.Mutex
		subs    []func()
		settled bool
	)
	settle := func(body any, err error) {
		mu.Lock()
		if settled {
			mu.Unlock()
			return
		}
		settled = true
		us := subs
		mu.Unlock()

		for _, u := range us {
			u()
		}
		p.settle(body, err)
	}

	onSuccess := s.Subscribe(notify.Key{Kind: notify.KindSuccess, ID: id}, func(ev notify.Event) {
		settle(ev.Payload, nil)
	})
	onError := s.Subscribe(notify.Key{Kind: notify.KindError, ID: id}, func(ev notify.Event) {
		resp, _ := ev.Payload.(*Response)
		settle(nil, &UploadError{ID: id, Response: resp})
	})

	mu.Lock()
	subs = []func(){onSuccess, onError}
	done := settled
	mu.Unlock()
	if done {
		onSuccess()
		onError()
	}

	s.Publish(notify.Key{Kind: notify.KindUpload, ID: id}, extra)
	return p
}

// ListenToDrop calls fn for every drop on widget id.
func (c *Coordinator) ListenToDrop(id string, fn func(Drop), opts ...CallOption) func() {
	return c.subscriber(opts).Subscribe(notify.Key{Kind: notify.KindDropped, ID: id}, func(ev notify.Event) {
		d, _ := ev.Payload.(Drop)
		fn(d)
	})
}

// ListenToManual calls fn whenever widget id switches to manual mode.
func (c *Coordinator) ListenToManual(id string, fn func(), opts ...CallOption) func() {
	return c.subscriber(opts).Subscribe(notify.Key{Kind: notify.KindManual, ID: id}, func(notify.Event) {
		fn()
	})
}

// ListenToBusy calls fn whenever widget id enters or leaves the busy state.
func (c *Coordinator) ListenToBusy(id string, fn func(bool), opts ...CallOption) func() {
	return c.subscriber(opts).Subscribe(notify.Key{Kind: notify.KindBusy, ID: id}, func(ev notify.Event) {
		on, _ := ev.Payload.(bool)
		fn(on)
	})
}

// For binds the coordinator to one widget id.
func (c *Coordinator) For(id string) *Handle {
	return &Handle{c: c, id: id}
}

// Handle is a Coordinator bound to one widget id.
type Handle struct {
	c  *Coordinator
	id string
}

// ID returns the bound widget id.
func (h *Handle) ID() string { return h.id }

// Upload is Coordinator.Upload for the bound id.
func (h *Handle) Upload(extra map[string]any, opts ...CallOption) *Pending {
	return h.c.Upload(h.id, extra, opts...)
}

// ListenToDrop is Coordinator.ListenToDrop for the bound id.
func (h *Handle) ListenToDrop(fn func(Drop), opts ...CallOption) func() {
	return h.c.ListenToDrop(h.id, fn, opts...)
}

// ListenToManual is Coordinator.ListenToManual for the bound id.
func (h *Handle) ListenToManual(fn func(), opts ...CallOption) func() {
	return h.c.ListenToManual(h.id, fn, opts...)
}

// ListenToBusy is Coordinator.ListenToBusy for the bound id.
func (h *Handle) ListenToBusy(fn func(bool), opts ...CallOption) func() {
	return h.c.ListenToBusy(h.id, fn, opts...)
}
