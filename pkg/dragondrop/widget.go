package dragondrop

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/dragondrop-dev/dragondrop/pkg/notify"
)

// Class names of the widget's own elements.
const (
	AreaClass = "area"
	FormClass = "dragondrop"
)

// Option configures a Widget.
type Option func(*options)

type options struct {
	bus       notify.Subscriber
	transport Transport
	form      Form
	logger    *slog.Logger
	ctx       context.Context
	client    *http.Client
}

// WithBus sets the bus the widget publishes on and listens for upload
// commands on. Default: notify.Default().
func WithBus(bus notify.Subscriber) Option {
	return func(o *options) { o.bus = bus }
}

// WithTransport replaces the HTTP transport used for drop uploads.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithForm replaces the manual fallback form.
func WithForm(f Form) Option {
	return func(o *options) { o.form = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithContext sets the parent context of every request the widget makes.
// Close cancels a context derived from it.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithHTTPClient sets the client used by the default transport and form.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// Widget is a drop area with a manual file input fallback. Files dropped on
// it are staged and announced with a dropped notification; an upload command
// on the bus sends them to Config.URL.
type Widget struct {
	cfg       Config
	bus       notify.Subscriber
	input     *FileInput
	transport Transport
	form      Form
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	hover  bool
	busy   bool
	manual bool
	staged []File
	closed bool
	unsubs []func()

	inflight sync.WaitGroup
}

// New validates cfg and attaches a widget to the bus.
// Nothing is subscribed when cfg is invalid.
func New(cfg Config, opts ...Option) (*Widget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	o := options{
		ctx:    context.Background(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = notify.Default()
	}

	ctx, cancel := context.WithCancel(o.ctx)
	w := &Widget{
		cfg:    cfg,
		bus:    o.bus,
		logger: o.logger.With("component", "dragondrop", "widget", cfg.ID),
		ctx:    ctx,
		cancel: cancel,
	}

	// manualchange is un-namespaced, so each widget's file input gets a
	// bus of its own.
	local := notify.New()
	w.input = NewFileInput(local)

	w.transport = o.transport
	if w.transport == nil {
		w.transport = &HTTPTransport{Client: o.client}
	}
	w.form = o.form
	if w.form == nil {
		w.form = &MultipartForm{Action: cfg.ManualURL, Input: w.input, Client: o.client}
	}

	w.unsubs = []func(){
		w.bus.Subscribe(w.key(notify.KindUpload), w.onUpload),
		local.Subscribe(notify.Key{Kind: notify.KindManualChange}, func(ev notify.Event) {
			picked, _ := ev.Payload.(bool)
			w.ManualChange(picked)
		}),
	}

	w.logger.Debug("widget attached", "url", cfg.URL, "manual_url", cfg.ManualURL)
	return w, nil
}

// ID returns the widget id.
func (w *Widget) ID() string { return w.cfg.ID }

// Config returns the widget configuration with defaults applied.
func (w *Widget) Config() Config { return w.cfg }

// Input returns the manual file input.
func (w *Widget) Input() *FileInput { return w.input }

func (w *Widget) key(kind notify.Kind) notify.Key {
	return notify.Key{Kind: kind, ID: w.cfg.ID}
}

// =============================================================================
// Drag surface
// =============================================================================

// DragOver allows dropping on the area.
func (w *Widget) DragOver(ev *DragEvent) {
	if w.Busy() {
		return
	}
	ev.PreventDefault()
	ev.DropEffect = DropEffectMove
}

// DragEnter highlights the area.
func (w *Widget) DragEnter(ev *DragEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return
	}
	w.hover = true
}

// DragLeave removes the highlight.
func (w *Widget) DragLeave(ev *DragEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return
	}
	w.hover = false
}

// Drop removes the highlight and handles the dropped files.
func (w *Widget) Drop(ev *DragEvent) {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return
	}
	w.hover = false
	w.mu.Unlock()

	ev.PreventDefault()
	w.HandleDrop(ev.Files)
}

// HandleDrop stages files, replacing any earlier drop, and publishes one
// dropped notification. Validity is advisory; invalid files are staged too.
func (w *Widget) HandleDrop(files []File) {
	staged := append([]File(nil), files...)

	w.mu.Lock()
	w.staged = staged
	w.mu.Unlock()

	drop := Drop{
		Files: append([]File(nil), staged...),
		Valid: Accepted(staged, w.cfg.Accepts),
	}
	w.logger.Debug("files dropped", "count", len(drop.Files), "valid", drop.Valid)
	w.bus.Publish(w.key(notify.KindDropped), drop)
}

// ManualChange switches the widget to manual mode when picked is true and
// publishes a manual notification. The next upload command submits the
// manual form instead of the dropped files.
func (w *Widget) ManualChange(picked bool) {
	if !picked {
		return
	}
	w.mu.Lock()
	w.manual = true
	w.mu.Unlock()

	w.bus.Publish(w.key(notify.KindManual), nil)
}

// =============================================================================
// Upload
// =============================================================================

func (w *Widget) onUpload(ev notify.Event) {
	extra, _ := ev.Payload.(map[string]any)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if w.busy {
		w.mu.Unlock()
		w.logger.Debug("upload ignored while busy")
		return
	}

	if w.manual {
		w.busy = true
		w.inflight.Add(1)
		w.mu.Unlock()

		w.publishBusy(true)
		go w.submitManual()
		return
	}

	if len(w.staged) == 0 {
		w.mu.Unlock()
		return
	}
	files := w.staged
	if !w.cfg.Multiple {
		files = files[:1]
	}
	files = append([]File(nil), files...)
	w.busy = true
	w.inflight.Add(1)
	w.mu.Unlock()

	w.publishBusy(true)
	go w.upload(files, extra)
}

func (w *Widget) submitManual() {
	defer w.inflight.Done()

	resp, err := w.form.Submit(w.ctx)

	w.mu.Lock()
	w.manual = false
	w.mu.Unlock()

	switch {
	case err != nil:
		w.logger.Warn("manual form submission failed", "url", w.cfg.ManualURL, "error", err)
		w.finish(notify.KindError, nil)
	case !resp.OK():
		w.logger.Warn("manual form rejected", "url", w.cfg.ManualURL, "status", resp.StatusCode)
		w.finish(notify.KindError, resp)
	default:
		w.finish(notify.KindSuccess, resp.Body)
	}
}

func (w *Widget) upload(files []File, extra map[string]any) {
	defer w.inflight.Done()

	bodies := make([]any, 0, len(files))
	for _, f := range files {
		resp, err := w.send(f, extra)
		if err != nil {
			w.logger.Warn("upload failed", "file", f.Name(), "url", w.cfg.URL, "error", err)
			w.finish(notify.KindError, nil)
			return
		}
		if !resp.OK() {
			w.logger.Warn("upload rejected", "file", f.Name(), "url", w.cfg.URL, "status", resp.StatusCode)
			w.finish(notify.KindError, resp)
			return
		}
		bodies = append(bodies, resp.Body)
	}

	if w.cfg.Multiple {
		w.finish(notify.KindSuccess, bodies)
		return
	}
	w.finish(notify.KindSuccess, bodies[0])
}

func (w *Widget) send(f File, extra map[string]any) (*Response, error) {
	encoded, err := ReadDataURL(f)
	if err != nil {
		return nil, err
	}
	return w.transport.Send(w.ctx, &Request{
		Method: w.cfg.Method,
		URL:    w.cfg.URL,
		Body:   requestBody(extra, encoded),
	})
}

// requestBody copies extra and sets the file field. extra is not modified.
func requestBody(extra map[string]any, file string) map[string]any {
	body := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		body[k] = v
	}
	body["file"] = file
	return body
}

// finish leaves the busy state, publishes busy false and then the outcome.
// An outcome listener may start the next upload; its busy true then comes
// last.
func (w *Widget) finish(kind notify.Kind, payload any) {
	w.mu.Lock()
	w.busy = false
	w.mu.Unlock()

	w.publishBusy(false)
	w.bus.Publish(w.key(kind), payload)
}

func (w *Widget) publishBusy(on bool) {
	w.bus.Publish(w.key(notify.KindBusy), on)
}

// =============================================================================
// State
// =============================================================================

// Busy reports whether an upload or form submission is in flight.
func (w *Widget) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// Manual reports whether the widget is in manual mode.
func (w *Widget) Manual() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.manual
}

// Staged returns the files of the most recent drop.
func (w *Widget) Staged() []File {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]File(nil), w.staged...)
}

// Snapshot returns the widget's presentational state.
func (w *Widget) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	area := []string{AreaClass}
	if w.hover {
		area = append(area, w.cfg.OnClass)
	}
	form := []string{FormClass}
	if w.busy {
		form = append(form, w.cfg.BusyClass)
	}

	return State{
		ID:            w.cfg.ID,
		Hover:         w.hover,
		Busy:          w.busy,
		Manual:        w.manual,
		Staged:        append([]File(nil), w.staged...),
		AreaClasses:   area,
		FormClasses:   form,
		ManualVisible: !w.busy,
	}
}

// Wait blocks until the in-flight upload, if any, has finished and its
// notifications have been published.
func (w *Widget) Wait() {
	w.inflight.Wait()
}

// Close detaches the widget: it stops listening for commands and cancels an
// in-flight request. Close does not wait; call Wait for that.
func (w *Widget) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	unsubs := w.unsubs
	w.unsubs = nil
	w.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	w.cancel()
	w.logger.Debug("widget detached")
}
