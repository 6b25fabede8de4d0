package dragondrop_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	derrors "github.com/dragondrop-dev/dragondrop/internal/errors"
	"github.com/dragondrop-dev/dragondrop/pkg/dragondrop"
	"github.com/dragondrop-dev/dragondrop/pkg/notify"
)

// recorder captures every notification published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func record(bus *notify.Bus) *recorder {
	r := &recorder{}
	bus.Tap(func(ev notify.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

// trace renders events as "kind:id", with "=payload" for busy.
func (r *recorder) trace() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		s := ev.Key.String()
		if ev.Key.Kind == notify.KindBusy {
			s += fmt.Sprintf("=%v", ev.Payload)
		}
		out = append(out, s)
	}
	return out
}

func (r *recorder) of(kind notify.Kind) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events {
		if ev.Key.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// stubTransport answers every request with a fixed response. When gate is
// set, Send blocks until it is closed.
type stubTransport struct {
	status int
	body   any
	err    error
	gate   chan struct{}

	mu       sync.Mutex
	requests []*dragondrop.Request
	calls    atomic.Int32
}

func (s *stubTransport) Send(ctx context.Context, req *dragondrop.Request) (*dragondrop.Response, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	return &dragondrop.Response{StatusCode: status, Body: s.body}, nil
}

func testConfig(id string) dragondrop.Config {
	return dragondrop.Config{
		ID:        id,
		URL:       "http://upload.test/files",
		ManualURL: "http://upload.test/manual",
	}
}

func newWidget(t *testing.T, cfg dragondrop.Config, bus *notify.Bus, opts ...dragondrop.Option) *dragondrop.Widget {
	t.Helper()
	opts = append([]dragondrop.Option{dragondrop.WithBus(bus)}, opts...)
	w, err := dragondrop.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		w.Close()
		w.Wait()
	})
	return w
}

func png(name string) dragondrop.File {
	return dragondrop.NewMemFile(name, "image/png", []byte("\x89PNG"))
}

func upload(bus *notify.Bus, id string, extra map[string]any) {
	bus.Publish(notify.Key{Kind: notify.KindUpload, ID: id}, extra)
}

func TestNew_RequiresConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  dragondrop.Config
		code string
	}{
		{"missing id", dragondrop.Config{URL: "u", ManualURL: "m"}, "D001"},
		{"missing url", dragondrop.Config{ID: "a", ManualURL: "m"}, "D002"},
		{"missing manual url", dragondrop.Config{ID: "a", URL: "u"}, "D003"},
		{"bad method", dragondrop.Config{ID: "a", URL: "u", ManualURL: "m", Method: "DELETE"}, "D004"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := notify.New()
			w, err := dragondrop.New(tt.cfg, dragondrop.WithBus(bus))
			if err == nil {
				t.Fatal("expected error")
			}
			if w != nil {
				t.Fatal("expected nil widget")
			}
			if !derrors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want code %s", err, tt.code)
			}
			if n := bus.Count(notify.Key{Kind: notify.KindUpload, ID: tt.cfg.ID}); n != 0 {
				t.Fatalf("upload subscriptions = %d, want 0", n)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := testConfig("d")
	cfg.Method = "put"
	w := newWidget(t, cfg, notify.New())

	got := w.Config()
	if got.Method != http.MethodPut {
		t.Errorf("Method = %q, want PUT", got.Method)
	}
	if got.OnClass != "dragon" || got.BusyClass != "busy" {
		t.Errorf("classes = %q/%q, want dragon/busy", got.OnClass, got.BusyClass)
	}
}

func TestHandleDrop_Validity(t *testing.T) {
	pdf := dragondrop.NewMemFile("doc.pdf", "application/pdf", []byte("%PDF"))

	tests := []struct {
		name    string
		accepts []string
		files   []dragondrop.File
		want    bool
	}{
		{"accepted png", []string{"image/png"}, []dragondrop.File{png("a.png")}, true},
		{"png and pdf", []string{"image/png"}, []dragondrop.File{png("a.png"), pdf}, false},
		{"no accepts", nil, []dragondrop.File{pdf}, true},
		{"no files", []string{"image/png"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := notify.New()
			rec := record(bus)
			cfg := testConfig("v")
			cfg.Accepts = tt.accepts
			w := newWidget(t, cfg, bus)

			w.HandleDrop(tt.files)

			dropped := rec.of(notify.KindDropped)
			if len(dropped) != 1 {
				t.Fatalf("dropped notifications = %d, want 1", len(dropped))
			}
			d := dropped[0].Payload.(dragondrop.Drop)
			if d.Valid != tt.want {
				t.Errorf("Valid = %v, want %v", d.Valid, tt.want)
			}
			if len(d.Files) != len(tt.files) {
				t.Errorf("Files = %d, want %d", len(d.Files), len(tt.files))
			}
		})
	}
}

func TestDrop_PublishesExactlyOnce(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("%d files", n), func(t *testing.T) {
			bus := notify.New()
			rec := record(bus)
			w := newWidget(t, testConfig("once"), bus)

			files := make([]dragondrop.File, n)
			for i := range files {
				files[i] = png(fmt.Sprintf("%d.png", i))
			}
			ev := &dragondrop.DragEvent{Files: files}
			w.Drop(ev)

			if got := len(rec.of(notify.KindDropped)); got != 1 {
				t.Fatalf("dropped notifications = %d, want 1", got)
			}
			if !ev.DefaultPrevented() {
				t.Error("drop default not prevented")
			}
			if len(w.Staged()) != n {
				t.Errorf("staged = %d, want %d", len(w.Staged()), n)
			}
		})
	}
}

func TestDrop_ReplacesStaged(t *testing.T) {
	w := newWidget(t, testConfig("r"), notify.New())

	w.HandleDrop([]dragondrop.File{png("a.png"), png("b.png")})
	w.HandleDrop([]dragondrop.File{png("c.png")})

	staged := w.Staged()
	if len(staged) != 1 || staged[0].Name() != "c.png" {
		t.Fatalf("staged = %v, want [c.png]", staged)
	}
}

func TestDragSurface(t *testing.T) {
	w := newWidget(t, testConfig("drag"), notify.New())

	over := &dragondrop.DragEvent{}
	w.DragOver(over)
	if !over.DefaultPrevented() {
		t.Error("dragover default not prevented")
	}
	if over.DropEffect != dragondrop.DropEffectMove {
		t.Errorf("DropEffect = %q, want move", over.DropEffect)
	}

	w.DragEnter(&dragondrop.DragEvent{})
	if got := w.Snapshot().AreaClasses; !reflect.DeepEqual(got, []string{"area", "dragon"}) {
		t.Errorf("AreaClasses after enter = %v", got)
	}

	w.DragLeave(&dragondrop.DragEvent{})
	if got := w.Snapshot().AreaClasses; !reflect.DeepEqual(got, []string{"area"}) {
		t.Errorf("AreaClasses after leave = %v", got)
	}

	w.DragEnter(&dragondrop.DragEvent{})
	w.Drop(&dragondrop.DragEvent{})
	if w.Snapshot().Hover {
		t.Error("hover should clear on drop")
	}
}

func TestDragIgnoredWhileBusy(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{gate: make(chan struct{})}
	w := newWidget(t, testConfig("b"), bus, dragondrop.WithTransport(tr))

	w.HandleDrop([]dragondrop.File{png("a.png")})
	upload(bus, "b", nil)
	if !w.Busy() {
		t.Fatal("expected busy after upload command")
	}

	over := &dragondrop.DragEvent{}
	w.DragOver(over)
	if over.DefaultPrevented() || over.DropEffect != "" {
		t.Error("dragover handled while busy")
	}
	w.DragEnter(&dragondrop.DragEvent{})
	if w.Snapshot().Hover {
		t.Error("dragenter handled while busy")
	}
	drop := &dragondrop.DragEvent{Files: []dragondrop.File{png("b.png")}}
	w.Drop(drop)
	if drop.DefaultPrevented() {
		t.Error("drop handled while busy")
	}
	if got := len(rec.of(notify.KindDropped)); got != 1 {
		t.Errorf("dropped notifications = %d, want 1", got)
	}

	close(tr.gate)
	w.Wait()
}

func TestUpload_NoStagedFilesIsNoop(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{}
	w := newWidget(t, testConfig("empty"), bus, dragondrop.WithTransport(tr))

	upload(bus, "empty", nil)
	w.Wait()

	if got := len(rec.of(notify.KindBusy)); got != 0 {
		t.Errorf("busy notifications = %d, want 0", got)
	}
	if got := tr.calls.Load(); got != 0 {
		t.Errorf("transport calls = %d, want 0", got)
	}

	w.HandleDrop(nil)
	upload(bus, "empty", nil)
	w.Wait()
	if got := tr.calls.Load(); got != 0 {
		t.Errorf("transport calls after empty drop = %d, want 0", got)
	}
}

func TestUpload_SuccessOrder(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{body: map[string]any{"id": "1"}}
	w := newWidget(t, testConfig("ok"), bus, dragondrop.WithTransport(tr))

	w.HandleDrop([]dragondrop.File{png("a.png"), png("b.png")})
	upload(bus, "ok", nil)
	w.Wait()

	want := []string{"dropped:ok", "upload:ok", "busy:ok=true", "busy:ok=false", "success:ok"}
	if got := rec.trace(); !reflect.DeepEqual(got, want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	if got := tr.calls.Load(); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
	if got := rec.of(notify.KindSuccess)[0].Payload; !reflect.DeepEqual(got, map[string]any{"id": "1"}) {
		t.Errorf("success payload = %v", got)
	}
	if len(rec.of(notify.KindError)) != 0 {
		t.Error("error published alongside success")
	}
	if w.Busy() {
		t.Error("still busy after upload")
	}
	if len(w.Staged()) != 2 {
		t.Error("staged files should survive the upload")
	}
}

func TestUpload_RequestBody(t *testing.T) {
	bus := notify.New()
	tr := &stubTransport{}
	cfg := testConfig("body")
	cfg.Method = "PATCH"
	w := newWidget(t, cfg, bus, dragondrop.WithTransport(tr))

	extra := map[string]any{"note": "x"}
	w.HandleDrop([]dragondrop.File{dragondrop.NewMemFile("a.bin", "", []byte{1, 2, 3})})
	upload(bus, "body", extra)
	w.Wait()

	req := tr.requests[0]
	if req.Method != http.MethodPatch || req.URL != cfg.URL {
		t.Errorf("request = %s %s", req.Method, req.URL)
	}
	want := map[string]any{"note": "x", "file": "data:application/octet-stream;base64,AQID"}
	if !reflect.DeepEqual(req.Body, want) {
		t.Errorf("body = %v, want %v", req.Body, want)
	}
	if _, ok := extra["file"]; ok {
		t.Error("caller's extra map was modified")
	}

	upload(bus, "body", nil)
	w.Wait()
	if got := tr.requests[1].Body; len(got) != 1 || got["file"] == nil {
		t.Errorf("body without extra = %v", got)
	}
}

func TestUpload_ErrorStatus(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{status: http.StatusInternalServerError, body: "boom"}
	w := newWidget(t, testConfig("fail"), bus, dragondrop.WithTransport(tr))

	w.HandleDrop([]dragondrop.File{png("a.png")})
	upload(bus, "fail", nil)
	w.Wait()

	want := []string{"dropped:fail", "upload:fail", "busy:fail=true", "busy:fail=false", "error:fail"}
	if got := rec.trace(); !reflect.DeepEqual(got, want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	resp, ok := rec.of(notify.KindError)[0].Payload.(*dragondrop.Response)
	if !ok || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error payload = %#v", rec.of(notify.KindError)[0].Payload)
	}
}

func TestUpload_TransportFailure(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{err: errors.New("connection refused")}
	w := newWidget(t, testConfig("net"), bus, dragondrop.WithTransport(tr))

	w.HandleDrop([]dragondrop.File{png("a.png")})
	upload(bus, "net", nil)
	w.Wait()

	errs := rec.of(notify.KindError)
	if len(errs) != 1 {
		t.Fatalf("error notifications = %d, want 1", len(errs))
	}
	if errs[0].Payload != nil {
		t.Errorf("error payload = %v, want nil", errs[0].Payload)
	}
	if w.Busy() {
		t.Error("still busy after failure")
	}
}

func TestUpload_IgnoredWhileBusy(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{gate: make(chan struct{})}
	w := newWidget(t, testConfig("busy"), bus, dragondrop.WithTransport(tr))

	w.HandleDrop([]dragondrop.File{png("a.png")})
	upload(bus, "busy", nil)
	upload(bus, "busy", nil)
	close(tr.gate)
	w.Wait()

	if got := tr.calls.Load(); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
	if got := len(rec.of(notify.KindBusy)); got != 2 {
		t.Errorf("busy notifications = %d, want 2", got)
	}
}

func TestUpload_RetriggeredFromSuccessListener(t *testing.T) {
	bus := notify.New()
	rec := record(bus)

	gate := make(chan struct{})
	second := make(chan struct{})
	var calls atomic.Int32
	tr := dragondrop.TransportFunc(func(ctx context.Context, req *dragondrop.Request) (*dragondrop.Response, error) {
		if calls.Add(1) > 1 {
			close(second)
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &dragondrop.Response{StatusCode: http.StatusOK, Body: "ok"}, nil
	})
	w := newWidget(t, testConfig("again"), bus, dragondrop.WithTransport(tr))

	var once sync.Once
	bus.Subscribe(notify.Key{Kind: notify.KindSuccess, ID: "again"}, func(notify.Event) {
		once.Do(func() { upload(bus, "again", nil) })
	})

	w.HandleDrop([]dragondrop.File{png("a.png")})
	upload(bus, "again", nil)
	<-second

	busy := rec.of(notify.KindBusy)
	if last := busy[len(busy)-1].Payload; last != true || !w.Busy() {
		t.Fatalf("last busy = %v, widget busy = %v; trace = %v", last, w.Busy(), rec.trace())
	}

	close(gate)
	w.Wait()

	want := []string{
		"dropped:again", "upload:again", "busy:again=true", "busy:again=false", "success:again",
		"upload:again", "busy:again=true", "busy:again=false", "success:again",
	}
	if got := rec.trace(); !reflect.DeepEqual(got, want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	if w.Busy() {
		t.Error("still busy after both uploads")
	}
}

func TestUpload_Multiple(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{body: "stored"}
	cfg := testConfig("many")
	cfg.Multiple = true
	w := newWidget(t, cfg, bus, dragondrop.WithTransport(tr))

	w.HandleDrop([]dragondrop.File{png("a.png"), png("b.png"), png("c.png")})
	upload(bus, "many", map[string]any{"album": "x"})
	w.Wait()

	if got := tr.calls.Load(); got != 3 {
		t.Fatalf("transport calls = %d, want 3", got)
	}
	for i, req := range tr.requests {
		if req.Body["album"] != "x" {
			t.Errorf("request %d missing extra field", i)
		}
	}
	success := rec.of(notify.KindSuccess)
	if len(success) != 1 {
		t.Fatalf("success notifications = %d, want 1", len(success))
	}
	if got := success[0].Payload; !reflect.DeepEqual(got, []any{"stored", "stored", "stored"}) {
		t.Errorf("success payload = %v", got)
	}
}

func TestUpload_MultipleStopsOnFailure(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{status: http.StatusBadRequest}
	cfg := testConfig("many")
	cfg.Multiple = true
	w := newWidget(t, cfg, bus, dragondrop.WithTransport(tr))

	w.HandleDrop([]dragondrop.File{png("a.png"), png("b.png")})
	upload(bus, "many", nil)
	w.Wait()

	if got := tr.calls.Load(); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
	if len(rec.of(notify.KindError)) != 1 || len(rec.of(notify.KindSuccess)) != 0 {
		t.Errorf("trace = %v", rec.trace())
	}
}

func TestManualMode_SubmitsForm(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{}

	gate := make(chan struct{})
	var submits atomic.Int32
	form := dragondrop.FormFunc(func(ctx context.Context) (*dragondrop.Response, error) {
		submits.Add(1)
		<-gate
		return &dragondrop.Response{StatusCode: http.StatusOK, Body: "saved"}, nil
	})
	w := newWidget(t, testConfig("m"), bus, dragondrop.WithTransport(tr), dragondrop.WithForm(form))

	w.HandleDrop([]dragondrop.File{png("dropped.png")})
	w.Input().Change(png("picked.png"))

	if got := len(rec.of(notify.KindManual)); got != 1 {
		t.Fatalf("manual notifications = %d, want 1", got)
	}
	if !w.Manual() {
		t.Fatal("expected manual mode")
	}

	upload(bus, "m", nil)
	if !w.Busy() {
		t.Error("expected busy while the form is submitted")
	}
	if s := w.Snapshot(); s.ManualVisible || !reflect.DeepEqual(s.FormClasses, []string{"dragondrop", "busy"}) {
		t.Errorf("snapshot while busy = %+v", s)
	}
	close(gate)
	w.Wait()

	if got := submits.Load(); got != 1 {
		t.Errorf("form submissions = %d, want 1", got)
	}
	if got := tr.calls.Load(); got != 0 {
		t.Errorf("transport calls = %d, want 0", got)
	}
	want := []string{"dropped:m", "manual:m", "upload:m", "busy:m=true", "busy:m=false", "success:m"}
	if got := rec.trace(); !reflect.DeepEqual(got, want) {
		t.Errorf("trace = %v, want %v", got, want)
	}
	if w.Manual() {
		t.Error("manual mode should end with the submission")
	}
	if !w.Snapshot().ManualVisible {
		t.Error("manual input should be visible again")
	}
}

func TestManualChange_EmptyPickIgnored(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	w := newWidget(t, testConfig("m"), bus)

	w.Input().Change()

	if len(rec.of(notify.KindManual)) != 0 || w.Manual() {
		t.Error("an empty pick must not enter manual mode")
	}
}

func TestManualChange_NoCrossTalk(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	w1 := newWidget(t, testConfig("one"), bus)
	w2 := newWidget(t, testConfig("two"), bus)

	w1.Input().Change(png("a.png"))

	manual := rec.of(notify.KindManual)
	if len(manual) != 1 || manual[0].Key.ID != "one" {
		t.Fatalf("manual notifications = %v", manual)
	}
	if w2.Manual() {
		t.Error("second widget switched to manual mode")
	}
}

func TestWidgets_NamespacedByID(t *testing.T) {
	bus := notify.New()
	tr1 := &stubTransport{}
	tr2 := &stubTransport{}
	w1 := newWidget(t, testConfig("one"), bus, dragondrop.WithTransport(tr1))
	w2 := newWidget(t, testConfig("two"), bus, dragondrop.WithTransport(tr2))

	w1.HandleDrop([]dragondrop.File{png("a.png")})
	w2.HandleDrop([]dragondrop.File{png("b.png")})
	upload(bus, "two", nil)
	w1.Wait()
	w2.Wait()

	if tr1.calls.Load() != 0 || tr2.calls.Load() != 1 {
		t.Errorf("calls = %d/%d, want 0/1", tr1.calls.Load(), tr2.calls.Load())
	}
}

func TestClose_StopsListening(t *testing.T) {
	bus := notify.New()
	tr := &stubTransport{}
	w := newWidget(t, testConfig("c"), bus, dragondrop.WithTransport(tr))

	w.HandleDrop([]dragondrop.File{png("a.png")})
	w.Close()
	upload(bus, "c", nil)
	w.Wait()

	if got := tr.calls.Load(); got != 0 {
		t.Errorf("transport calls = %d, want 0", got)
	}
	if n := bus.Count(notify.Key{Kind: notify.KindUpload, ID: "c"}); n != 0 {
		t.Errorf("upload subscriptions = %d, want 0", n)
	}
}

func TestClose_CancelsInflight(t *testing.T) {
	bus := notify.New()
	rec := record(bus)
	tr := &stubTransport{gate: make(chan struct{})}
	w := newWidget(t, testConfig("c"), bus, dragondrop.WithTransport(tr))

	w.HandleDrop([]dragondrop.File{png("a.png")})
	upload(bus, "c", nil)
	w.Close()
	w.Wait()

	if len(rec.of(notify.KindError)) != 1 {
		t.Errorf("trace = %v, want an error notification", rec.trace())
	}
	if w.Busy() {
		t.Error("still busy after cancel")
	}
}
