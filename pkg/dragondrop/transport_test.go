package dragondrop_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dragondrop-dev/dragondrop/pkg/dragondrop"
	"github.com/dragondrop-dev/dragondrop/pkg/notify"
)

func TestHTTPTransport_Send(t *testing.T) {
	type captured struct {
		header http.Header
		body   map[string]any
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c captured
		c.header = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&c.body)
		got <- c
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	tr := &dragondrop.HTTPTransport{Header: http.Header{"X-Token": {"t"}}}
	resp, err := tr.Send(context.Background(), &dragondrop.Request{
		Method: http.MethodPut,
		URL:    srv.URL,
		Body:   map[string]any{"file": "data:,x"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.OK() || resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !reflect.DeepEqual(resp.Body, map[string]any{"id": "abc"}) {
		t.Errorf("body = %v", resp.Body)
	}
	c := <-got
	if c.body["file"] != "data:,x" {
		t.Errorf("sent body = %v", c.body)
	}
	if c.header.Get("Content-Type") != "application/json" || c.header.Get("X-Token") != "t" {
		t.Errorf("headers = %v", c.header)
	}
}

func TestHTTPTransport_ResponseBodies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   any
		ok     bool
	}{
		{"json", http.StatusOK, `[1,2]`, []any{float64(1), float64(2)}, true},
		{"text", http.StatusOK, "stored", "stored", true},
		{"empty", http.StatusNoContent, "", nil, true},
		{"error text", http.StatusBadRequest, "bad file", "bad file", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			resp, err := (&dragondrop.HTTPTransport{}).Send(context.Background(), &dragondrop.Request{
				Method: http.MethodPost,
				URL:    srv.URL,
			})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if resp.OK() != tt.ok {
				t.Errorf("OK = %v, want %v", resp.OK(), tt.ok)
			}
			if !reflect.DeepEqual(resp.Body, tt.want) {
				t.Errorf("body = %#v, want %#v", resp.Body, tt.want)
			}
		})
	}
}

func TestHTTPTransport_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := (&dragondrop.HTTPTransport{}).Send(context.Background(), &dragondrop.Request{
		Method: http.MethodPost,
		URL:    url,
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestMultipartForm_Submit(t *testing.T) {
	type part struct{ name, typ, data string }
	got := make(chan part, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile(dragondrop.FormField)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		got <- part{hdr.Filename, hdr.Header.Get("Content-Type"), string(data)}
		w.Write([]byte(`{"saved":true}`))
	}))
	defer srv.Close()

	in := dragondrop.NewFileInput(notify.New())
	in.Change(dragondrop.NewMemFile("cv.pdf", "application/pdf", []byte("%PDF-1.4")))

	form := &dragondrop.MultipartForm{Action: srv.URL, Input: in}
	resp, err := form.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, resp.Body)
	}
	if p := <-got; p.name != "cv.pdf" || p.typ != "application/pdf" || p.data != "%PDF-1.4" {
		t.Errorf("part = %s %s %q", p.name, p.typ, p.data)
	}
}

func TestWidget_DefaultFormPostsToManualURL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/manual" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := notify.New()
	rec := record(bus)
	w := newWidget(t, dragondrop.Config{ID: "f", URL: srv.URL + "/upload", ManualURL: srv.URL + "/manual"}, bus)

	w.Input().Change(dragondrop.NewMemFile("a.txt", "text/plain", []byte("a")))
	upload(bus, "f", nil)
	w.Wait()

	if n := hits.Load(); n != 1 {
		t.Errorf("manual hits = %d, want 1", n)
	}
	if len(rec.of(notify.KindSuccess)) != 1 {
		t.Errorf("trace = %v", rec.trace())
	}
}

func TestHTTPTransport_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("traceparent")
	}))
	defer srv.Close()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	tr := &dragondrop.HTTPTransport{}
	if _, err := tr.Send(ctx, &dragondrop.Request{Method: http.MethodPost, URL: srv.URL}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if h := <-got; h != want {
		t.Errorf("traceparent = %q, want %q", h, want)
	}
}
