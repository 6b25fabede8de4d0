package upload_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dragondrop-dev/dragondrop/pkg/dragondrop"
	"github.com/dragondrop-dev/dragondrop/pkg/notify"
	"github.com/dragondrop-dev/dragondrop/pkg/upload"
)

type savedUpload struct {
	filename    string
	contentType string
	size        int64
	data        string
}

// recordingStore keeps every saved upload in memory. saveFn, when set,
// replaces the default behaviour.
type recordingStore struct {
	tempID string
	saveFn func(filename, contentType string, size int64, r io.Reader) (string, error)

	mu    sync.Mutex
	saves []savedUpload
}

func (s *recordingStore) Save(_ context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if s.saveFn != nil {
		return s.saveFn(filename, contentType, size, r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.saves = append(s.saves, savedUpload{filename, contentType, size, string(data)})
	s.mu.Unlock()
	if s.tempID == "" {
		return "temp123", nil
	}
	return s.tempID, nil
}

func (s *recordingStore) Claim(context.Context, string) (*upload.File, error) {
	return nil, upload.ErrNotFound
}

func (s *recordingStore) Cleanup(context.Context, time.Duration) error { return nil }

func (s *recordingStore) saved() []savedUpload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]savedUpload(nil), s.saves...)
}

// submitManual picks files in a widget file input and submits the manual
// form to h, the way the widget does in manual mode.
func submitManual(t *testing.T, h http.Handler, files ...dragondrop.File) *dragondrop.Response {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	input := dragondrop.NewFileInput(notify.New())
	input.Change(files...)
	form := &dragondrop.MultipartForm{Action: srv.URL + "/upload/manual", Input: input, Client: srv.Client()}

	resp, err := form.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return resp
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

func TestFormHandler_ManualFormSubmission(t *testing.T) {
	store := &recordingStore{tempID: "t-1"}
	h := upload.FormHandler(store, nil)

	resp := submitManual(t, h, dragondrop.NewMemFile("notes.txt", "text/plain", []byte("remember the milk")))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, resp.Body)
	}
	body, ok := resp.Body.(map[string]any)
	if !ok {
		t.Fatalf("body = %#v, want a JSON object", resp.Body)
	}
	if body["temp_id"] != "t-1" || body["filename"] != "notes.txt" || body["content_type"] != "text/plain" {
		t.Errorf("result = %v", body)
	}
	if body["size"] != float64(len("remember the milk")) {
		t.Errorf("size = %v", body["size"])
	}
	if _, echoed := body["fields"]; echoed {
		t.Error("a form upload has no fields to echo")
	}

	saves := store.saved()
	if len(saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(saves))
	}
	if got := saves[0]; got.data != "remember the milk" || got.filename != "notes.txt" || got.contentType != "text/plain" {
		t.Errorf("saved = %+v", got)
	}
}

func TestFormHandler_SavesFirstPickedFileOnly(t *testing.T) {
	store := &recordingStore{}
	h := upload.FormHandler(store, nil)

	resp := submitManual(t, h,
		dragondrop.NewMemFile("first.txt", "text/plain", []byte("one")),
		dragondrop.NewMemFile("second.txt", "text/plain", []byte("two")),
	)

	if !resp.OK() {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	saves := store.saved()
	if len(saves) != 1 || saves[0].filename != "first.txt" {
		t.Fatalf("saves = %+v, want first.txt only", saves)
	}
}

func TestFormHandler_TypeComesFromContent(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}
	cfg := &upload.Config{AllowedTypes: []string{"image/png"}}

	t.Run("declared png, content jpeg", func(t *testing.T) {
		store := &recordingStore{}
		resp := submitManual(t, upload.FormHandler(store, cfg), dragondrop.NewMemFile("photo.png", "image/png", jpeg))

		if resp.StatusCode != http.StatusUnsupportedMediaType {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnsupportedMediaType)
		}
		if len(store.saved()) != 0 {
			t.Error("rejected file was saved")
		}
	})

	t.Run("declared octet-stream, content png", func(t *testing.T) {
		store := &recordingStore{}
		resp := submitManual(t, upload.FormHandler(store, cfg), dragondrop.NewMemFile("photo.png", "", pngHeader))

		if !resp.OK() {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if saves := store.saved(); len(saves) != 1 || saves[0].contentType != "image/png" {
			t.Errorf("saves = %+v", saves)
		}
	})
}

func TestFormHandler_Status(t *testing.T) {
	png := dragondrop.NewMemFile("pic.png", "image/png", pngHeader)
	text := dragondrop.NewMemFile("a.txt", "text/plain", []byte("x"))

	tests := []struct {
		name   string
		file   dragondrop.File
		config *upload.Config
		saveFn func(string, string, int64, io.Reader) (string, error)
		want   int
	}{
		{
			name: "no file picked",
			want: http.StatusBadRequest,
		},
		{
			name:   "form larger than limit",
			file:   dragondrop.NewMemFile("big.txt", "text/plain", []byte(strings.Repeat("a", 256))),
			config: &upload.Config{MaxFileSize: 16},
			want:   http.StatusRequestEntityTooLarge,
		},
		{
			name:   "extension not allowed",
			file:   dragondrop.NewMemFile("pic.jpg", "image/png", pngHeader),
			config: &upload.Config{AllowedExtensions: []string{".png"}},
			want:   http.StatusUnsupportedMediaType,
		},
		{
			name:   "extension does not match content",
			file:   dragondrop.NewMemFile("pic.jpg", "image/png", pngHeader),
			config: &upload.Config{RequireExtensionMatch: true},
			want:   http.StatusUnsupportedMediaType,
		},
		{
			name:   "extension matches content",
			file:   png,
			config: &upload.Config{RequireExtensionMatch: true, AllowedTypes: []string{"IMAGE/PNG"}},
			want:   http.StatusOK,
		},
		{
			name:   "store too large",
			file:   text,
			saveFn: func(string, string, int64, io.Reader) (string, error) { return "", upload.ErrTooLarge },
			want:   http.StatusRequestEntityTooLarge,
		},
		{
			name:   "store type not allowed",
			file:   text,
			saveFn: func(string, string, int64, io.Reader) (string, error) { return "", upload.ErrTypeNotAllowed },
			want:   http.StatusUnsupportedMediaType,
		},
		{
			name:   "store failure",
			file:   text,
			saveFn: func(string, string, int64, io.Reader) (string, error) { return "", errors.New("disk full") },
			want:   http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := upload.FormHandler(&recordingStore{saveFn: tt.saveFn}, tt.config)

			var files []dragondrop.File
			if tt.file != nil {
				files = append(files, tt.file)
			}
			resp := submitManual(t, h, files...)

			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d; body=%v", resp.StatusCode, tt.want, resp.Body)
			}
		})
	}
}

func TestFormHandler_RejectsNonForms(t *testing.T) {
	h := upload.FormHandler(&recordingStore{}, nil)

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"json body", http.MethodPost, "application/json", http.StatusBadRequest},
		{"plain text body", http.MethodPost, "text/plain", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/upload/manual", strings.NewReader(`{"file":"x"}`))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
