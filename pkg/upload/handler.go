package upload

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/vincent-petithory/dataurl"
)

// FileField is the name of the field that carries the file, in both the
// multipart form and the JSON body.
const FileField = "file"

// Result is the JSON response of both handlers.
type Result struct {
	TempID      string `json:"temp_id"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`

	// Fields echoes the non-file fields of a JSON upload.
	Fields map[string]any `json:"fields,omitempty"`
}

// FormHandler returns an http.Handler for multipart uploads, the target of
// the widget's manual fallback form.
// Mount this on your router: r.Post("/upload/manual", upload.FormHandler(store, nil))
//
// The handler expects a multipart form with a "file" field.
func FormHandler(store Store, config *Config) http.Handler {
	if config == nil {
		config = DefaultConfig()
	}
	maxSize := config.maxSize()
	logger := config.logger().With("handler", "form")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Limit the body before parsing; multipart framing counts against it.
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			if bodyTooLarge(err) {
				http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile(FileField)
		if err != nil {
			http.Error(w, "No file provided", http.StatusBadRequest)
			return
		}
		defer file.Close()

		// Sniff the content; the part's Content-Type header is not trusted.
		head := make([]byte, 512)
		n, err := io.ReadFull(file, head)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			http.Error(w, "Failed to read file", http.StatusBadRequest)
			return
		}
		head = head[:n]
		contentType := detectType(head)

		if err := config.check(header.Filename, contentType); err != nil {
			logger.Debug("upload rejected", "filename", header.Filename, "type", contentType)
			http.Error(w, "File type not allowed", http.StatusUnsupportedMediaType)
			return
		}

		body := io.MultiReader(bytes.NewReader(head), file)
		tempID, err := store.Save(r.Context(), header.Filename, contentType, header.Size, body)
		if err != nil {
			writeStoreError(w, logger, err)
			return
		}

		writeResult(w, Result{
			TempID:      tempID,
			Filename:    header.Filename,
			ContentType: contentType,
			Size:        header.Size,
		})
	})
}

// DataURLHandler returns an http.Handler for the widget's JSON uploads: a
// JSON object whose "file" field is a data URL. Every other field is
// echoed back in Result.Fields.
//
//	{"note": "x", "file": "data:text/plain;base64,aGVsbG8="}
func DataURLHandler(store Store, config *Config) http.Handler {
	if config == nil {
		config = DefaultConfig()
	}
	maxSize := config.maxSize()
	// base64 inflates by 4/3; leave room for the other fields.
	maxBody := maxSize/3*4 + 64<<10
	logger := config.logger().With("handler", "dataurl")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			if bodyTooLarge(err) {
				http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}

		raw, ok := fields[FileField].(string)
		if !ok || raw == "" {
			http.Error(w, "No file provided", http.StatusBadRequest)
			return
		}
		delete(fields, FileField)

		du, err := dataurl.DecodeString(raw)
		if err != nil {
			http.Error(w, "Invalid data URL", http.StatusBadRequest)
			return
		}
		size := int64(len(du.Data))
		if size > maxSize {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}

		filename, _ := fields["filename"].(string)
		contentType := detectType(du.Data)
		if err := config.check(filename, contentType); err != nil {
			logger.Debug("upload rejected", "declared", du.ContentType(), "type", contentType)
			http.Error(w, "File type not allowed", http.StatusUnsupportedMediaType)
			return
		}

		tempID, err := store.Save(r.Context(), filename, contentType, size, bytes.NewReader(du.Data))
		if err != nil {
			writeStoreError(w, logger, err)
			return
		}

		if len(fields) == 0 {
			fields = nil
		}
		writeResult(w, Result{
			TempID:      tempID,
			Filename:    filename,
			ContentType: contentType,
			Size:        size,
			Fields:      fields,
		})
	})
}

// bodyTooLarge reports whether err came from http.MaxBytesReader. Some
// readers flatten the error to text, so the message is matched too.
func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// check applies the type and extension rules. An empty filename skips the
// extension rules.
func (c *Config) check(filename, contentType string) error {
	if len(c.AllowedTypes) > 0 && !containsFold(c.AllowedTypes, contentType) {
		return ErrTypeNotAllowed
	}
	if filename == "" {
		return nil
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if len(c.AllowedExtensions) > 0 && !containsFold(c.AllowedExtensions, ext) {
		return ErrTypeNotAllowed
	}
	if c.RequireExtensionMatch {
		exts, _ := mime.ExtensionsByType(contentType)
		if !containsFold(exts, ext) {
			return ErrTypeNotAllowed
		}
	}
	return nil
}

// detectType returns the base MIME type of data, lowercased.
func detectType(data []byte) string {
	return normalizeType(http.DetectContentType(data))
}

func normalizeType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(t, ";", 2)[0]))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(normalizeType(v), s) {
			return true
		}
	}
	return false
}

func writeStoreError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrTooLarge):
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrTypeNotAllowed):
		http.Error(w, "File type not allowed", http.StatusUnsupportedMediaType)
	default:
		logger.Error("upload store failed", "error", err)
		http.Error(w, "Upload failed", http.StatusInternalServerError)
	}
}

func writeResult(w http.ResponseWriter, res Result) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
