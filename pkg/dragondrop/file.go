package dragondrop

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vincent-petithory/dataurl"
)

// File is a file handle taken from a drop or a file input.
type File interface {
	// Name is the base file name.
	Name() string

	// Type is the declared MIME type, possibly empty.
	Type() string

	// Size is the size in bytes.
	Size() int64

	// Open returns the file contents.
	Open() (io.ReadCloser, error)
}

// MemFile is a File held in memory.
type MemFile struct {
	name string
	typ  string
	data []byte
}

// NewMemFile creates an in-memory file.
func NewMemFile(name, contentType string, data []byte) *MemFile {
	return &MemFile{name: name, typ: contentType, data: data}
}

func (f *MemFile) Name() string { return f.name }
func (f *MemFile) Type() string { return f.typ }
func (f *MemFile) Size() int64  { return int64(len(f.data)) }

func (f *MemFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// OSFile is a File on the local filesystem.
type OSFile struct {
	path string
	typ  string
	size int64
}

// OpenFile stats path and determines its MIME type the way a browser would:
// from the extension first, then by sniffing the content.
func OpenFile(path string) (*OSFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("dragondrop: %s is a directory", path)
	}

	typ := mime.TypeByExtension(filepath.Ext(path))
	if typ == "" {
		typ, err = sniffType(path)
		if err != nil {
			return nil, err
		}
	}

	return &OSFile{path: path, typ: baseType(typ), size: info.Size()}, nil
}

func sniffType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	return http.DetectContentType(head[:n]), nil
}

func (f *OSFile) Name() string { return filepath.Base(f.path) }
func (f *OSFile) Type() string { return f.typ }
func (f *OSFile) Size() int64  { return f.size }
func (f *OSFile) Path() string { return f.path }

func (f *OSFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// baseType strips parameters: "text/plain; charset=utf-8" becomes "text/plain".
func baseType(t string) string {
	if t == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(t)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(t, ";", 2)[0])
	}
	return mt
}

// transportType is the media type used in the data URL. Files without a
// usable declared type are sent as application/octet-stream.
func transportType(t string) string {
	mt := baseType(t)
	parts := strings.Split(mt, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "application/octet-stream"
	}
	return mt
}

// ReadDataURL reads f fully and encodes it as a base64 data URL.
func ReadDataURL(f File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return dataurl.New(data, transportType(f.Type())).String(), nil
}

// Accepted reports whether every file's declared type is in accepts.
// With no accepts every drop is valid, and so is a drop with no files.
func Accepted(files []File, accepts []string) bool {
	if len(accepts) == 0 {
		return true
	}
	for _, f := range files {
		if !slices.Contains(accepts, f.Type()) {
			return false
		}
	}
	return true
}
