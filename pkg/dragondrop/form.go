package dragondrop

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// FormField is the multipart field the manual form posts files under.
const FormField = "file"

// Form is the widget's manual fallback form.
type Form interface {
	// Submit posts the form and returns the server's response.
	Submit(ctx context.Context) (*Response, error)
}

// FormFunc adapts a function to Form.
type FormFunc func(ctx context.Context) (*Response, error)

// Submit calls f.
func (f FormFunc) Submit(ctx context.Context) (*Response, error) {
	return f(ctx)
}

// MultipartForm posts the files picked in a FileInput as
// multipart/form-data, the way a browser submits an enctype="multipart/form-data"
// form.
type MultipartForm struct {
	Action string
	Input  *FileInput

	// Client is the HTTP client. Default: http.DefaultClient.
	Client *http.Client
}

// Submit posts every picked file under FormField.
func (f *MultipartForm) Submit(ctx context.Context) (*Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, file := range f.Input.Files() {
		if err := writePart(mw, file); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Action, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	return do(client, req)
}

func writePart(mw *multipart.Writer, file File) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, file.Name()))
	h.Set("Content-Type", transportType(file.Type()))

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(part, rc)
	return err
}
