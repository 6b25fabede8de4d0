package dragondrop

import (
	"sync"

	"github.com/dragondrop-dev/dragondrop/pkg/notify"
)

// FileInput is the widget's fallback <input type="file">. Picking files
// raises manualchange on its bus; the files themselves are only read by the
// manual form on submission.
type FileInput struct {
	bus notify.Subscriber

	mu    sync.Mutex
	files []File
}

// NewFileInput creates a file input that signals on bus.
func NewFileInput(bus notify.Subscriber) *FileInput {
	return &FileInput{bus: bus}
}

// Change records the picked files and raises manualchange. The payload is
// true when at least one file was picked.
func (in *FileInput) Change(files ...File) {
	in.mu.Lock()
	in.files = append([]File(nil), files...)
	in.mu.Unlock()

	in.bus.Publish(notify.Key{Kind: notify.KindManualChange}, len(files) > 0)
}

// Files returns the currently picked files.
func (in *FileInput) Files() []File {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]File(nil), in.files...)
}
