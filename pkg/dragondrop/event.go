package dragondrop

// DropEffectMove is the drop effect set on dragover.
const DropEffectMove = "move"

// DragEvent is a dragenter, dragover, dragleave or drop event on the drop
// area.
type DragEvent struct {
	// Files are the dropped files. Only set on drop.
	Files []File

	// DropEffect is the effect the handler asks the browser to show.
	DropEffect string

	defaultPrevented bool
}

// PreventDefault stops the browser's default handling (navigating to the
// dropped file).
func (e *DragEvent) PreventDefault() {
	e.defaultPrevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *DragEvent) DefaultPrevented() bool {
	return e.defaultPrevented
}

// Drop is the payload of a dropped notification.
type Drop struct {
	// Files are the dropped files in drop order.
	Files []File

	// Valid is advisory: every file matched the accepted types.
	Valid bool
}

// State is a snapshot of the widget's presentational state.
type State struct {
	ID     string
	Hover  bool
	Busy   bool
	Manual bool
	Staged []File

	// AreaClasses are the classes of the drop area.
	AreaClasses []string

	// FormClasses are the classes of the widget's form element.
	FormClasses []string

	// ManualVisible reports whether the manual file input is shown.
	ManualVisible bool
}
