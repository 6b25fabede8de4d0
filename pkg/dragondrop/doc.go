// Package dragondrop implements a drop-and-upload widget and the
// coordinator that drives it from the outside.
//
// A Widget owns one drop target and one fallback file input. Drag and file
// input events are delivered to it as Go values (the way a server-driven UI
// delivers DOM events), it validates and stages dropped files, and it uploads
// them when told to. Everything it has to say goes out on a notify bus under
// its instance id:
//
//	dropped:<id>   Drop{Files, Valid}   files were dropped
//	busy:<id>      bool                 busy state changed
//	success:<id>   response body        upload succeeded
//	error:<id>     *Response or nil     upload failed
//	manual:<id>    nil                  switched to manual mode
//
// and it listens for:
//
//	upload:<id>    map[string]any       start the upload (or submit the manual form)
//	manualchange   bool                 its file input picked a file
//
// # Usage
//
//	bus := notify.New()
//	w, err := dragondrop.New(dragondrop.Config{
//	    ID:        "avatar",
//	    Accepts:   []string{"image/png", "image/jpeg"},
//	    URL:       "https://example.com/upload",
//	    ManualURL: "https://example.com/upload/manual",
//	}, dragondrop.WithBus(bus))
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	c := dragondrop.NewCoordinator(bus)
//	c.ListenToDrop("avatar", func(d dragondrop.Drop) {
//	    if !d.Valid {
//	        return
//	    }
//	    body, err := c.Upload("avatar", map[string]any{"user": "42"}).Wait(ctx)
//	    // ...
//	})
//
// Uploads are never started by a drop alone; someone has to publish the
// upload command, directly or through the Coordinator.
package dragondrop
