// Package errors provides structured, actionable error messages for
// DragonDrop.
//
// Every error carries a code from the registry, a category, a short message,
// and optionally a longer detail, a fix suggestion, and the location in a
// configuration file it came from.
//
// # Error Categories
//
//   - widget: widget construction errors (missing id or URLs, bad method)
//   - config: dragondrop.json loading and validation
//   - upload: upload command failures surfaced by the CLI
//   - storage: upload store setup
//   - cli: command-line usage errors
//
// # Usage
//
//	err := errors.New("D002").
//	    WithSuggestion(`Set "url" to the endpoint that receives uploads`)
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR D002: Upload URL is required
//	//
//	//   The widget posts dropped files to this URL. It cannot be created without one.
//	//
//	//   Hint: Set "url" to the endpoint that receives uploads
package errors
