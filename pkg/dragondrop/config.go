package dragondrop

import (
	"net/http"
	"strings"

	"github.com/dragondrop-dev/dragondrop/internal/errors"
)

// Default presentation classes.
const (
	DefaultOnClass   = "dragon"
	DefaultBusyClass = "busy"
)

// Config is the widget's host configuration.
type Config struct {
	// ID namespaces every notification the widget publishes. Required.
	ID string

	// Accepts lists accepted MIME types. Empty accepts everything.
	Accepts []string

	// Multiple uploads every staged file instead of only the first.
	Multiple bool

	// URL receives uploads. Required.
	URL string

	// ManualURL receives the manual fallback form. Required.
	ManualURL string

	// Method is the upload HTTP method. Default: POST.
	Method string

	// OnClass marks the drop area while a drag hovers it. Default: "dragon".
	OnClass string

	// BusyClass marks the widget while an upload is in flight. Default: "busy".
	BusyClass string
}

func (c Config) withDefaults() Config {
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	c.Method = strings.ToUpper(c.Method)
	if c.OnClass == "" {
		c.OnClass = DefaultOnClass
	}
	if c.BusyClass == "" {
		c.BusyClass = DefaultBusyClass
	}
	return c
}

// Validate reports the first missing or invalid setting.
func (c Config) Validate() error {
	if c.ID == "" {
		return errors.New("D001").
			WithSuggestion("Give the widget an id, e.g. Config{ID: \"avatar\"}")
	}
	if c.URL == "" {
		return errors.New("D002").
			WithSuggestion("Set URL to the endpoint that receives uploads")
	}
	if c.ManualURL == "" {
		return errors.New("D003").
			WithSuggestion("Set ManualURL to the endpoint that receives the fallback form")
	}
	switch strings.ToUpper(c.Method) {
	case "", http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return errors.New("D004").
			WithSuggestion("Use POST, PUT or PATCH instead of " + c.Method)
	}
	return nil
}
