package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Widget Errors (D001-D009)
	// ============================================

	"D001": {
		Category: CategoryWidget,
		Message:  "Widget id is required",
		Detail:   "Every notification a widget publishes is namespaced by its id. A widget cannot be created without one.",
	},
	"D002": {
		Category: CategoryWidget,
		Message:  "Upload URL is required",
		Detail:   "The widget posts dropped files to this URL. It cannot be created without one.",
	},
	"D003": {
		Category: CategoryWidget,
		Message:  "Manual URL is required",
		Detail:   "The manual fallback form submits picked files to this URL. It cannot be created without one.",
	},
	"D004": {
		Category: CategoryWidget,
		Message:  "Unsupported HTTP method",
		Detail:   "Uploads are sent with POST, PUT or PATCH.",
	},

	// ============================================
	// Config Errors (D010-D019)
	// ============================================

	"D010": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No dragondrop.json was found. Run `dragondrop init` to create one.",
	},
	"D011": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "dragondrop.json could not be parsed. Check the JSON syntax.",
	},
	"D012": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "Port must be between 0 and 65535.",
	},
	"D013": {
		Category: CategoryConfig,
		Message:  "Unknown storage driver",
		Detail:   `storage.driver must be "disk" or "s3".`,
	},
	"D014": {
		Category: CategoryConfig,
		Message:  "S3 bucket is required",
		Detail:   `storage.bucket must be set when storage.driver is "s3".`,
	},
	"D015": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   `Durations are written like "30s", "5m" or "1h".`,
	},
	"D016": {
		Category: CategoryConfig,
		Message:  "Config file not writable",
		Detail:   "dragondrop.json could not be written.",
	},

	// ============================================
	// Upload Errors (D020-D029)
	// ============================================

	"D020": {
		Category: CategoryUpload,
		Message:  "Drop rejected",
		Detail:   "At least one file does not match the accepted MIME types.",
	},
	"D021": {
		Category: CategoryUpload,
		Message:  "Upload failed",
		Detail:   "The upload endpoint answered with an error or could not be reached.",
	},
	"D022": {
		Category: CategoryUpload,
		Message:  "Upload timed out",
		Detail:   "No success or error notification arrived before the deadline.",
	},

	// ============================================
	// Storage Errors (D030-D039)
	// ============================================

	"D030": {
		Category: CategoryStorage,
		Message:  "Storage unavailable",
		Detail:   "The upload store could not be initialized.",
	},

	// ============================================
	// CLI Errors (D040-D049)
	// ============================================

	"D040": {
		Category: CategoryCLI,
		Message:  "No files given",
		Detail:   "Pass at least one file path to upload.",
	},
	"D041": {
		Category: CategoryCLI,
		Message:  "File not readable",
		Detail:   "A file passed on the command line could not be opened.",
	},
	"D042": {
		Category: CategoryCLI,
		Message:  "Config already exists",
		Detail:   "dragondrop.json already exists in this directory. Use --force to overwrite it.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
