// Package messages is the status-message catalog. Every error crossing
// an RPC boundary is rendered from this closed set of kinds.
package messages

import (
	"regexp"
	"strings"

	_ "embed"

	toml "github.com/pelletier/go-toml/v2"
)

// Kind keys of the catalog.
const (
	KeyInvalidRequest        = "INVALID_REQUEST"
	KeyInvalidToken          = "INVALID_TOKEN"
	KeyJobNotFound           = "JOB_NOT_FOUND"
	KeyInvalidJobState       = "INVALID_JOB_STATE"
	KeyResourceLimitExceeded = "RESOURCE_LIMIT_EXCEEDED"
	KeyServerUnavailable     = "SERVER_UNAVAILABLE"
	KeyInternalError         = "INTERNAL_ERROR"
	KeyCriticalError         = "CRITICAL_ERROR"
)

//go:embed errors.toml
var rawCatalog []byte

type entry struct {
	Code    string `toml:"code"`
	Message string `toml:"message"`
}

var catalog = loadCatalog()

func loadCatalog() map[string]entry {
	var m map[string]entry
	if err := toml.Unmarshal(rawCatalog, &m); err != nil {
		// The catalog is embedded at build time; a parse failure is a
		// programming error.
		panic("messages: invalid embedded errors.toml: " + err.Error())
	}
	return m
}

// StatusMessage is a status code with its formatted message.
type StatusMessage struct {
	Code    string
	Message string
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Unknown is returned for any key or parameter the catalog does not
// know about.
var Unknown = StatusMessage{Code: "UNKNOWN", Message: "An unknown error occurred."}

// Get renders the status message for a kind key. Params fill the named
// placeholders of the message template. An unknown key, or a template
// placeholder with no matching param, yields Unknown.
func Get(key string, params map[string]string) StatusMessage {
	e, ok := catalog[key]
	if !ok {
		return Unknown
	}

	missing := false
	message := placeholderPattern.ReplaceAllStringFunc(e.Message, func(ph string) string {
		name := strings.Trim(ph, "{}")
		v, ok := params[name]
		if !ok {
			missing = true
			return ph
		}
		return v
	})
	if missing {
		return Unknown
	}

	return StatusMessage{Code: e.Code, Message: message}
}

// GetPlain renders a kind whose template has no placeholders.
func GetPlain(key string) StatusMessage {
	return Get(key, nil)
}

// WithReason renders a kind whose template takes a {reason} placeholder.
func WithReason(key, reason string) StatusMessage {
	return Get(key, map[string]string{"reason": reason})
}

// ForJob renders a kind whose template takes a {job_id} placeholder.
func ForJob(key, jobID string) StatusMessage {
	return Get(key, map[string]string{"job_id": jobID})
}
