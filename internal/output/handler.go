package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parnexcodes/ferry/internal/transfer"
)

// Handler interface for different output formats
type Handler interface {
	// HandleProgress renders an entry that is still uploading
	HandleProgress(entry transfer.Entry) error
	// HandleResult renders an entry that reached success, error or paused
	HandleResult(entry transfer.Entry) error
	// HandleRejected renders a validation violation
	HandleRejected(err error) error
	// HandleRemoved renders the rollback of an uploaded entry; err is the
	// failed cleanup request, if any
	HandleRemoved(entry transfer.Entry, err error) error
	Close() error
}

// NewHandler creates a new output handler for the specified format
func NewHandler(format string) (Handler, error) {
	return NewHandlerTo(format, os.Stdout)
}

// NewHandlerTo creates a handler writing to w
func NewHandlerTo(format string, w io.Writer) (Handler, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONHandler(w), nil
	case "text":
		return NewTextHandler(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
