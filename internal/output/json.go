package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/parnexcodes/ferry/internal/transfer"
	"github.com/parnexcodes/ferry/internal/transport"
)

// formatBytes formats bytes into human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// event is one JSON line
type event struct {
	Type     string                   `json:"type"`
	ID       string                   `json:"id,omitempty"`
	FileName string                   `json:"filename,omitempty"`
	Size     int64                    `json:"size,omitempty"`
	Status   transfer.Status          `json:"status,omitempty"`
	Progress int                      `json:"progress"`
	Error    string                   `json:"error,omitempty"`
	Chunks   string                   `json:"chunks,omitempty"`
	Result   *transfer.UploadResponse `json:"result,omitempty"`
}

// JSONHandler writes one JSON object per line
type JSONHandler struct {
	encoder *json.Encoder
}

// NewJSONHandler creates a new JSON handler
func NewJSONHandler(w io.Writer) *JSONHandler {
	return &JSONHandler{
		encoder: json.NewEncoder(w),
	}
}

func (j *JSONHandler) HandleProgress(entry transfer.Entry) error {
	return j.encoder.Encode(newEvent("progress", entry))
}

func (j *JSONHandler) HandleResult(entry transfer.Entry) error {
	return j.encoder.Encode(newEvent("result", entry))
}

func (j *JSONHandler) HandleRejected(err error) error {
	return j.encoder.Encode(event{Type: "rejected", Error: err.Error()})
}

func (j *JSONHandler) HandleRemoved(entry transfer.Entry, err error) error {
	ev := event{Type: "removed", ID: entry.ID, FileName: entry.File.Name, Size: entry.File.Size, Progress: entry.Progress}
	if err != nil {
		ev.Error = transport.Message(err)
	}
	return j.encoder.Encode(ev)
}

func (j *JSONHandler) Close() error {
	return nil
}

func newEvent(kind string, entry transfer.Entry) event {
	ev := event{
		Type:     kind,
		ID:       entry.ID,
		FileName: entry.File.Name,
		Size:     entry.File.Size,
		Status:   entry.Status,
		Progress: entry.Progress,
		Error:    entry.Error,
		Result:   entry.Result,
	}
	if entry.TotalChunks > 0 {
		ev.Chunks = fmt.Sprintf("%d/%d", len(entry.UploadedChunks), entry.TotalChunks)
	}
	return ev
}

// TextHandler implements Handler for human-readable text output
type TextHandler struct {
	output io.Writer
}

// NewTextHandler creates a new text handler
func NewTextHandler(w io.Writer) *TextHandler {
	return &TextHandler{
		output: w,
	}
}

// HandleResult prints the terminal state of an entry
func (t *TextHandler) HandleResult(entry transfer.Entry) error {
	switch entry.Status {
	case transfer.StatusError:
		fmt.Fprintf(t.output, "ERROR %s: %s\n", entry.File.Name, entry.Error)
	case transfer.StatusPaused:
		fmt.Fprintf(t.output, "PAUSED %s at %d%%\n", entry.File.Name, entry.Progress)
	case transfer.StatusSuccess:
		location := ""
		if entry.Result != nil && entry.Result.Data != nil {
			location = entry.Result.Data.DownloadURL
			if location == "" {
				location = entry.Result.Data.FilePath
			}
		}
		if location != "" {
			fmt.Fprintf(t.output, "SUCCESS %s (%s) -> %s\n", entry.File.Name, formatBytes(entry.File.Size), location)
		} else {
			fmt.Fprintf(t.output, "SUCCESS %s (%s)\n", entry.File.Name, formatBytes(entry.File.Size))
		}
	}
	return nil
}

// HandleProgress draws a simple progress bar
func (t *TextHandler) HandleProgress(entry transfer.Entry) error {
	barWidth := 40

	percentage := entry.Progress
	if percentage < 0 {
		percentage = 0
	} else if percentage > 100 {
		percentage = 100
	}

	filled := percentage * barWidth / 100
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)

	fmt.Fprintf(t.output, "\r[%s] %s %d%%", bar, entry.File.Name, percentage)
	if entry.TotalChunks > 0 {
		fmt.Fprintf(t.output, " (chunk %d/%d)", len(entry.UploadedChunks), entry.TotalChunks)
	}
	if percentage >= 100 {
		fmt.Fprintf(t.output, "\n")
	}
	return nil
}

func (t *TextHandler) HandleRejected(err error) error {
	fmt.Fprintf(t.output, "REJECTED %v\n", err)
	return nil
}

// HandleRemoved prints the outcome of deleting an uploaded file again
func (t *TextHandler) HandleRemoved(entry transfer.Entry, err error) error {
	if err != nil {
		fmt.Fprintf(t.output, "NOT REMOVED %s: %s\n", entry.File.Name, transport.Message(err))
		return nil
	}
	fmt.Fprintf(t.output, "REMOVED %s\n", entry.File.Name)
	return nil
}

// Close closes the text handler
func (t *TextHandler) Close() error {
	return nil
}
