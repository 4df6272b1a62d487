package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parnexcodes/ferry/internal/transfer"
)

func uploaded(name string, size int64) transfer.Entry {
	return transfer.Entry{
		ID:       "id-" + name,
		File:     transfer.SourceFile{Name: name, Size: size},
		Status:   transfer.StatusSuccess,
		Progress: 100,
		Result: &transfer.UploadResponse{
			Success: true,
			Data:    &transfer.UploadedFile{ID: "srv", FilePath: "/files/" + name},
		},
	}
}

func TestNewHandlerTo(t *testing.T) {
	h, err := NewHandlerTo("JSON", &bytes.Buffer{})
	require.NoError(t, err)
	assert.IsType(t, &JSONHandler{}, h)

	h, err = NewHandlerTo("text", &bytes.Buffer{})
	require.NoError(t, err)
	assert.IsType(t, &TextHandler{}, h)

	_, err = NewHandlerTo("xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:           "0 B",
		1023:        "1023 B",
		1024:        "1.0 KiB",
		1536:        "1.5 KiB",
		2 * 1 << 20: "2.0 MiB",
	}
	for size, expected := range tests {
		assert.Equal(t, expected, formatBytes(size))
	}
}

func TestTextHandler_Results(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf)

	require.NoError(t, h.HandleResult(uploaded("a.txt", 2048)))
	require.NoError(t, h.HandleResult(transfer.Entry{
		File:   transfer.SourceFile{Name: "b.txt"},
		Status: transfer.StatusError,
		Error:  "quota exceeded",
	}))
	require.NoError(t, h.HandleResult(transfer.Entry{
		File:     transfer.SourceFile{Name: "c.txt"},
		Status:   transfer.StatusPaused,
		Progress: 42,
	}))
	require.NoError(t, h.HandleRejected(errors.New("only one file can be selected")))
	require.NoError(t, h.HandleRemoved(uploaded("a.txt", 2048), nil))
	require.NoError(t, h.HandleRemoved(uploaded("d.txt", 1), errors.New("server busy")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"SUCCESS a.txt (2.0 KiB) -> /files/a.txt",
		"ERROR b.txt: quota exceeded",
		"PAUSED c.txt at 42%",
		"REJECTED only one file can be selected",
		"REMOVED a.txt",
		"NOT REMOVED d.txt: server busy",
	}, lines)
}

func TestTextHandler_Progress(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf)

	require.NoError(t, h.HandleProgress(transfer.Entry{
		File:           transfer.SourceFile{Name: "big.bin"},
		Status:         transfer.StatusUploading,
		Progress:       50,
		UploadedChunks: []int{0, 1},
		TotalChunks:    4,
	}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\r["))
	assert.Contains(t, out, strings.Repeat("=", 20)+strings.Repeat(" ", 20))
	assert.Contains(t, out, "big.bin 50%")
	assert.Contains(t, out, "(chunk 2/4)")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewJSONHandler(&buf)

	require.NoError(t, h.HandleProgress(transfer.Entry{
		ID:             "e1",
		File:           transfer.SourceFile{Name: "big.bin", Size: 30},
		Status:         transfer.StatusUploading,
		Progress:       33,
		UploadedChunks: []int{0},
		TotalChunks:    3,
	}))
	require.NoError(t, h.HandleResult(uploaded("a.txt", 5)))
	require.NoError(t, h.HandleRejected(errors.New("at most 2 files can be uploaded")))
	require.NoError(t, h.HandleRemoved(uploaded("a.txt", 5), nil))

	var events []map[string]interface{}
	decoder := json.NewDecoder(&buf)
	for decoder.More() {
		var ev map[string]interface{}
		require.NoError(t, decoder.Decode(&ev))
		events = append(events, ev)
	}
	require.Len(t, events, 4)

	assert.Equal(t, "progress", events[0]["type"])
	assert.Equal(t, "1/3", events[0]["chunks"])
	assert.Equal(t, float64(33), events[0]["progress"])

	assert.Equal(t, "result", events[1]["type"])
	assert.Equal(t, "success", events[1]["status"])
	result := events[1]["result"].(map[string]interface{})
	assert.Equal(t, "/files/a.txt", result["data"].(map[string]interface{})["filePath"])

	assert.Equal(t, "rejected", events[2]["type"])
	assert.Equal(t, "at most 2 files can be uploaded", events[2]["error"])

	assert.Equal(t, "removed", events[3]["type"])
	assert.Equal(t, "id-a.txt", events[3]["id"])
	assert.NotContains(t, events[3], "error")
}
