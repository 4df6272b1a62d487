package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/parnexcodes/ferry/internal/logging"
	"github.com/parnexcodes/ferry/internal/transport"
)

// maxChunkedProgress holds back 100% until the merge step is confirmed
const maxChunkedProgress = 99.9

// ChunkFunc is told about every chunk the server acknowledged
type ChunkFunc func(index, total int)

// Chunked splits a file into fixed-size chunks, uploads them strictly in
// order and then asks the server to merge them.
type Chunked struct {
	transport Transport
	chunkURL  string
	mergeURL  string
	chunkSize int64
	now       func() time.Time
}

// NewChunked creates a chunked transfer. A non-positive chunkSize uses DefaultChunkSize.
func NewChunked(t Transport, chunkURL, mergeURL string, chunkSize int64) *Chunked {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunked{
		transport: t,
		chunkURL:  chunkURL,
		mergeURL:  mergeURL,
		chunkSize: chunkSize,
		now:       time.Now,
	}
}

// TotalChunks is ceil(size / chunkSize)
func (c *Chunked) TotalChunks(size int64) int {
	return int((size + c.chunkSize - 1) / c.chunkSize)
}

type mergeRequest struct {
	UploadID    string `json:"uploadId"`
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
	FileType    string `json:"fileType"`
}

// Upload sends every chunk of file from index 0, then the merge request. The
// merge response is the transfer result. Cancellation is checked before each
// chunk. progress never sees 100; the coordinator records it together with
// the success state.
func (c *Chunked) Upload(ctx context.Context, id string, file SourceFile, progress ProgressFunc, onChunk ChunkFunc) (*UploadResponse, error) {
	total := c.TotalChunks(file.Size)
	uploadID := fmt.Sprintf("%s_%d", id, c.now().UnixMilli())

	report := func(overall float64) {
		if progress == nil {
			return
		}
		if overall > maxChunkedProgress {
			overall = maxChunkedProgress
		}
		progress(int(overall))
	}

	for index := 0; index < total; index++ {
		if err := ctx.Err(); err != nil {
			return nil, transport.NewCancelledError("transfer cancelled", err)
		}

		start := int64(index) * c.chunkSize
		end := start + c.chunkSize
		if end > file.Size {
			end = file.Size
		}

		data, err := readRange(file, start, end-start)
		if err != nil {
			return nil, err
		}

		req := &transport.Request{
			URL: c.chunkURL,
			Fields: []transport.Field{
				{Name: "fileName", Value: file.Name},
				{Name: "uploadId", Value: uploadID},
				{Name: "chunkIndex", Value: strconv.Itoa(index)},
				{Name: "totalChunks", Value: strconv.Itoa(total)},
				{Name: "chunkSize", Value: strconv.FormatInt(end-start, 10)},
				{Name: "fileSize", Value: strconv.FormatInt(file.Size, 10)},
				{Name: "fileType", Value: file.Type},
			},
			File: &transport.FilePart{
				Field:       "file",
				FileName:    file.Name,
				ContentType: "application/octet-stream",
				Data:        data,
			},
		}

		k := index
		resp, err := c.transport.Do(ctx, req, func(sent, size int64) {
			if size <= 0 {
				return
			}
			f := float64(sent) / float64(size)
			report((float64(k) + f) / float64(total) * 100)
		})
		if err != nil {
			return nil, err
		}
		if err := checkChunkResponse(resp); err != nil {
			return nil, err
		}

		logging.ChunkComplete(uploadID, index, total)
		if onChunk != nil {
			onChunk(index, total)
		}
		report(float64(index+1) / float64(total) * 100)
	}

	if err := ctx.Err(); err != nil {
		return nil, transport.NewCancelledError("transfer cancelled", err)
	}

	logging.MergeStart(uploadID, file.Name, total)
	resp, err := c.transport.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    c.mergeURL,
		JSON: mergeRequest{
			UploadID:    uploadID,
			FileName:    file.Name,
			TotalChunks: total,
			FileType:    file.Type,
		},
	}, nil)
	if err != nil {
		return nil, err
	}

	result := &UploadResponse{Success: true}
	if len(resp.Body) > 0 {
		if err := transport.DecodeJSON(resp.Body, result); err != nil {
			return nil, err
		}
		if !result.Success {
			return nil, transport.NewAPIError("MERGE_ERROR", failureMessage(result.Message, "merge failed"), nil)
		}
	}

	return result, nil
}

// checkChunkResponse rejects a chunk whose JSON body reports success:false. An
// empty or non-JSON body on a 2xx status counts as acknowledged.
func checkChunkResponse(resp *transport.Response) error {
	if len(resp.Body) == 0 {
		return nil
	}
	var ack struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &ack); err != nil {
		return nil
	}
	if ack.Success != nil && !*ack.Success {
		return transport.NewAPIError("CHUNK_ERROR", failureMessage(ack.Message, "chunk upload failed"), nil)
	}
	return nil
}
