package transfer

import (
	"context"
	"net/http"
	"strings"

	"github.com/parnexcodes/ferry/internal/transport"
)

// Remover issues the server-side delete for an uploaded entry
type Remover struct {
	transport Transport
	url       string
	mode      RemoveMode
}

func NewRemover(t Transport, url string, mode RemoveMode) *Remover {
	if mode == "" {
		mode = RemoveByFileID
	}
	return &Remover{
		transport: t,
		url:       url,
		mode:      mode,
	}
}

type removeByIDRequest struct {
	FileID   string `json:"fileId"`
	FileType string `json:"filetype"`
}

type removeByPathRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type removeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *bool  `json:"data,omitempty"`
}

// Remove deletes the uploaded copy of e. A 404 means the file is already gone
// and counts as success.
func (r *Remover) Remove(ctx context.Context, e Entry) error {
	req := &transport.Request{URL: r.url}

	switch r.mode {
	case RemoveByPath:
		path := ""
		if e.Result != nil && e.Result.Data != nil {
			path = e.Result.Data.FilePath
		}
		req.Method = http.MethodDelete
		req.JSON = removeByPathRequest{Path: path, Recursive: false}
	default:
		fileID := e.ID
		if e.Result != nil && e.Result.Data != nil && e.Result.Data.ID != "" {
			fileID = e.Result.Data.ID
		}
		req.Method = http.MethodPost
		req.JSON = removeByIDRequest{FileID: fileID, FileType: extensionFromMIME(e.File.Type)}
	}

	resp, err := r.transport.Do(ctx, req, nil)
	if err != nil {
		if transport.StatusCode(err) == http.StatusNotFound {
			return nil
		}
		return err
	}

	if len(resp.Body) == 0 {
		return nil
	}
	var result removeResponse
	if err := transport.DecodeJSON(resp.Body, &result); err != nil {
		return err
	}
	if !result.Success {
		return transport.NewAPIError("REMOVE_ERROR", failureMessage(result.Message, "remove failed"), nil)
	}
	return nil
}

// extensionFromMIME turns image/png into .png. Composite subtypes are passed
// through verbatim.
func extensionFromMIME(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	_, subtype, ok := strings.Cut(strings.TrimSpace(mimeType), "/")
	if !ok || subtype == "" {
		return ""
	}
	return "." + subtype
}
