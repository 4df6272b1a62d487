package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/parnexcodes/ferry/internal/logging"
)

const userAgent = "ferry/1.0"

// Field is a plain multipart form field.
type Field struct {
	Name  string
	Value string
}

// FilePart is the binary part of a multipart request.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// Request describes one endpoint call. A request with Fields or File is sent as
// multipart/form-data; otherwise JSON, when set, is sent as the body.
type Request struct {
	Method string
	URL    string
	Fields []Field
	File   *FilePart
	JSON   interface{}
}

// Response carries the raw outcome of a request
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Doer issues requests. *Client and *Retrying implement it.
type Doer interface {
	Do(ctx context.Context, req *Request, onProgress ProgressFunc) (*Response, error)
}

// Client sends requests to the transfer endpoints with common headers and logging
type Client struct {
	httpClient *http.Client
}

// NewClient creates a client around httpClient, or http.DefaultClient when nil.
// Time bounds are applied per call through the context, so the client should
// not carry its own Timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// Do executes req and reports upload progress of the request body. A non-2xx
// status is returned as an API error together with the response.
func (c *Client) Do(ctx context.Context, req *Request, onProgress ProgressFunc) (*Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		logging.ErrorContext("request_encode", err, map[string]interface{}{
			"url": req.URL,
		})
		return nil, NewAPIError("ENCODE_ERROR", "failed to encode request body", err)
	}

	var reader io.Reader
	if body != nil {
		reader = &progressReader{
			reader:     bytes.NewReader(body),
			totalSize:  int64(len(body)),
			onProgress: onProgress,
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		logging.ErrorContext("http_request_create", err, map[string]interface{}{
			"method": method,
			"url":    req.URL,
		})
		return nil, NewNetworkError(fmt.Sprintf("failed to create request: %s", method), err)
	}
	if body != nil {
		httpReq.ContentLength = int64(len(body))
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "application/json")

	logging.HTTPRequest(method, req.URL, map[string]string{
		"Content-Type":   contentType,
		"Content-Length": fmt.Sprintf("%d", len(body)),
	})

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, req.URL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, classify(ctx, req.URL, err)
	}

	logging.HTTPResponse(method, req.URL, resp.StatusCode, string(respBody), duration)

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Duration:   duration,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, NewStatusError(resp.StatusCode, extractMessage(resp.StatusCode, respBody))
	}

	return out, nil
}

func encodeBody(req *Request) ([]byte, string, error) {
	if req.File != nil || len(req.Fields) > 0 {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		for _, field := range req.Fields {
			if err := writer.WriteField(field.Name, field.Value); err != nil {
				return nil, "", fmt.Errorf("write field %s: %w", field.Name, err)
			}
		}

		if req.File != nil {
			contentType := req.File.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
				escapeQuotes(req.File.Field), escapeQuotes(req.File.FileName)))
			header.Set("Content-Type", contentType)

			part, err := writer.CreatePart(header)
			if err != nil {
				return nil, "", fmt.Errorf("create file part: %w", err)
			}
			if _, err := part.Write(req.File.Data); err != nil {
				return nil, "", fmt.Errorf("write file part: %w", err)
			}
		}

		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("close multipart writer: %w", err)
		}
		return buf.Bytes(), writer.FormDataContentType(), nil
	}

	if req.JSON != nil {
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return data, "application/json", nil
	}

	return nil, "", nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// classify maps a failed round trip onto the error taxonomy. Cancellation of the
// caller's context wins over everything else so a paused transfer is never
// reported as a network failure.
func classify(ctx context.Context, url string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return NewCancelledError("transfer cancelled", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("request timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("request timed out", err)
	}

	logging.ErrorContext("http_request", err, map[string]interface{}{
		"url": url,
	})
	return NewNetworkError(fmt.Sprintf("request failed: %s", url), err)
}

// extractMessage pulls a best-effort message out of an error response body.
func extractMessage(statusCode int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	if text := http.StatusText(statusCode); text != "" {
		return fmt.Sprintf("request failed with status %d: %s", statusCode, text)
	}
	return fmt.Sprintf("request failed with status %d", statusCode)
}

// DecodeJSON parses body into target, mapping parse failures to an API error.
func DecodeJSON(body []byte, target interface{}) error {
	if err := json.Unmarshal(body, target); err != nil {
		logging.ErrorContext("json_parse", err, map[string]interface{}{
			"response": string(body),
		})
		return NewAPIError("JSON_PARSE_ERROR", "failed to parse response", err)
	}
	return nil
}
