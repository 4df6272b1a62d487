package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/parnexcodes/ferry/internal/transport"
)

// SingleShot uploads a whole file as one multipart request
type SingleShot struct {
	transport  Transport
	url        string
	timeout    time.Duration
	options    UploadOptions
	targetPath string
}

// NewSingleShot creates a single-shot transfer. A zero timeout uses DefaultTimeout.
func NewSingleShot(t Transport, url string, timeout time.Duration, options UploadOptions, targetPath string) *SingleShot {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SingleShot{
		transport:  t,
		url:        url,
		timeout:    timeout,
		options:    options,
		targetPath: targetPath,
	}
}

// Upload sends file and returns the parsed response. Cancelling ctx yields a
// cancelled error; exceeding the time bound yields a timeout error.
func (s *SingleShot) Upload(ctx context.Context, file SourceFile, progress ProgressFunc) (*UploadResponse, error) {
	data, err := readRange(file, 0, file.Size)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := &transport.Request{
		URL:    s.url,
		Fields: s.fields(),
		File: &transport.FilePart{
			Field:       "file",
			FileName:    file.Name,
			ContentType: file.Type,
			Data:        data,
		},
	}

	resp, err := s.transport.Do(ctx, req, func(sent, total int64) {
		if total > 0 && progress != nil {
			progress(int(sent * 100 / total))
		}
	})
	if err != nil {
		return nil, err
	}

	var result UploadResponse
	if err := transport.DecodeJSON(resp.Body, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, transport.NewAPIError("UPLOAD_ERROR", failureMessage(result.Message, "upload failed"), nil)
	}

	return &result, nil
}

func (s *SingleShot) fields() []transport.Field {
	o := s.options
	return []transport.Field{
		{Name: "targetPath", Value: s.targetPath},
		{Name: "options.createDirectory", Value: strconv.FormatBool(o.CreateDirectory)},
		{Name: "options.scanForVirus", Value: strconv.FormatBool(o.ScanForVirus)},
		{Name: "options.validateIntegrity", Value: strconv.FormatBool(o.ValidateIntegrity)},
		{Name: "options.customFileName", Value: o.CustomFileName},
		{Name: "options.description", Value: o.Description},
		{Name: "options.hashAlgorithm", Value: strconv.Itoa(int(o.HashAlgorithm))},
		{Name: "options.expectedHash", Value: o.ExpectedHash},
		{Name: "options.startWatchingAfterUpload", Value: strconv.FormatBool(o.StartWatchingAfterUpload)},
		{Name: "options.overwrite", Value: strconv.FormatBool(o.Overwrite)},
	}
}

// readRange reads n bytes of file starting at off
func readRange(file SourceFile, off, n int64) ([]byte, error) {
	if file.Content == nil {
		return nil, transport.NewAPIError("NO_CONTENT", fmt.Sprintf("file %s has no content source", file.Name), nil)
	}

	buf := make([]byte, n)
	read, err := file.Content.ReadAt(buf, off)
	if err != nil && !(errors.Is(err, io.EOF) && int64(read) == n) {
		return nil, transport.NewAPIError("READ_ERROR", fmt.Sprintf("failed to read %s", file.Name), err)
	}
	return buf, nil
}

func failureMessage(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
