package transport

import "io"

// ProgressFunc receives the bytes sent so far and the total request body size.
type ProgressFunc func(sent, total int64)

// progressReader wraps an io.Reader to track read progress
type progressReader struct {
	reader     io.Reader
	totalSize  int64
	bytesRead  int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.bytesRead += int64(n)
		if pr.onProgress != nil {
			pr.onProgress(pr.bytesRead, pr.totalSize)
		}
	}
	return n, err
}
