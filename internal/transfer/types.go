package transfer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/parnexcodes/ferry/internal/transport"
)

// Status is the lifecycle state of a tracked entry
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusPaused    Status = "paused"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// ContentReader is an opened byte source
type ContentReader interface {
	io.ReaderAt
	io.Closer
}

// SourceFile is the immutable byte source of an entry. Content serves
// in-memory sources; when Open is set it is called at the start of every
// transfer run and the reader is closed when the run ends, so idle entries
// hold no descriptors.
type SourceFile struct {
	Name    string
	Size    int64
	Type    string // MIME type
	Content io.ReaderAt
	Open    func() (ContentReader, error)
}

// acquire returns a copy of f with readable Content and the func releasing it
func (f SourceFile) acquire() (SourceFile, func(), error) {
	if f.Open == nil {
		return f, func() {}, nil
	}
	rc, err := f.Open()
	if err != nil {
		return f, nil, transport.NewAPIError("OPEN_ERROR", fmt.Sprintf("failed to open %s", f.Name), err)
	}
	f.Content = rc
	return f, func() { rc.Close() }, nil
}

// Entry is one submitted file's upload record. Entries handed out by the
// engine are snapshots; mutating them has no effect on the registry.
type Entry struct {
	ID             string          `json:"id"`
	File           SourceFile      `json:"-"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	Error          string          `json:"error,omitempty"`
	UploadedChunks []int           `json:"uploaded_chunks,omitempty"`
	TotalChunks    int             `json:"total_chunks,omitempty"`
	Result         *UploadResponse `json:"result,omitempty"`
}

func (e Entry) clone() Entry {
	if e.UploadedChunks != nil {
		e.UploadedChunks = append([]int(nil), e.UploadedChunks...)
	}
	return e
}

// UploadResponse is the response contract of the upload and merge endpoints
type UploadResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *UploadedFile `json:"data,omitempty"`
}

// UploadedFile describes a file the server has stored
type UploadedFile struct {
	ID                   string              `json:"id"`
	FileUUID             string              `json:"fileUuid"`
	FilePath             string              `json:"filePath"`
	OriginalFileName     string              `json:"originalFileName"`
	SavedFileName        string              `json:"savedFileName"`
	FileSize             int64               `json:"fileSize"`
	FileHash             string              `json:"fileHash,omitempty"`
	UploadTime           string              `json:"uploadTime"`
	DownloadURL          string              `json:"downloadUrl"`
	PreviewURL           string              `json:"previewUrl,omitempty"`
	RequiresManualReview bool                `json:"requiresManualReview"`
	SecurityScanResult   *SecurityScanResult `json:"securityScanResult,omitempty"`
}

type SecurityScanResult struct {
	IsSafe    bool   `json:"isSafe"`
	RiskLevel string `json:"riskLevel"`
	Details   string `json:"details,omitempty"`
}

// HashAlgorithm is sent as its ordinal in options.hashAlgorithm
type HashAlgorithm int

const (
	HashSHA256 HashAlgorithm = iota
	HashSHA512
	HashMD5
)

// UploadOptions is the options.* field set of the single-shot endpoint
type UploadOptions struct {
	CreateDirectory          bool
	ScanForVirus             bool
	ValidateIntegrity        bool
	CustomFileName           string
	Description              string
	HashAlgorithm            HashAlgorithm
	ExpectedHash             string
	StartWatchingAfterUpload bool
	Overwrite                bool
}

// Limits are the admission rules applied by the validator
type Limits struct {
	Multiple      bool
	MaxFiles      int   // 0 means unlimited
	MaxSize       int64 // 0 means unlimited
	MinSize       int64
	AcceptedTypes []string // empty accepts everything
}

// RemoveMode selects the payload of the removal endpoint
type RemoveMode string

const (
	// RemoveByFileID posts {fileId, filetype}
	RemoveByFileID RemoveMode = "file_id"
	// RemoveByPath deletes {path, recursive:false} keyed by the server file path
	RemoveByPath RemoveMode = "path"
)

// Endpoints of a compliant backend
type Endpoints struct {
	Upload string
	Chunk  string
	Merge  string
	Remove string
}

// Config holds engine configuration
type Config struct {
	Endpoints   Endpoints
	Limits      Limits
	Chunked     bool
	ChunkSize   int64
	AutoStart   bool
	Timeout     time.Duration // single-shot bound
	Concurrency int           // 0 means unlimited
	Options     UploadOptions
	TargetPath  string
	RemoveMode  RemoveMode
}

const (
	DefaultChunkSize = 2 * 1024 * 1024
	DefaultTimeout   = 5 * time.Minute
)

// Transport is the network capability the engine consumes
type Transport interface {
	Do(ctx context.Context, req *transport.Request, onProgress transport.ProgressFunc) (*transport.Response, error)
}

// ProgressFunc is the progress sink of a running transfer, fed percentages.
type ProgressFunc func(percent int)

// Callbacks are fired by the coordinator outside its registry lock, one at a
// time and in the order the registry was written, so no progress snapshot of
// an entry follows its paused or terminal snapshot. OnChange receives a
// snapshot after every registry write, including progress updates. A callback
// may read through Entry and Entries but must not call other Engine methods.
type Callbacks struct {
	OnSuccess func(entry Entry, result *UploadResponse)
	OnError   func(entry Entry, err error)
	OnChange  func(entry Entry)
}
