package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/parnexcodes/ferry/internal/logging"
	"github.com/parnexcodes/ferry/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// File is a local file found by a scan. Nothing is held open; the file is
// opened through Source.Open when its transfer starts.
type File struct {
	Path   string
	Source transfer.SourceFile
}

// Scanner expands files and directories into transfer sources
type Scanner struct{}

func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan walks every path and describes each regular file found. Directories
// are walked recursively; each root is walked in its own goroutine, and the
// result keeps the order of paths.
func (s *Scanner) Scan(ctx context.Context, paths []string) ([]*File, error) {
	logging.FileScan(paths)

	results := make([][]*File, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, root := range paths {
		g.Go(func() error {
			files, err := s.walkPath(ctx, root)
			if err != nil {
				return fmt.Errorf("failed to scan path %s: %w", root, err)
			}
			results[i] = files
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*File
	for _, files := range results {
		out = append(out, files...)
	}
	return out, nil
}

func (s *Scanner) walkPath(ctx context.Context, root string) ([]*File, error) {
	var files []*File

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if info == nil || !info.Mode().IsRegular() {
			return nil
		}

		f, err := Open(path)
		if err != nil {
			return err
		}
		files = append(files, f)
		return nil
	})

	return files, err
}

// Open stats path and sniffs its MIME type from content. The file is closed
// again before Open returns.
func Open(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type of %s: %w", path, err)
	}

	logging.FileFound(path, info.Size(), mtype.String())

	return &File{
		Path: path,
		Source: transfer.SourceFile{
			Name: info.Name(),
			Size: info.Size(),
			Type: mtype.String(),
			Open: func() (transfer.ContentReader, error) {
				fh, err := os.Open(path)
				if err != nil {
					return nil, err
				}
				return fh, nil
			},
		},
	}, nil
}

// Sources returns the transfer sources of files
func Sources(files []*File) []transfer.SourceFile {
	out := make([]transfer.SourceFile, 0, len(files))
	for _, f := range files {
		out = append(out, f.Source)
	}
	return out
}
