package transfer

import (
	"fmt"
	"strings"

	"github.com/parnexcodes/ferry/internal/logging"
)

// Validation rules
const (
	RuleMultiple = "multiple"
	RuleMaxFiles = "max_files"
	RuleMinSize  = "min_size"
	RuleMaxSize  = "max_size"
	RuleType     = "type"
)

// ValidationError is a batch or file rejected before any network call
type ValidationError struct {
	Rule    string
	File    string // empty for batch-level rules
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate returns the files of batch that satisfy every rule, in their original
// order, together with the last violation encountered. Earlier violations are
// not aggregated; their files are still excluded.
func Validate(batch []SourceFile, registrySize int, limits Limits) ([]SourceFile, *ValidationError) {
	if !limits.Multiple && len(batch) > 1 {
		verr := &ValidationError{
			Rule:    RuleMultiple,
			Message: "only one file can be selected",
		}
		logging.ValidationRejected("", verr.Rule, verr.Message)
		return nil, verr
	}

	if limits.MaxFiles > 0 && registrySize+len(batch) > limits.MaxFiles {
		verr := &ValidationError{
			Rule:    RuleMaxFiles,
			Message: fmt.Sprintf("at most %d files can be uploaded", limits.MaxFiles),
		}
		logging.ValidationRejected("", verr.Rule, verr.Message)
		return nil, verr
	}

	var (
		accepted []SourceFile
		last     *ValidationError
	)
	for _, file := range batch {
		if verr := validateFile(file, limits); verr != nil {
			logging.ValidationRejected(file.Name, verr.Rule, verr.Message)
			last = verr
			continue
		}
		accepted = append(accepted, file)
	}

	return accepted, last
}

func validateFile(file SourceFile, limits Limits) *ValidationError {
	if file.Size < limits.MinSize {
		return &ValidationError{
			Rule:    RuleMinSize,
			File:    file.Name,
			Message: fmt.Sprintf("file %s is smaller than the minimum size of %d bytes", file.Name, limits.MinSize),
		}
	}

	if limits.MaxSize > 0 && file.Size > limits.MaxSize {
		return &ValidationError{
			Rule:    RuleMaxSize,
			File:    file.Name,
			Message: fmt.Sprintf("file %s exceeds the maximum size of %d bytes", file.Name, limits.MaxSize),
		}
	}

	if len(limits.AcceptedTypes) > 0 && !typeAccepted(file.Type, limits.AcceptedTypes) {
		return &ValidationError{
			Rule:    RuleType,
			File:    file.Name,
			Message: fmt.Sprintf("file %s has type %q, which is not accepted", file.Name, file.Type),
		}
	}

	return nil
}

// typeAccepted matches an exact MIME type or a category/* wildcard
func typeAccepted(mimeType string, accepted []string) bool {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	category, _, _ := strings.Cut(mimeType, "/")

	for _, pattern := range accepted {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == mimeType {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok && prefix == category {
			return true
		}
	}
	return false
}
