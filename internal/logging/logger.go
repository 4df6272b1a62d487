package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

type Logger struct {
	*logrus.Logger
	verbose bool
}

var defaultLogger *Logger

// Categories for consistent logging
const (
	CategoryNetwork    = "NETWORK"
	CategoryTransfer   = "TRANSFER"
	CategoryValidation = "VALIDATION"
	CategoryFiles      = "FILES"
	CategoryConfig     = "CONFIG"
	CategoryCLI        = "CLI"
	CategoryError      = "ERROR"
)

func init() {
	// Quiet logger so library code can log before the CLI calls Init
	Init(false, os.Stderr)
}

// Init initializes the logging system with verbose flag and output destination
func Init(verbose bool, output io.Writer) {
	logger := logrus.New()

	if output != nil {
		logger.SetOutput(output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	if isTTY(logger.Out) && verbose {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			ForceColors:     true,
		})
	} else if isTTY(logger.Out) {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: false,
			ForceColors:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		// Only show errors and above in non-verbose mode
		logger.SetLevel(logrus.ErrorLevel)
	}

	logger.SetReportCaller(false)

	defaultLogger = &Logger{
		Logger:  logger,
		verbose: verbose,
	}
}

// isTTY checks if the output is a terminal
func isTTY(output io.Writer) bool {
	file, ok := output.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// IsVerbose returns whether verbose logging is enabled
func IsVerbose() bool {
	if defaultLogger == nil {
		return false
	}
	return defaultLogger.verbose
}

func (l *Logger) logWithCategory(level logrus.Level, category string, message string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["category"] = category

	l.WithFields(fields).Log(level, message)
}

// Network Operations Logging Functions
func HTTPRequest(method, url string, headers map[string]string) {
	if !IsVerbose() {
		return
	}
	fields := logrus.Fields{
		"method": method,
		"url":    url,
	}
	if len(headers) > 0 {
		fields["headers"] = headers
	}
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryNetwork, "HTTP request", fields)
}

// HTTPResponse logs the outcome of a request; bodies are truncated to 200 bytes.
func HTTPResponse(method, url string, statusCode int, body string, duration time.Duration) {
	if !IsVerbose() {
		return
	}
	fields := logrus.Fields{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}
	if body != "" {
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		fields["body"] = body
	}
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryNetwork, "HTTP response", fields)
}

// File Operations Logging Functions
func FileScan(paths []string) {
	if !IsVerbose() {
		return
	}
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryFiles, "Scanning files", logrus.Fields{
		"path_count": len(paths),
		"paths":      paths,
	})
}

func FileFound(path string, size int64, mimeType string) {
	if !IsVerbose() {
		return
	}
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryFiles, "File found", logrus.Fields{
		"path": path,
		"size": size,
		"type": mimeType,
	})
}

// ValidationRejected records a file or batch turned away before any network call.
func ValidationRejected(file string, rule string, message string) {
	defaultLogger.logWithCategory(logrus.WarnLevel, CategoryValidation, "File rejected", logrus.Fields{
		"file":    file,
		"rule":    rule,
		"message": message,
	})
}

// Configuration Logging Functions
func ConfigLoad(source string, values interface{}) {
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryConfig, "Loading configuration", logrus.Fields{
		"source": source,
		"values": values,
	})
}

// Transfer Logging Functions
func TransferStart(id string, filename string, size int64, chunked bool) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategoryTransfer, "Starting transfer", logrus.Fields{
		"id":       id,
		"filename": filename,
		"size":     size,
		"chunked":  chunked,
	})
}

func TransferProgress(id string, percentage int) {
	if !IsVerbose() {
		return
	}
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryTransfer, "Transfer progress", logrus.Fields{
		"id":         id,
		"percentage": percentage,
	})
}

func ChunkComplete(uploadID string, index int, total int) {
	if !IsVerbose() {
		return
	}
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryTransfer, "Chunk uploaded", logrus.Fields{
		"upload_id":    uploadID,
		"chunk_index":  index,
		"total_chunks": total,
	})
}

func MergeStart(uploadID string, filename string, total int) {
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryTransfer, "Merging chunks", logrus.Fields{
		"upload_id":    uploadID,
		"filename":     filename,
		"total_chunks": total,
	})
}

func TransferComplete(id string, filename string, duration time.Duration) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategoryTransfer, "Transfer completed", logrus.Fields{
		"id":          id,
		"filename":    filename,
		"duration_ms": duration.Milliseconds(),
	})
}

func TransferPaused(id string, filename string) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategoryTransfer, "Transfer paused", logrus.Fields{
		"id":       id,
		"filename": filename,
	})
}

func TransferError(id string, filename string, err error) {
	defaultLogger.logWithCategory(logrus.ErrorLevel, CategoryTransfer, "Transfer failed", logrus.Fields{
		"id":       id,
		"filename": filename,
		"error":    err,
	})
}

// CleanupFailed is logged when a best-effort server-side delete does not go through.
func CleanupFailed(id string, filename string, err error) {
	defaultLogger.logWithCategory(logrus.WarnLevel, CategoryTransfer, "Cleanup request failed", logrus.Fields{
		"id":       id,
		"filename": filename,
		"error":    err,
	})
}

// Concurrency Logging Functions
func ConcurrencySettings(limit int) {
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryTransfer, "Concurrency settings", logrus.Fields{
		"max_active_transfers": limit,
	})
}

// CLI and Flag Processing Logging Functions
func FlagProcessing(flag string, value interface{}) {
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryCLI, "Flag processing", logrus.Fields{
		"flag":  flag,
		"value": value,
	})
}

// Error Context Logging Functions
func ErrorContext(context string, err error, details map[string]interface{}) {
	if !IsVerbose() || err == nil {
		return
	}
	fields := logrus.Fields{
		"context": context,
		"error":   err,
	}
	for k, v := range details {
		fields[k] = v
	}
	defaultLogger.logWithCategory(logrus.ErrorLevel, CategoryError, "Error occurred", fields)
}

func Debug(message string, fields logrus.Fields) {
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryNetwork, message, fields)
}
