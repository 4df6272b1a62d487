package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/parnexcodes/ferry/internal/config"
	"github.com/parnexcodes/ferry/internal/logging"
	"github.com/parnexcodes/ferry/internal/output"
	"github.com/parnexcodes/ferry/internal/source"
	"github.com/parnexcodes/ferry/internal/transfer"
	"github.com/parnexcodes/ferry/internal/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	files         []string
	folders       []string
	chunked       bool
	chunkSize     int64
	uploadURL     string
	chunkURL      string
	mergeURL      string
	targetPath    string
	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration
	progress      bool
	removeURL     string
	removeMode    string
	rollback      bool
)

// rollbackTimeout bounds the cleanup requests sent after a failed batch
const rollbackTimeout = 30 * time.Second

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload files and directories to the configured endpoints",
	Long: `Upload files and directories to a compliant backend.
Small files go out as one multipart request; with --chunked every file is split
into ordered chunks that the server merges once all of them arrived.

Use --file/-f for files and --folder/-d for directories. Supports glob patterns for files.
With --rollback-on-failure the files of a batch that did not fully succeed are
deleted from the server again through the remove endpoint.`,
	Args: cobra.NoArgs,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringSliceVarP(&files, "file", "f", []string{}, "files to upload (can be used multiple times, supports glob patterns)")
	uploadCmd.Flags().StringSliceVarP(&folders, "folder", "d", []string{}, "folders to upload (can be used multiple times)")
	uploadCmd.Flags().BoolVar(&chunked, "chunked", false, "upload in chunks followed by a merge request")
	uploadCmd.Flags().Int64Var(&chunkSize, "chunk-size", transfer.DefaultChunkSize, "chunk size in bytes")
	uploadCmd.Flags().StringVar(&uploadURL, "upload-url", "", "single-shot upload endpoint")
	uploadCmd.Flags().StringVar(&chunkURL, "chunk-url", "", "chunk upload endpoint")
	uploadCmd.Flags().StringVar(&mergeURL, "merge-url", "", "chunk merge endpoint")
	uploadCmd.Flags().StringVar(&targetPath, "target-path", "", "destination directory on the server")
	uploadCmd.Flags().DurationVar(&timeout, "timeout", transfer.DefaultTimeout, "time bound of a single-shot upload")
	uploadCmd.Flags().IntVar(&retryAttempts, "retry-attempts", 3, "number of retries for requests that failed on the network")
	uploadCmd.Flags().DurationVar(&retryDelay, "retry-delay", 2*time.Second, "delay between retry attempts")
	uploadCmd.Flags().BoolVar(&progress, "progress", true, "show upload progress")
	uploadCmd.Flags().StringVar(&removeURL, "remove-url", "", "endpoint deleting uploaded files")
	uploadCmd.Flags().StringVar(&removeMode, "remove-mode", string(transfer.RemoveByFileID), "how uploaded files are addressed on removal (file_id, path)")
	uploadCmd.Flags().BoolVar(&rollback, "rollback-on-failure", false, "delete uploaded files again when any file of the batch fails")

	viper.BindPFlag("upload.chunked", uploadCmd.Flags().Lookup("chunked"))
	viper.BindPFlag("upload.chunk_size", uploadCmd.Flags().Lookup("chunk-size"))
	viper.BindPFlag("endpoints.upload_url", uploadCmd.Flags().Lookup("upload-url"))
	viper.BindPFlag("endpoints.chunk_url", uploadCmd.Flags().Lookup("chunk-url"))
	viper.BindPFlag("endpoints.merge_url", uploadCmd.Flags().Lookup("merge-url"))
	viper.BindPFlag("upload.target_path", uploadCmd.Flags().Lookup("target-path"))
	viper.BindPFlag("upload.timeout", uploadCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("upload.retry_attempts", uploadCmd.Flags().Lookup("retry-attempts"))
	viper.BindPFlag("upload.retry_delay", uploadCmd.Flags().Lookup("retry-delay"))
	viper.BindPFlag("progress", uploadCmd.Flags().Lookup("progress"))
	viper.BindPFlag("endpoints.remove_url", uploadCmd.Flags().Lookup("remove-url"))
	viper.BindPFlag("upload.remove_mode", uploadCmd.Flags().Lookup("remove-mode"))
	viper.BindPFlag("upload.rollback_on_failure", uploadCmd.Flags().Lookup("rollback-on-failure"))

	viper.SetDefault("progress", true)
}

// expandGlobPatterns expands glob patterns in file paths and returns all matched files
func expandGlobPatterns(filePatterns []string) ([]string, error) {
	result := []string{}
	for _, pattern := range filePatterns {
		if strings.ContainsAny(pattern, "*?[") {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
			}
			result = append(result, matches...)
		} else {
			result = append(result, pattern)
		}
	}
	return result, nil
}

// validatePaths validates that file paths are actually files and folder paths are directories
func validatePaths(files []string, folders []string) error {
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file does not exist: %s", file)
			}
			return fmt.Errorf("error checking file %s: %w", file, err)
		}
		if info.IsDir() {
			return fmt.Errorf("path '%s' is a directory, but --file flag requires a file. Use --folder/-d for directories", file)
		}
	}

	for _, folder := range folders {
		info, err := os.Stat(folder)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("directory does not exist: %s", folder)
			}
			return fmt.Errorf("error checking directory %s: %w", folder, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("path '%s' is a file, but --folder/-d flag requires a directory. Use --file/-f for files", folder)
		}
	}

	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	logging.Init(viper.GetBool("verbose"), os.Stderr)

	if len(files) == 0 && len(folders) == 0 {
		return fmt.Errorf("no files or folders specified. Use --file/-f for files or --folder/-d for directories")
	}

	logging.FlagProcessing("files", len(files))
	logging.FlagProcessing("folders", len(folders))

	expandedFiles, err := expandGlobPatterns(files)
	if err != nil {
		return err
	}
	if err := validatePaths(expandedFiles, folders); err != nil {
		return err
	}
	paths := append(expandedFiles, folders...)

	configSource := "CLI flags only"
	if viper.ConfigFileUsed() != "" {
		configSource = viper.ConfigFileUsed()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.ErrorContext("config_load", err, map[string]interface{}{
			"source": configSource,
		})
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.ConfigLoad(configSource, map[string]interface{}{
		"chunked":     cfg.Upload.Chunked,
		"chunk_size":  cfg.Upload.ChunkSize,
		"concurrency": cfg.Upload.Concurrency,
		"output":      cfg.Output,
		"rollback":    cfg.Upload.RollbackOnFailure,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interrupting pauses every running transfer
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	found, err := source.NewScanner().Scan(ctx, paths)
	if err != nil {
		return err
	}

	outputHandler, err := output.NewHandlerTo(viper.GetString("output"), cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to create output handler: %w", err)
	}
	defer outputHandler.Close()

	events := make(chan transfer.Entry, 100)
	engineCfg := cfg.EngineConfig()
	engineCfg.AutoStart = true

	client := transport.NewRetrying(transport.NewClient(nil), cfg.Upload.RetryAttempts, cfg.Upload.RetryDelay)
	engine := transfer.New(ctx, engineCfg, client, transfer.Callbacks{
		OnChange: func(entry transfer.Entry) {
			switch entry.Status {
			case transfer.StatusSuccess, transfer.StatusError, transfer.StatusPaused:
				events <- entry
			default:
				select {
				case events <- entry:
				default:
					// Progress channel full, skip this update
				}
			}
		},
	})

	// The reader runs before admission: a blocked terminal send would
	// otherwise hold up every other notification.
	type outputs struct {
		summary transferSummary
		err     error
	}
	done := make(chan outputs, 1)
	go func() {
		summary, err := handleTransferOutputs(events, outputHandler, viper.GetBool("progress"))
		done <- outputs{summary: summary, err: err}
	}()

	added, rejected := engine.Add(source.Sources(found))

	go func() {
		engine.Wait()
		close(events)
	}()

	result := <-done
	if result.err != nil {
		return result.err
	}
	summary := result.summary

	if rejected != nil {
		if err := outputHandler.HandleRejected(rejected); err != nil {
			return err
		}
	}

	var batchErr error
	switch {
	case rejected != nil:
		batchErr = fmt.Errorf("%d of %d files rejected: %w", len(found)-len(added), len(found), rejected)
	case summary.failed > 0:
		batchErr = fmt.Errorf("%d of %d transfers failed", summary.failed, len(added))
	case summary.paused > 0:
		batchErr = fmt.Errorf("%d of %d transfers interrupted", summary.paused, len(added))
	}

	if batchErr != nil && cfg.Upload.RollbackOnFailure {
		remover := transfer.NewRemover(client, cfg.Endpoints.RemoveURL, transfer.RemoveMode(cfg.Upload.RemoveMode))
		left, err := rollbackTransfers(engine, remover, outputHandler)
		if err != nil {
			return err
		}
		if left > 0 {
			return fmt.Errorf("%w; rollback left %d uploaded files on the server", batchErr, left)
		}
	}
	return batchErr
}

// rollbackTransfers deletes the server copy of every successful entry and
// drops all entries from the engine. It returns how many copies could not be
// deleted.
func rollbackTransfers(engine *transfer.Engine, remover *transfer.Remover, outputHandler output.Handler) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	left := 0
	for _, entry := range engine.Entries() {
		if entry.Status != transfer.StatusSuccess {
			continue
		}
		err := remover.Remove(ctx, entry)
		if err != nil {
			left++
			logging.CleanupFailed(entry.ID, entry.File.Name, err)
		}
		if err := outputHandler.HandleRemoved(entry, err); err != nil {
			return left, err
		}
	}

	engine.Clear(ctx, false)
	return left, nil
}

type transferSummary struct {
	succeeded int
	failed    int
	paused    int
}

func handleTransferOutputs(events <-chan transfer.Entry, outputHandler output.Handler, showProgress bool) (summary transferSummary, err error) {
	defer func() {
		if err != nil {
			// Keep transfers from blocking on a reader that went away
			go func() {
				for range events {
				}
			}()
		}
	}()

	for entry := range events {
		switch entry.Status {
		case transfer.StatusUploading:
			if !showProgress {
				continue
			}
			if err := outputHandler.HandleProgress(entry); err != nil {
				return summary, err
			}
			continue
		case transfer.StatusSuccess:
			summary.succeeded++
		case transfer.StatusError:
			summary.failed++
		case transfer.StatusPaused:
			summary.paused++
		default:
			continue
		}

		if err := outputHandler.HandleResult(entry); err != nil {
			return summary, err
		}
	}

	return summary, nil
}
