package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// resetUploadFlags clears flag state left behind by a previous Execute
func resetUploadFlags() {
	files = nil
	folders = nil
	rollback = false
	removeURL = ""
	for _, name := range []string{"rollback-on-failure", "remove-url"} {
		if flag := uploadCmd.Flags().Lookup(name); flag != nil {
			flag.Changed = false
		}
	}
	if help := uploadCmd.Flags().Lookup("help"); help != nil {
		help.Value.Set("false")
	}
}

func TestUploadCommand_NoFlagsError(t *testing.T) {
	resetUploadFlags()
	root := rootCmd
	root.SetArgs([]string{"upload"})

	output := &bytes.Buffer{}
	root.SetErr(output)

	err := root.Execute()

	if err == nil {
		t.Errorf("expected error about missing files/folders, but got none")
		return
	}

	if !strings.Contains(err.Error(), "no files or folders specified") {
		t.Errorf("expected error containing 'no files or folders specified', but got: %v", err)
	}
}

func TestUploadCommand_SingleShot(t *testing.T) {
	resetUploadFlags()

	var (
		mu       sync.Mutex
		received []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, header.Filename)
		mu.Unlock()
		fmt.Fprintf(w, `{"success":true,"message":"ok","data":{"id":"1","filePath":"/up/%s"}}`, header.Filename)
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	out := &bytes.Buffer{}
	root := rootCmd
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"upload", "-f", path, "--upload-url", server.URL, "--progress=false", "-o", "json"})

	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out.String())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "hello.txt" {
		t.Errorf("expected one upload of hello.txt, got %v", received)
	}

	var result struct {
		Type   string `json:"type"`
		Status string `json:"status"`
	}
	line := strings.TrimSpace(out.String())
	if err := json.Unmarshal([]byte(line), &result); err != nil {
		t.Fatalf("expected a single JSON result line, got %q: %v", line, err)
	}
	if result.Type != "result" || result.Status != "success" {
		t.Errorf("expected a success result, got %+v", result)
	}
}

func TestUploadCommand_FailedTransfer(t *testing.T) {
	resetUploadFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"success":false,"message":"storage offline"}`)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	out := &bytes.Buffer{}
	root := rootCmd
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"upload", "-f", path, "--upload-url", server.URL, "--progress=false", "-o", "text"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "1 of 1 transfers failed") {
		t.Errorf("expected a failed transfer error, got %v", err)
	}
	if !strings.Contains(out.String(), "ERROR a.txt: storage offline") {
		t.Errorf("expected the failure to be printed, got %q", out.String())
	}
}

func TestUploadCommand_RollbackOnFailure(t *testing.T) {
	resetUploadFlags()
	defer resetUploadFlags()

	var (
		mu      sync.Mutex
		removed []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if header.Filename == "bad.txt" {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"success":false,"message":"disk full"}`)
			return
		}
		fmt.Fprintf(w, `{"success":true,"message":"ok","data":{"id":"srv-%s","filePath":"/up/%s"}}`, header.Filename, header.Filename)
	})
	mux.HandleFunc("/remove", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FileID string `json:"fileId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		removed = append(removed, body.FileID)
		mu.Unlock()
		fmt.Fprint(w, `{"success":true,"message":"deleted","data":true}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	for _, name := range []string{"good.txt", "bad.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}

	out := &bytes.Buffer{}
	root := rootCmd
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"upload", "-d", dir,
		"--upload-url", server.URL + "/upload",
		"--remove-url", server.URL + "/remove",
		"--rollback-on-failure",
		"--progress=false", "-o", "text"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "1 of 2 transfers failed") {
		t.Errorf("expected a failed transfer error, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(removed) != 1 || removed[0] != "srv-good.txt" {
		t.Errorf("expected only good.txt to be removed, got %v", removed)
	}
	for _, line := range []string{"ERROR bad.txt: disk full", "REMOVED good.txt"} {
		if !strings.Contains(out.String(), line) {
			t.Errorf("expected output to contain %q, got %q", line, out.String())
		}
	}
}

func TestUploadCommand_RollbackNeedsRemoveURL(t *testing.T) {
	resetUploadFlags()
	defer resetUploadFlags()

	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	root := rootCmd
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"upload", "-f", path, "--upload-url", "http://127.0.0.1:1/upload", "--rollback-on-failure"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "endpoints.remove_url") {
		t.Errorf("expected a configuration error about the remove url, got %v", err)
	}
}

func TestUploadCommand_HelpText(t *testing.T) {
	resetUploadFlags()
	buf := new(bytes.Buffer)
	root := rootCmd
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"upload", "--help"})

	err := root.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	helpText := buf.String()
	expectedFlags := []string{
		"--file", "-f",
		"--folder", "-d",
		"--chunked",
		"--chunk-size",
		"--upload-url",
		"--merge-url",
		"--remove-url",
		"--rollback-on-failure",
		"glob patterns",
	}

	for _, flag := range expectedFlags {
		if !strings.Contains(helpText, flag) {
			t.Errorf("help text should contain %s, but didn't. Full help:\n%s", flag, helpText)
		}
	}
}

func TestExpandGlobPatterns(t *testing.T) {
	// Create test files
	testFiles := []string{"test1.txt", "test2.txt", "other.log"}
	for _, file := range testFiles {
		f, err := os.Create(file)
		if err != nil {
			t.Fatalf("failed to create test file %s: %v", file, err)
		}
		f.Close()
	}
	defer func() {
		for _, file := range testFiles {
			os.Remove(file)
		}
	}()

	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{
			name:     "no glob patterns",
			patterns: []string{"test1.txt", "other.log"},
			expected: []string{"test1.txt", "other.log"},
		},
		{
			name:     "simple glob",
			patterns: []string{"test*.txt"},
			expected: []string{"test1.txt", "test2.txt"},
		},
		{
			name:     "mixed patterns",
			patterns: []string{"test*.txt", "other.log"},
			expected: []string{"test1.txt", "test2.txt", "other.log"},
		},
		{
			name:     "non-matching glob",
			patterns: []string{"*.nonexistent"},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := expandGlobPatterns(tt.patterns)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			resultStr := strings.Join(result, ",")
			expectedStr := strings.Join(tt.expected, ",")

			if resultStr != expectedStr {
				t.Errorf("expected %s, got %s", expectedStr, resultStr)
			}
		})
	}
}

func TestValidatePaths(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test_validation.txt")
	testDir := filepath.Join(t.TempDir(), "test_validation_dir")

	if err := os.WriteFile(testFile, nil, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := os.Mkdir(testDir, 0755); err != nil {
		t.Fatalf("failed to create test directory: %v", err)
	}

	tests := []struct {
		name        string
		files       []string
		folders     []string
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid file and directory",
			files:       []string{testFile},
			folders:     []string{testDir},
			expectError: false,
		},
		{
			name:        "nonexistent file",
			files:       []string{"/nonexistent/file.txt"},
			folders:     []string{},
			expectError: true,
			errorMsg:    "file does not exist",
		},
		{
			name:        "nonexistent directory",
			files:       []string{},
			folders:     []string{"/nonexistent/dir"},
			expectError: true,
			errorMsg:    "directory does not exist",
		},
		{
			name:        "directory as file",
			files:       []string{testDir},
			folders:     []string{},
			expectError: true,
			errorMsg:    "is a directory, but --file flag requires a file",
		},
		{
			name:        "file as directory",
			files:       []string{},
			folders:     []string{testFile},
			expectError: true,
			errorMsg:    "is a file, but --folder/-d flag requires a directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePaths(tt.files, tt.folders)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error containing '%s', but got none", tt.errorMsg)
					return
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing '%s', but got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("expected no error, but got: %v", err)
				}
			}
		})
	}
}
