// =============================================================================
// Simland HDX Scraper - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the scraper, including:
//   - Working folder management (temp, saved data, local output)
//   - Atomic file writes for downloads and saved copies
//   - Error log and run summary generation
//   - Cleanup of stale staged downloads
//
// FOLDER LAYOUT:
//   - temp_dir:   downloads staged for upload, error logs, run summaries
//   - saved_dir:  copies of fetched data kept for --use-saved replays
//   - output_dir: local data packages when publishing offline
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles the working folders of a run.
type FileManager struct {
	// TempDir is where downloads are staged and run logs are written.
	TempDir string

	// SavedDir keeps copies of fetched data for later replays.
	SavedDir string

	// OutputDir receives local data packages. Empty when uploading.
	OutputDir string
}

// NewFileManager creates a new FileManager.
func NewFileManager(tempDir, savedDir, outputDir string) *FileManager {
	return &FileManager{
		TempDir:   tempDir,
		SavedDir:  savedDir,
		OutputDir: outputDir,
	}
}

// EnsureDirectories creates every configured folder that does not exist.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.TempDir, fm.SavedDir, fm.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// TempPath returns the staged location of name.
func (fm *FileManager) TempPath(name string) string {
	return filepath.Join(fm.TempDir, name)
}

// SavedPath returns the saved-data location of name.
func (fm *FileManager) SavedPath(name string) string {
	return filepath.Join(fm.SavedDir, name)
}

// =============================================================================
// ATOMIC WRITES
// =============================================================================

// WriteFileAtomic streams r into dir/name through a temporary file in the same
// directory and renames it into place, replacing any existing file. A reader
// never observes a half-written file.
//
// RETURNS:
//   - The number of bytes written.
//   - An error if any step fails; the temporary file is always removed.
func WriteFileAtomic(dir, name string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return n, err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return n, err
	}

	_ = syncDirBestEffort(dir)
	return n, nil
}

func syncDirBestEffort(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// CopyFile copies src to dst atomically.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	_, err = WriteFileAtomic(filepath.Dir(dst), filepath.Base(dst), sourceFile)
	return err
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents a single error log entry.
type ErrorLogEntry struct {
	Timestamp time.Time
	Dataset   string
	Message   string
}

// WriteErrorLog writes error entries to a log file in outputDir.
//
// PARAMETERS:
//   - entries: The error entries to write.
//   - outputDir: The directory to write the log file.
//
// RETURNS:
//   - The path to the error log file, or "" when there is nothing to write.
//   - An error if writing fails.
func WriteErrorLog(entries []ErrorLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(outputDir, fmt.Sprintf("error_log_%s.txt", timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "Simland HDX Scraper - Error Log\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n", i+1)
		fmt.Fprintf(writer, "  Timestamp: %s\n", entry.Timestamp.Format("2006-01-02 15:04:05"))
		if entry.Dataset != "" {
			fmt.Fprintf(writer, "  Dataset:   %s\n", entry.Dataset)
		}
		fmt.Fprintf(writer, "  Message:   %s\n\n", entry.Message)
	}

	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}

	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a scraper run.
type ProcessingSummary struct {
	StartTime  time.Time
	EndTime    time.Time
	BatchID    string
	ReviewMode bool
	Total      int
	Published  int
	Skipped    int
	Failed     int
	Datasets   []DatasetInfo
}

// DatasetInfo is the outcome of one dataset.
type DatasetInfo struct {
	Name      string
	Status    string
	Resources int
	Message   string
	Duration  time.Duration
}

// WriteSummaryLog writes a processing summary to a log file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("processing_summary_%s.txt", timestamp))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	duration := summary.EndTime.Sub(summary.StartTime)
	fmt.Fprintf(writer, "Simland HDX Scraper - Processing Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Batch:          %s\n"+
		"  Review Mode:    %t\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n"+
		"Statistics:\n"+
		"  Total Datasets: %d\n"+
		"  Published:      %d\n"+
		"  Skipped:        %d\n"+
		"  Failed:         %d\n\n",
		summary.BatchID,
		summary.ReviewMode,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		duration.String(),
		summary.Total,
		summary.Published,
		summary.Skipped,
		summary.Failed)

	if len(summary.Datasets) > 0 {
		writer.WriteString("Datasets:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, ds := range summary.Datasets {
			fmt.Fprintf(writer, "  Name:      %s\n", ds.Name)
			fmt.Fprintf(writer, "  Status:    %s\n", ds.Status)
			fmt.Fprintf(writer, "  Resources: %d\n", ds.Resources)
			if ds.Message != "" {
				fmt.Fprintf(writer, "  Message:   %s\n", ds.Message)
			}
			fmt.Fprintf(writer, "  Duration:  %s\n\n", ds.Duration.String())
		}
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FileExists checks if a regular file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CleanOldFiles removes files under dir older than maxAge. Hidden temporary
// files left behind by interrupted atomic writes are included.
//
// RETURNS:
//   - The number of files removed.
//   - An error if cleaning fails.
func CleanOldFiles(dir string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})

	if err != nil {
		return removed, fmt.Errorf("failed to clean %s: %w", dir, err)
	}

	return removed, nil
}
