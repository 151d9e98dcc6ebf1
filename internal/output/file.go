package output

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
)

const reportFilename = "report.json"

// FileWriter represents a writer that writes to a file
type FileWriter struct {
	*WriterConfig
	logger *slog.Logger
}

// NewFileWriter returns a new FileWriter
func NewFileWriter(wc *WriterConfig) (*FileWriter, error) {
	if wc.FileDir == "" {
		return nil, errors.New("filedir needs to be specified for the FileWriter")
	}

	if err := os.MkdirAll(wc.FileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", wc.FileDir, err)
	}

	return &FileWriter{
		WriterConfig: wc,
		logger:       slog.With(slog.String("writer", string(FILE_WRITER_TYPE))),
	}, nil
}

func (w *FileWriter) Write(r *Report) error {
	reportJSON, err := marshalReport(r)
	if err != nil {
		return fmt.Errorf("error while encoding report: %w", err)
	}
	filepath := path.Join(w.FileDir, reportFilename)
	if err := os.WriteFile(filepath, reportJSON, 0644); err != nil {
		return fmt.Errorf("error while writing report to file: %w", err)
	}
	w.logger.Info(fmt.Sprintf("wrote report with %d items to file %s", len(r.Logs), filepath))
	return nil
}
