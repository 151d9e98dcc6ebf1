package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// StdoutWriter represents a writer that writes to stdout
type StdoutWriter struct {
	out    io.Writer
	logger *slog.Logger
}

// NewStdoutWriter returns a new StdoutWriter
func NewStdoutWriter(wc *WriterConfig) *StdoutWriter {
	return &StdoutWriter{
		out:    os.Stdout,
		logger: slog.With(slog.String("writer", string(STDOUT_WRITER_TYPE))),
	}
}

func (w *StdoutWriter) Write(r *Report) error {
	reportJSON, err := marshalReport(r)
	if err != nil {
		return fmt.Errorf("error while encoding report: %w", err)
	}
	w.logger.Debug(fmt.Sprintf("printing report of run %s", r.RunID))
	_, err = w.out.Write(reportJSON)
	return err
}
