// Package output provides the interface and configuration and implementation for writers
// of run reports.
package output

import (
	"fmt"
	"time"

	"github.com/jakopako/contactwalker/internal/types"
)

// Writer defines the interface for all writers that are responsible
// for writing the report of a finished run to a specific output.
type Writer interface {
	Write(r *Report) error
}

// WriterConfig defines the necessary paramters to make a new writer
// which is responsible for writing the run report to a specific output
// eg. stdout.
type WriterConfig struct {
	Type     WriterType `yaml:"type" env:"WRITER_TYPE" env-default:"stdout"`
	Uri      string     `yaml:"uri" env:"WRITER_URI"`
	User     string     `yaml:"user" env:"WRITER_USER"`         // we want to be able to pass credentials via env vars
	Password string     `yaml:"password" env:"WRITER_PASSWORD"` // we want to be able to pass credentials via env vars
	FileDir  string     `yaml:"filedir" env:"WRITER_FILEDIR"`
}

// WriterType encapsulates the type of a writer
// See below constants for possible types
type WriterType string

const (
	STDOUT_WRITER_TYPE WriterType = "stdout"
	FILE_WRITER_TYPE   WriterType = "file"
	API_WRITER_TYPE    WriterType = "api"
)

// NewWriter returns a new writer depending on the writer type
func NewWriter(wc *WriterConfig) (Writer, error) {
	switch wc.Type {
	case STDOUT_WRITER_TYPE:
		return NewStdoutWriter(wc), nil
	case FILE_WRITER_TYPE:
		return NewFileWriter(wc)
	case API_WRITER_TYPE:
		return NewAPIWriter(wc)
	default:
		return nil, fmt.Errorf("writer of type '%s' not implemented", wc.Type)
	}
}

// Summary counts the item outcomes of a run.
type Summary struct {
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Error   int `json:"error"`
}

func (s Summary) Total() int {
	return s.Success + s.Skipped + s.Error
}

// Report is the record of one run as it is written by the writers.
type Report struct {
	RunID      string           `json:"runId"`
	StartURL   string           `json:"startUrl"`
	Pages      int              `json:"pagesToProcess"`
	Status     string           `json:"status"`
	Stopped    bool             `json:"stopped"`
	StartedAt  *time.Time       `json:"startedAt,omitempty"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	Summary    Summary          `json:"summary"`
	Logs       []types.LogEntry `json:"logs"`
}

// NewReport builds the report of the run described by rc and its final state.
func NewReport(rc types.RunConfig, s types.State) *Report {
	r := &Report{
		RunID:      s.RunID,
		StartURL:   rc.StartURL,
		Pages:      rc.Pages,
		Status:     s.Status,
		Stopped:    s.Stopped,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Logs:       s.Logs,
	}
	if r.Logs == nil {
		r.Logs = []types.LogEntry{}
	}
	for _, l := range r.Logs {
		switch l.Status {
		case types.StatusSuccess:
			r.Summary.Success++
		case types.StatusSkipped:
			r.Summary.Skipped++
		default:
			r.Summary.Error++
		}
	}
	return r
}
