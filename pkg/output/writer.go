package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Writer emits JSONL records for a description run.
//
// Implementations must be safe for concurrent use. Each Write* method
// emits a complete record as a single line of JSON followed by a newline,
// flushed before returning.
type Writer interface {
	// WriteDescription emits a description record.
	WriteDescription(rec *DescriptionRecord) error

	// WriteFailure emits a failure record.
	WriteFailure(rec *FailureRecord) error

	// WriteSummary emits a summary record.
	WriteSummary(rec *SummaryRecord) error

	// Close flushes and closes the writer.
	Close() error
}

// FileWriter appends envelope records to a JSONL file.
type FileWriter struct {
	mu       sync.Mutex
	f        *os.File
	runID    string
	provider string
	closed   bool
}

var _ Writer = (*FileWriter)(nil)

// NewFileWriter opens (creating if needed) the records file at path for
// appending. runID and provider stamp every envelope.
func NewFileWriter(path, runID, provider string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &WriteError{Op: "open", Err: err}
	}
	return &FileWriter{f: f, runID: runID, provider: provider}, nil
}

// WriteDescription emits a description record.
func (w *FileWriter) WriteDescription(rec *DescriptionRecord) error {
	return w.write(TypeDescription, rec)
}

// WriteFailure emits a failure record.
func (w *FileWriter) WriteFailure(rec *FailureRecord) error {
	return w.write(TypeFailure, rec)
}

// WriteSummary emits a summary record.
func (w *FileWriter) WriteSummary(rec *SummaryRecord) error {
	return w.write(TypeSummary, rec)
}

// Close closes the underlying file. Subsequent writes fail with
// ErrWriterClosed.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}

func (w *FileWriter) write(recType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	env := Record{
		Type:     recType,
		TS:       time.Now().UTC(),
		RunID:    w.runID,
		Provider: w.provider,
		Data:     data,
	}
	line, err := json.Marshal(env)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if _, err := w.f.Write(line); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	if err := w.f.Sync(); err != nil {
		return &WriteError{Op: "sync", Err: err}
	}
	return nil
}

// ReadRecords reads all envelope records from a JSONL file, for report
// generation and tests.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &WriteError{Op: "read", Err: err}
	}

	var records []Record
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, &WriteError{Op: "decode", Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Descriptions filters and decodes description payloads from records.
func Descriptions(records []Record) ([]DescriptionRecord, error) {
	var out []DescriptionRecord
	for _, rec := range records {
		if rec.Type != TypeDescription {
			continue
		}
		var d DescriptionRecord
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			return nil, fmt.Errorf("decode description record: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}
