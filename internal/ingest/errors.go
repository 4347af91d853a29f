// Package ingest validates raw input documents and turns them into typed
// readings and learning batches.
//
// Parsers never default a missing or malformed field. Each rejected record
// is reported as a ParseError and the remaining valid records are returned.
package ingest

import (
	"fmt"
	"strings"
)

// Source names used in parse errors
const (
	SourceEntries    = "entries"
	SourceTreatments = "treatments"
	SourceRecords    = "records"
	SourceBatch      = "batch"
	SourceMedication = "medication"
)

// ParseError describes one rejected record
type ParseError struct {
	Source string // Document kind
	Index  int    // Position of the record in the document
	Field  string // Offending field, empty for whole-record errors
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s[%d]: %s", e.Source, e.Index, e.Reason)
	}
	return fmt.Sprintf("%s[%d].%s: %s", e.Source, e.Index, e.Field, e.Reason)
}

// Errors collects the parse errors of one document
type Errors []*ParseError

func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "no parse errors"
	case 1:
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d records rejected: %s", len(e), strings.Join(msgs, "; "))
}

// Err returns nil when no records were rejected
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e *Errors) add(source string, index int, field, reason string) {
	*e = append(*e, &ParseError{Source: source, Index: index, Field: field, Reason: reason})
}
