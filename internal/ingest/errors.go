package ingest

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Error taxonomy of an ingestion run. Only ErrSourceUnavailable aborts a run;
// everything else is counted in the report.
var (
	ErrSourceUnavailable   = eris.New("source unavailable")
	ErrEntryDecode         = eris.New("entry decode failed")
	ErrUnresolvedCompany   = eris.New("no matching company")
	ErrNoExtractableData   = eris.New("no extractable data")
	ErrPersistence         = eris.New("persistence failure")
	ErrFailureRateExceeded = eris.New("decode failure rate exceeded")
)

// EntryError reports a corrupt or malformed archive entry.
type EntryError struct {
	Entry string
	Err   error
}

func (e *EntryError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("decode entry: %v", e.Err)
	}
	return fmt.Sprintf("decode entry %s: %v", e.Entry, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// Is makes every EntryError match ErrEntryDecode.
func (e *EntryError) Is(target error) bool { return target == ErrEntryDecode }

// SourceError reports an archive or ticker source that could not be read. It
// matches ErrSourceUnavailable and unwraps to the underlying cause.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("source unavailable: %v", e.Err)
	}
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Is makes every SourceError match ErrSourceUnavailable.
func (e *SourceError) Is(target error) bool { return target == ErrSourceUnavailable }
