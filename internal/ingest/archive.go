package ingest

import (
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rotisserie/eris"
)

// Archive is a company facts ZIP opened from local disk. Only the central
// directory is read up front; entries are inflated one at a time.
type Archive struct {
	rc      *zip.ReadCloser
	entries []Entry
}

// Entry is one JSON document inside the archive.
type Entry struct {
	Name string
	file *zip.File
}

// OpenArchive opens a ZIP archive. Failure is a *SourceError.
func OpenArchive(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, &SourceError{Source: path, Err: eris.Wrap(err, "opening archive")}
	}
	a := &Archive{rc: rc}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".json") {
			continue
		}
		a.entries = append(a.entries, Entry{Name: f.Name, file: f})
	}
	return a, nil
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Len is the number of JSON entries.
func (a *Archive) Len() int { return len(a.entries) }

// Entries lists the JSON entries in archive order.
func (a *Archive) Entries() []Entry { return a.entries }

// Batches splits the entries into sub-batches of at most size entries. A
// positive limit caps the total number of entries returned.
func (a *Archive) Batches(size, limit int) [][]Entry {
	entries := a.entries
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	if size <= 0 {
		size = len(entries)
	}
	var out [][]Entry
	for start := 0; start < len(entries); start += size {
		end := min(start+size, len(entries))
		out = append(out, entries[start:end])
	}
	return out
}

// Read returns the raw bytes of the entry. Entries may be read concurrently.
func (e Entry) Read() ([]byte, error) {
	r, err := e.file.Open()
	if err != nil {
		return nil, &EntryError{Entry: e.Name, Err: err}
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &EntryError{Entry: e.Name, Err: err}
	}
	return data, nil
}

// Decode reads and parses the entry. Failures match ErrEntryDecode.
func (e Entry) Decode() (*CompanyFacts, error) {
	data, err := e.Read()
	if err != nil {
		return nil, err
	}
	cf, err := DecodeCompanyFacts(data)
	if err != nil {
		var ee *EntryError
		if errors.As(err, &ee) {
			ee.Entry = e.Name
		}
		return nil, err
	}
	return cf, nil
}
