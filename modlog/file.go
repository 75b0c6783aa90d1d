package modlog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// FileStore keeps every community's ledger in one flat JSON file,
// rewritten wholesale on each mutation. Suitable for low write volume.
type FileStore struct {
	path string
	// doc caches each community's encoded ledger so a save only
	// re-encodes the mutated community.
	doc map[string]jsontext.Value
}

// OpenFile opens a ledger file, creating it empty if absent.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, doc: make(map[string]jsontext.Value)}
	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("couldn't read ledger file: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.doc); err != nil {
		return nil, fmt.Errorf("couldn't decode ledger file %s: %w", path, err)
	}
	return s, nil
}

// Load implements [Store].
func (s *FileStore) Load(ctx context.Context) (map[string]map[int]*Case, error) {
	all := make(map[string]map[int]*Case, len(s.doc))
	for community, v := range s.doc {
		cases, err := unmarshalCases(community, v)
		if err != nil {
			return nil, err
		}
		all[community] = cases
	}
	return all, nil
}

// Save implements [Store].
func (s *FileStore) Save(ctx context.Context, community string, cases map[int]*Case) error {
	b, err := marshalCases(cases)
	if err != nil {
		return err
	}
	s.doc[community] = b
	return s.write()
}

// Reset implements [Store].
func (s *FileStore) Reset(ctx context.Context, community string) error {
	// A reset community stays in the document as an empty object.
	s.doc[community] = jsontext.Value("{}")
	return s.write()
}

// Close implements [Store].
func (s *FileStore) Close() error { return nil }

// write rewrites the whole file through a temporary so a crash cannot
// leave a half-written ledger.
func (s *FileStore) write() error {
	keys := make([]string, 0, len(s.doc))
	for k := range s.doc {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(s.doc[k])
	}
	buf.WriteByte('}')
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".modlog-*")
	if err != nil {
		return fmt.Errorf("couldn't create ledger temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("couldn't write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("couldn't write ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("couldn't replace ledger file: %w", err)
	}
	return nil
}
