package exportlog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/open-condo-software/gitexporter/pkg/persist"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by Load when no log file exists.
	ErrNotFound = errors.New("export log not found")
	// ErrInvalid is returned when the log does not match the schema.
	ErrInvalid = errors.New("export log is invalid")
	// ErrUnsupportedVersion is returned for logs written by a newer format.
	ErrUnsupportedVersion = errors.New("export log version is not supported")
)

//go:embed schema.json
var schemaJSON []byte

// Store reads and writes the export log file.
type Store struct {
	persister *persist.Persister[Document]
	codec     persist.Codec
	schema    gojsonschema.JSONLoader
}

// NewStore creates a store for the log at path.
func NewStore(path string) *Store {
	codec := persist.NewJSONCodec()

	return &Store{
		persister: persist.NewPersister[Document](path, codec),
		codec:     codec,
		schema:    gojsonschema.NewBytesLoader(schemaJSON),
	}
}

// Path returns the log file location.
func (s *Store) Path() string {
	return s.persister.Path()
}

// Exists reports whether a log file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())

	return err == nil
}

// Load reads and validates the log.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path())
	}

	if err != nil {
		return nil, fmt.Errorf("read export log: %w", err)
	}

	err = s.validate(data)
	if err != nil {
		return nil, err
	}

	doc := New()

	err = s.codec.Decode(bytes.NewReader(data), doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, s.Path(), err)
	}

	if doc.Version > Version {
		return nil, fmt.Errorf("%w: %d (supported up to %d)", ErrUnsupportedVersion, doc.Version, Version)
	}

	if doc.Commits == nil {
		doc.Commits = []Commit{}
	}

	return doc, nil
}

func (s *Store) validate(data []byte) error {
	result, err := gojsonschema.Validate(s.schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, s.Path(), err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		problems = append(problems, verr.Field()+": "+verr.Description())
	}

	return fmt.Errorf("%w: %s: %s", ErrInvalid, s.Path(), strings.Join(problems, "; "))
}

// Save atomically replaces the log with doc.
func (s *Store) Save(doc *Document) error {
	doc.Version = Version

	return s.persister.Save(doc)
}

// Remove deletes the log file; a missing file is not an error.
func (s *Store) Remove() error {
	err := os.Remove(s.Path())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove export log: %w", err)
	}

	return nil
}
