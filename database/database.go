package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cufee/botto-moderator/config"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Document names
const (
	MessageCountsDoc = "messageCounts"
	WarnCountsDoc    = "warnCounts"
	LogChannelsDoc   = "logChannels"
	MuteConfigDoc    = "muteConfig"
	MutesDoc         = "mutes"
)

// Documents - Every document the bot persists, in backup order
var Documents = []string{MessageCountsDoc, WarnCountsDoc, LogChannelsDoc, MuteConfigDoc, MutesDoc}

var (
	ErrNotFound = errors.New("document not found")
	ErrCorrupt  = errors.New("document is not valid JSON")
)

const documentsBucket = "documents"

// Store - Durable named JSON documents
type Store interface {
	// Load decodes the named document into v. Returns ErrNotFound when the
	// document does not exist and ErrCorrupt when it cannot be decoded.
	Load(name string, v any) error
	// Save encodes v and overwrites the named document before returning.
	Save(name string, v any) error
	Close() error
}

// Open - Open the store selected by the storage config
func Open(cfg config.Storage) (Store, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		s, err := NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendFile:
		s, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Backend)
	}
}

// LoadOrDefault - Load a document, falling back to def when it is missing or corrupt
func LoadOrDefault[T any](store Store, name string, def func() T, logger *zap.Logger) T {
	v := def()
	err := store.Load(name, &v)
	switch {
	case err == nil:
		return v
	case errors.Is(err, ErrNotFound):
		return def()
	default:
		logger.Error("Failed to load document, starting from defaults",
			zap.String("document", name),
			zap.Error(err))
		return def()
	}
}

func encode(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func decode(name string, data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrCorrupt, name)
	}
	// null decodes without error into a nil map
	if bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: %s is null", ErrCorrupt, name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return nil
}

// FileStore - One pretty-printed JSON file per document
type FileStore struct {
	dir string
}

// NewFileStore - Open a file store rooted at dir, creating it if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path - File backing the named document
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load - Read and decode a document file
func (s *FileStore) Load(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return decode(name, data, v)
}

// Save - Encode a document and replace its file
func (s *FileStore) Save(name string, v any) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	// Write next to the target so the rename stays on one filesystem
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

// Close - Nothing to release for plain files
func (s *FileStore) Close() error {
	return nil
}

// BoltStore - Documents kept as JSON values in a single bolt bucket
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore - Open or create the bolt database at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(documentsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Load - Decode a document from the bucket
func (s *BoltStore) Load(name string, v any) error {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(documentsBucket))
		if b == nil {
			return ErrNotFound
		}
		value := b.Get([]byte(name))
		if value == nil {
			return ErrNotFound
		}
		// Values are only valid for the life of the transaction
		data = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return err
	}
	return decode(name, data, v)
}

// Save - Encode a document and put it in the bucket
func (s *BoltStore) Save(name string, v any) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(documentsBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
}

// Close - Close the bolt database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
