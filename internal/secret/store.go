// Package secret persists account credentials in a bbolt database that only
// the current user can read.
package secret

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/quasar/mcauth/internal/core"
)

const (
	dirPerm     = fs.FileMode(0o700)
	filePerm    = fs.FileMode(0o600)
	openTimeout = 5 * time.Second

	// FileName is the database file inside the data directory.
	FileName = "credentials.db"
)

var credentialsBucket = []byte("credentials")

// Store maps Minecraft profile ids to their cached credential chain.
type Store struct {
	db *bolt.DB
}

// Open opens the credential database in dataDir, creating it if needed.
func Open(dataDir string) (*Store, error) {
	return OpenAt(filepath.Join(dataDir, FileName))
}

// OpenAt opens the credential database at path.
func OpenAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating credential directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening credential db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing credential db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Read returns the credentials stored for id, or nil if there are none.
func (s *Store) Read(id uuid.UUID) (*core.AccountCredentials, error) {
	var creds *core.AccountCredentials

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credentialsBucket).Get(id[:])
		if v == nil {
			return nil
		}

		creds = &core.AccountCredentials{}
		return json.Unmarshal(v, creds)
	})
	if err != nil {
		return nil, fmt.Errorf("reading credentials for %s: %w", id, err)
	}

	return creds, nil
}

// Write replaces the credentials stored for id.
func (s *Store) Write(id uuid.UUID, creds *core.AccountCredentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put(id[:], data)
	})
}

// Delete removes the credentials stored for id. Deleting a missing entry
// is not an error.
func (s *Store) Delete(id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete(id[:])
	})
}

// IDs lists every profile id with stored credentials.
func (s *Store) IDs() ([]uuid.UUID, error) {
	var ids []uuid.UUID

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).ForEach(func(k, _ []byte) error {
			id, err := uuid.FromBytes(k)
			if err != nil {
				return nil
			}
			ids = append(ids, id)
			return nil
		})
	})

	return ids, err
}
