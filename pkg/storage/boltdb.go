package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pixperk/throttled/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var operationsBucket = []byte("operations")

// BoltDBJournal keeps the coordinator's registrations on disk
// key : operation key
// value : min interval in nanoseconds, big endian
type BoltDBJournal struct {
	db *bolt.DB
}

func NewBoltDBJournal(dataDir string) (*BoltDBJournal, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "registry.db")

	//another coordinator crashing with the file open must not wedge us forever
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(operationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltDBJournal{db: db}, nil
}

func (j *BoltDBJournal) SaveOperation(key string, cfg types.OperationConfig) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(cfg.MinInterval))

	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(operationsBucket).Put([]byte(key), value)
	})
}

func (j *BoltDBJournal) LoadOperations() (map[string]types.OperationConfig, error) {
	ops := make(map[string]types.OperationConfig)

	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(operationsBucket).ForEach(func(k, v []byte) error {
			//skip records we cannot decode rather than refusing to start
			if len(v) != 8 {
				return nil
			}
			ops[string(k)] = types.OperationConfig{
				MinInterval: time.Duration(binary.BigEndian.Uint64(v)),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return ops, nil
}

func (j *BoltDBJournal) Close() error {
	return j.db.Close()
}
