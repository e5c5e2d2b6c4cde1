// Package badgerstore is the embedded storage driver: the address directory,
// deposit ledger and scan cursors in one Badger database.
package badgerstore

import (
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/dgraph-io/badger/v4"
)

const (
	maxConflictRetries = 8
	sequenceBandwidth  = 100

	// Encrypted tables need an index cache; badger keeps indices on heap otherwise.
	encryptedIndexCacheSize = 64 << 20
)

// Key layout. User ids are hex encoded so that prefix scans never bleed
// from one user into another.
const (
	prefixAddress    = "addr/"
	prefixDepositRef = "dep/ref/"
	prefixDepositBy  = "dep/user/"
	prefixCursor     = "cursor/"
	keyDepositSeq    = "seq/deposits"
	keySchemaVersion = "meta/schema_version"
)

type Options struct {
	Path     string
	InMemory bool

	// EncryptionKey enables AES encryption at rest; 16, 24 or 32 bytes.
	EncryptionKey []byte
}

type Store struct {
	db       *badger.DB
	sequence *badger.Sequence
}

func Open(options Options) (*Store, error) {
	path := strings.TrimSpace(options.Path)
	badgerOptions := badger.DefaultOptions(path).WithLogger(nil)
	if options.InMemory {
		badgerOptions = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else if path == "" {
		return nil, fmt.Errorf("badger path is required")
	}
	if len(options.EncryptionKey) > 0 {
		badgerOptions = badgerOptions.
			WithEncryptionKey(options.EncryptionKey).
			WithIndexCacheSize(encryptedIndexCacheSize)
	}

	db, err := badger.Open(badgerOptions)
	if err != nil {
		if stderrors.Is(err, badger.ErrEncryptionKeyMismatch) {
			return nil, fmt.Errorf("database at %s was written with a different encryption key: %w", path, err)
		}
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("database at %s is locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}

	sequence, err := db.GetSequence([]byte(keyDepositSeq), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open deposit sequence: %w", err)
	}

	return &Store{db: db, sequence: sequence}, nil
}

func (s *Store) Close() error {
	releaseErr := s.sequence.Release()
	closeErr := s.db.Close()
	return stderrors.Join(releaseErr, closeErr)
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction touched the same keys.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getJSON(txn *badger.Txn, key []byte, out any) (bool, error) {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, encoded)
}

func forEachJSON(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func encodeUser(userID string) string {
	return hex.EncodeToString([]byte(userID))
}

func addressKey(chain valueobjects.Chain, userID string) []byte {
	return []byte(prefixAddress + chain.String() + "/" + encodeUser(userID))
}

func addressChainPrefix(chain valueobjects.Chain) []byte {
	return []byte(prefixAddress + chain.String() + "/")
}

func depositRefKey(chain valueobjects.Chain, txRef string) []byte {
	return []byte(prefixDepositRef + chain.String() + "/" + txRef)
}

func depositUserPrefix(userID string) []byte {
	return []byte(prefixDepositBy + encodeUser(userID) + "/")
}

func depositUserKey(userID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", depositUserPrefix(userID), seq))
}

func cursorKey(chain valueobjects.Chain) []byte {
	return []byte(prefixCursor + chain.String())
}

func storageError(code string, message string, err error, details map[string]any) *apperrors.AppError {
	merged := map[string]any{"error": err.Error()}
	for key, value := range details {
		merged[key] = value
	}
	if stderrors.Is(err, badger.ErrDBClosed) {
		return apperrors.NewUnavailable("storage_closed", "storage is closed", merged)
	}
	return apperrors.NewInternal(code, message, merged)
}

func decodeJSON(val []byte, out any) error {
	return json.Unmarshal(val, out)
}
