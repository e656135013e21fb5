package list

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

const (
	stateBucketName = "state"
	listKey         = "list"
	historyKey      = "price_history"

	// schemaVersion is written with every envelope; blobs with an unknown
	// version are read as empty rather than half-decoded.
	schemaVersion = 1
)

// DB defines the interface for list persistence
type DB interface {
	// LoadList returns the stored item sequence. Missing or undecodable
	// data yields an empty list, never an error.
	LoadList() ([]LineItem, error)

	// SaveList replaces the stored sequence wholesale
	SaveList(items []LineItem) error

	// LoadHistory returns the code → last unit price mapping
	LoadHistory() (map[string]decimal.Decimal, error)

	// RecordPrice merges one entry into the history. Calls with the
	// manual-entry sentinel are a no-op.
	RecordPrice(code string, price decimal.Decimal) error

	// Close closes the database connection
	Close() error
}

// listEnvelope is the persisted layout for the item sequence
type listEnvelope struct {
	Version int        `json:"version"`
	Items   []LineItem `json:"items"`
}

// historyEnvelope is the persisted layout for the price history
type historyEnvelope struct {
	Version int                        `json:"version"`
	Prices  map[string]decimal.Decimal `json:"prices"`
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(stateBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// LoadList returns the stored item sequence
func (b *BoltDB) LoadList() ([]LineItem, error) {
	items := make([]LineItem, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(stateBucketName)).Get([]byte(listKey))
		if data == nil {
			return nil
		}
		var env listEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("Discarding undecodable list data", "error", err)
			return nil
		}
		if env.Version != schemaVersion {
			slog.Warn("Discarding list data with unknown schema version", "version", env.Version)
			return nil
		}
		items = env.Items
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading list: %w", err)
	}
	if items == nil {
		items = make([]LineItem, 0)
	}
	return items, nil
}

// SaveList replaces the stored sequence wholesale
func (b *BoltDB) SaveList(items []LineItem) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(listEnvelope{Version: schemaVersion, Items: items})
		if err != nil {
			return fmt.Errorf("marshaling list: %w", err)
		}
		return tx.Bucket([]byte(stateBucketName)).Put([]byte(listKey), data)
	})
}

// LoadHistory returns the code → last unit price mapping
func (b *BoltDB) LoadHistory() (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(stateBucketName)).Get([]byte(historyKey))
		if data == nil {
			return nil
		}
		var env historyEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("Discarding undecodable price history", "error", err)
			return nil
		}
		if env.Version != schemaVersion {
			slog.Warn("Discarding price history with unknown schema version", "version", env.Version)
			return nil
		}
		if env.Prices != nil {
			prices = env.Prices
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return prices, nil
}

// RecordPrice merges one entry into the history
func (b *BoltDB) RecordPrice(code string, price decimal.Decimal) error {
	if code == ManualEntryCode {
		return nil
	}

	prices, err := b.LoadHistory()
	if err != nil {
		return err
	}
	prices[code] = price

	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(historyEnvelope{Version: schemaVersion, Prices: prices})
		if err != nil {
			return fmt.Errorf("marshaling history: %w", err)
		}
		return tx.Bucket([]byte(stateBucketName)).Put([]byte(historyKey), data)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
