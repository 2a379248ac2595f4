// Package catalog stores known product names keyed by the abbreviations printed on receipts.
// A catalog can serve as the caller-supplied verification strategy of an extraction.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/receipt-items/internal/receipt"
)

const productsBucket = "products"

// ErrEmptyProduct is returned when an abbreviation or name is blank
var ErrEmptyProduct = errors.New("abbreviation and name are required")

// Product maps a receipt abbreviation to the full product name
type Product struct {
	Abbreviation string `json:"abbreviation"`
	Name         string `json:"name"`
}

// BoltCatalog implements a product catalog using BoltDB
type BoltCatalog struct {
	db *bbolt.DB
}

// NewBoltCatalog opens or creates a catalog database
func NewBoltCatalog(path string) (*BoltCatalog, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(productsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltCatalog{db: db}, nil
}

func normalizeKey(abbreviation string) string {
	return strings.ToUpper(strings.TrimSpace(abbreviation))
}

func putProduct(bucket *bbolt.Bucket, abbreviation, name string) error {
	key := normalizeKey(abbreviation)
	name = strings.TrimSpace(name)
	if key == "" || name == "" {
		return ErrEmptyProduct
	}

	data, err := json.Marshal(Product{Abbreviation: key, Name: name})
	if err != nil {
		return fmt.Errorf("marshaling product: %w", err)
	}
	return bucket.Put([]byte(key), data)
}

// Put saves a product under its abbreviation
func (c *BoltCatalog) Put(abbreviation, name string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return putProduct(tx.Bucket([]byte(productsBucket)), abbreviation, name)
	})
}

// Import saves every product in one transaction and returns the number saved
func (c *BoltCatalog) Import(products map[string]string) (int, error) {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productsBucket))
		for abbreviation, name := range products {
			if err := putProduct(bucket, abbreviation, name); err != nil {
				return fmt.Errorf("importing %q: %w", abbreviation, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(products), nil
}

// List returns all products in abbreviation order
func (c *BoltCatalog) List() ([]Product, error) {
	products := make([]Product, 0)
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(productsBucket)).ForEach(func(k, v []byte) error {
			var product Product
			if err := json.Unmarshal(v, &product); err != nil {
				return fmt.Errorf("unmarshaling product: %w", err)
			}
			products = append(products, product)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Lookup finds the product name for a receipt name: an exact abbreviation match first,
// then the first product whose abbreviation or name contains it.
func (c *BoltCatalog) Lookup(name string) (string, bool, error) {
	key := normalizeKey(name)
	if key == "" {
		return "", false, nil
	}

	var found string
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productsBucket))

		if data := bucket.Get([]byte(key)); data != nil {
			var product Product
			if err := json.Unmarshal(data, &product); err != nil {
				return fmt.Errorf("unmarshaling product: %w", err)
			}
			found = product.Name
			return nil
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var product Product
			if err := json.Unmarshal(v, &product); err != nil {
				return fmt.Errorf("unmarshaling product: %w", err)
			}
			if strings.Contains(string(k), key) || strings.Contains(strings.ToUpper(product.Name), key) {
				found = product.Name
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return found, found != "", nil
}

// Verify implements receipt.Verifier. Names without a different catalog match stay unresolved.
func (c *BoltCatalog) Verify(ctx context.Context, name string, vc receipt.VerificationContext) (*receipt.VerificationResult, error) {
	verified, ok, err := c.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("looking up %q: %w", name, err)
	}
	if !ok || verified == name {
		return nil, nil
	}
	return &receipt.VerificationResult{VerifiedName: verified}, nil
}

// Close closes the database connection
func (c *BoltCatalog) Close() error {
	return c.db.Close()
}
