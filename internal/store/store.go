package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/invoicecraft/studio/internal/apperr"
	"github.com/invoicecraft/studio/internal/invoice"
	"github.com/invoicecraft/studio/internal/metrics"
)

// DefaultKey is the namespaced key the invoice collection is stored under.
const DefaultKey = "invoice-craft-invoices"

var (
	// ErrCorruptCollection marks a stored payload that could not be decoded.
	// Reads degrade to an empty collection and report it as a warning.
	ErrCorruptCollection = errors.New("stored invoice collection is corrupt")
	ErrStoreClosed       = errors.New("store is not open")
)

// LoadResult is the outcome of reading the whole collection. Warning is set
// (wrapping ErrCorruptCollection) when the payload was unreadable and the
// collection was treated as empty.
type LoadResult struct {
	Invoices []invoice.Invoice
	Warning  error
}

// Store is the invoice repository. Every mutation reads the full collection,
// changes it in memory and writes the whole collection back under one key.
// Writes within a process are serialized; separate processes sharing a
// backend are last-writer-wins.
type Store struct {
	blobs  BlobStore
	key    string
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	opened bool
}

func NewStore(blobs BlobStore, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		blobs:  blobs,
		key:    key,
		logger: logger.With("component", "store", "key", key),
		now:    time.Now,
	}
}

// Key returns the collection key.
func (s *Store) Key() string { return s.key }

// Open probes the backend and makes the store usable. A corrupt payload does
// not fail Open; it is logged and reported again by Load.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	res, _, err := s.read(ctx)
	if err != nil {
		s.opened = false
		return err
	}
	s.logger.Info("store opened", "invoices", len(res.Invoices), "corrupt", res.Warning != nil)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	s.opened = false
	if err := s.blobs.Close(); err != nil {
		return apperr.NewStorage("store.Close", err)
	}
	return nil
}

// Load returns the full collection in storage order.
func (s *Store) Load(ctx context.Context) (LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, _, err := s.read(ctx)
	metrics.StoreOperations.WithLabelValues("load", metrics.Outcome(err)).Inc()
	return res, err
}

// List returns the collection in storage order. An unreadable payload yields
// an empty list without error; use Load to see the warning.
func (s *Store) List(ctx context.Context) ([]invoice.Invoice, error) {
	res, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return res.Invoices, nil
}

// Get returns the invoice with the given id or an apperr.NotFound error.
func (s *Store) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	list, err := s.List(ctx)
	if err != nil {
		return invoice.Invoice{}, err
	}
	for _, inv := range list {
		if inv.ID == id {
			return inv, nil
		}
	}
	return invoice.Invoice{}, apperr.NewNotFound("store.Get", fmt.Sprintf("invoice %q not found", id))
}

// Upsert replaces the invoice with the same id in place, or appends it.
func (s *Store) Upsert(ctx context.Context, inv invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, raw, err := s.read(ctx)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("upsert", "error").Inc()
		return err
	}
	list := res.Invoices
	replaced := false
	for i := range list {
		if list[i].ID == inv.ID {
			list[i] = inv
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, inv)
	}

	if res.Warning != nil {
		if err := s.backupCorrupt(ctx, raw); err != nil {
			metrics.StoreOperations.WithLabelValues("upsert", "error").Inc()
			return err
		}
	}
	err = s.write(ctx, "store.Upsert", list)
	metrics.StoreOperations.WithLabelValues("upsert", metrics.Outcome(err)).Inc()
	if err == nil {
		s.logger.Debug("invoice saved", "id", inv.ID, "replaced", replaced, "invoices", len(list))
	}
	return err
}

// Delete removes the invoice with the given id. Deleting an id that is not
// stored is a no-op and leaves the payload untouched.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, _, err := s.read(ctx)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("delete", "error").Inc()
		return err
	}
	kept := make([]invoice.Invoice, 0, len(res.Invoices))
	for _, inv := range res.Invoices {
		if inv.ID != id {
			kept = append(kept, inv)
		}
	}
	if len(kept) == len(res.Invoices) {
		metrics.StoreOperations.WithLabelValues("delete", "noop").Inc()
		return nil
	}
	err = s.write(ctx, "store.Delete", kept)
	metrics.StoreOperations.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	if err == nil {
		s.logger.Debug("invoice deleted", "id", id, "invoices", len(kept))
	}
	return err
}

// read must be called with mu held. It returns the raw payload alongside the
// decoded result so a corrupt payload can be backed up before overwrite.
func (s *Store) read(ctx context.Context) (LoadResult, []byte, error) {
	if !s.opened {
		return LoadResult{}, nil, apperr.NewStorage("store.read", ErrStoreClosed)
	}
	raw, err := s.blobs.Get(ctx, s.key)
	if errors.Is(err, ErrBlobNotFound) {
		metrics.StoreInvoices.Set(0)
		return LoadResult{Invoices: []invoice.Invoice{}}, nil, nil
	}
	if err != nil {
		return LoadResult{}, nil, apperr.NewStorage("store.read", err)
	}
	list, err := decodeCollection(raw)
	if err != nil {
		warning := fmt.Errorf("%w: %v", ErrCorruptCollection, err)
		metrics.StoreCorruptLoads.Inc()
		metrics.StoreInvoices.Set(0)
		s.logger.Warn("stored collection unreadable, treating as empty", "error", err, "bytes", len(raw))
		return LoadResult{Invoices: []invoice.Invoice{}, Warning: warning}, raw, nil
	}
	metrics.StoreInvoices.Set(float64(len(list)))
	return LoadResult{Invoices: list}, raw, nil
}

func (s *Store) write(ctx context.Context, op string, list []invoice.Invoice) error {
	body, err := encodeCollection(list)
	if err != nil {
		return apperr.NewStorage(op, fmt.Errorf("encode collection: %w", err))
	}
	if err := s.blobs.Put(ctx, s.key, body); err != nil {
		s.logger.Error("write collection failed", "op", op, "error", err)
		return apperr.NewStorage(op, err)
	}
	metrics.StoreInvoices.Set(float64(len(list)))
	return nil
}

func (s *Store) backupCorrupt(ctx context.Context, raw []byte) error {
	backupKey := fmt.Sprintf("%s.corrupt-%d", s.key, s.now().Unix())
	if err := s.blobs.Put(ctx, backupKey, raw); err != nil {
		s.logger.Error("backup of corrupt collection failed", "backup", backupKey, "error", err)
		return apperr.NewStorage("store.backup", err)
	}
	s.logger.Warn("corrupt collection backed up before overwrite", "backup", backupKey)
	return nil
}

func decodeCollection(raw []byte) ([]invoice.Invoice, error) {
	var list []invoice.Invoice
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	if list == nil {
		// a stored JSON null still reads as an empty collection
		list = []invoice.Invoice{}
	}
	return list, nil
}

func encodeCollection(list []invoice.Invoice) ([]byte, error) {
	if list == nil {
		list = []invoice.Invoice{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(list); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
