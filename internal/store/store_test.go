package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/invoicecraft/studio/internal/apperr"
	"github.com/invoicecraft/studio/internal/invoice"
)

var t0 = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T, blobs BlobStore) *Store {
	t.Helper()
	s := NewStore(blobs, "", discardLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sample(id, company string) invoice.Invoice {
	inv := invoice.New(t0)
	inv.ID = id
	inv.CompanyName = company
	return invoice.Recompute(inv)
}

func TestStore_EmptyCollection(t *testing.T) {
	s := openStore(t, NewMemoryBlobStore())
	res, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(res.Invoices) != 0 || res.Warning != nil {
		t.Fatalf("expected empty collection without warning, got %+v", res)
	}
}

func TestStore_UpsertReplacesExisting(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, NewMemoryBlobStore())

	if err := s.Upsert(ctx, sample("a", "Acme")); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.Upsert(ctx, sample("a", "Acme Inc")); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(list))
	}
	if list[0].ID != "a" || list[0].CompanyName != "Acme Inc" {
		t.Fatalf("unexpected record %+v", list[0])
	}
}

func TestStore_UpsertPreservesPosition(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, NewMemoryBlobStore())
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Upsert(ctx, sample(id, "Co "+id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	if err := s.Upsert(ctx, sample("b", "Changed")); err != nil {
		t.Fatalf("upsert b: %v", err)
	}
	list, _ := s.List(ctx)
	got := []string{list[0].ID, list[1].ID, list[2].ID}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("order changed: %v", got)
	}
	if list[1].CompanyName != "Changed" {
		t.Fatalf("expected b replaced in place, got %q", list[1].CompanyName)
	}
}

func TestStore_SizeDeltas(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, NewMemoryBlobStore())
	if err := s.Upsert(ctx, sample("a", "A")); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, sample("b", "B")); err != nil {
		t.Fatal(err)
	}
	list, _ := s.List(ctx)
	if len(list) != 2 {
		t.Fatalf("new id should grow by one, got %d", len(list))
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	list, _ = s.List(ctx)
	if len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("delete should shrink by one, got %+v", list)
	}
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	s := openStore(t, blobs)
	_ = s.Upsert(ctx, sample("a", "A"))
	_ = s.Upsert(ctx, sample("b", "B"))
	before, _ := blobs.Get(ctx, DefaultKey)
	metaBefore, _ := blobs.Head(ctx, DefaultKey)

	if err := s.Delete(ctx, "zzz"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	after, _ := blobs.Get(ctx, DefaultKey)
	metaAfter, _ := blobs.Head(ctx, DefaultKey)
	if !bytes.Equal(before, after) {
		t.Fatalf("payload changed:\nbefore %s\nafter  %s", before, after)
	}
	if !metaAfter.UpdatedAt.Equal(metaBefore.UpdatedAt) {
		t.Fatalf("expected no write for a missing id")
	}
	list, _ := s.List(ctx)
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("unexpected collection %+v", list)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := openStore(t, NewMemoryBlobStore())
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_GetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, NewMemoryBlobStore())
	want := sample("a", "Acme")
	if err := s.Upsert(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Total != want.Total || got.InvoiceNumber != want.InvoiceNumber || !got.DueDate.Time.Equal(want.DueDate.Time) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestStore_CorruptPayloadIsReported(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	_ = blobs.Put(ctx, DefaultKey, []byte("{not json"))
	s := openStore(t, blobs)

	res, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load should degrade, got %v", err)
	}
	if !errors.Is(res.Warning, ErrCorruptCollection) {
		t.Fatalf("expected corrupt warning, got %v", res.Warning)
	}
	if len(res.Invoices) != 0 {
		t.Fatalf("expected empty collection, got %d", len(res.Invoices))
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("list should stay graceful, got %v %v", list, err)
	}
}

func TestStore_CorruptPayloadBackedUpBeforeOverwrite(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	_ = blobs.Put(ctx, DefaultKey, []byte("garbage"))
	s := openStore(t, blobs)
	s.now = func() time.Time { return t0 }

	if err := s.Upsert(ctx, sample("a", "A")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	backup, err := blobs.Get(ctx, "invoice-craft-invoices.corrupt-1711965600")
	if err != nil {
		t.Fatalf("expected backup, got %v", err)
	}
	if string(backup) != "garbage" {
		t.Fatalf("backup mismatch: %q", backup)
	}
	res, _ := s.Load(ctx)
	if res.Warning != nil || len(res.Invoices) != 1 {
		t.Fatalf("expected clean collection after write, got %+v", res)
	}
}

func TestStore_NullPayloadReadsEmpty(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	_ = blobs.Put(ctx, DefaultKey, []byte("null"))
	s := openStore(t, blobs)
	res, err := s.Load(ctx)
	if err != nil || res.Warning != nil || len(res.Invoices) != 0 {
		t.Fatalf("unexpected %+v %v", res, err)
	}
}

func TestStore_DeleteLastWritesEmptyArray(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	s := openStore(t, blobs)
	_ = s.Upsert(ctx, sample("a", "A"))
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	body, _ := blobs.Get(ctx, DefaultKey)
	if string(body) != "[]" {
		t.Fatalf("expected [], got %s", body)
	}
}

type failingBlobs struct {
	*MemoryBlobStore
}

func (failingBlobs) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestStore_WriteFailureIsStorageError(t *testing.T) {
	s := openStore(t, failingBlobs{NewMemoryBlobStore()})
	err := s.Upsert(context.Background(), sample("a", "A"))
	if !errors.Is(err, apperr.Storage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestStore_UnencodableInvoiceIsStorageError(t *testing.T) {
	s := openStore(t, NewMemoryBlobStore())
	inv := sample("a", "A")
	inv.TaxRate = math.NaN()
	inv = invoice.Recompute(inv)
	err := s.Upsert(context.Background(), inv)
	if !errors.Is(err, apperr.Storage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestStore_ClosedStoreRejectsCalls(t *testing.T) {
	s := NewStore(NewMemoryBlobStore(), "", discardLogger())
	if _, err := s.List(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestStore_Backends(t *testing.T) {
	cases := []struct {
		name string
		open func(t *testing.T) BlobStore
	}{
		{"file", func(t *testing.T) BlobStore {
			b, err := NewFileBlobStore(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			return b
		}},
		{"sqlite", func(t *testing.T) BlobStore {
			b, err := OpenSQLite(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			return b
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, tc.open(t))
			if err := s.Upsert(ctx, sample("a", "Acme")); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if err := s.Upsert(ctx, sample("a", "Acme Inc")); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if err := s.Upsert(ctx, sample("b", "Beta")); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if err := s.Delete(ctx, "zzz"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			list, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 2 || list[0].CompanyName != "Acme Inc" || list[1].ID != "b" {
				t.Fatalf("unexpected collection %+v", list)
			}
		})
	}
}

func TestFileBlobStore_RejectsPathKeys(t *testing.T) {
	b, err := NewFileBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Put(context.Background(), "../escape", []byte("x")); err == nil {
		t.Fatalf("expected invalid key error")
	}
	if _, err := b.Get(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
