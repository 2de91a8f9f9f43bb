package datafile

import (
	"context"
	"testing"

	"github.com/marmos91/mailidx/pkg/mailindex"
)

func TestAppendAndLookup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, "dovecot.index")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	body := []byte("envelope: hello world")
	pos, size, err := s.Append(body)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	rec := mailindex.Record{
		DataPosition: pos,
		DataSize:     size,
		CachedFields: 1,
	}

	got, err := s.Lookup(ctx, rec, 1)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Lookup() = %q, want %q", got, body)
	}
}

func TestLookupWithoutCachedFieldReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, "dovecot.index")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	rec := mailindex.Record{CachedFields: 0}

	_, err = s.Lookup(ctx, rec, 1)
	if err != mailindex.ErrNotFound {
		t.Fatalf("Lookup() error = %v, want ErrNotFound", err)
	}
}

func TestEnsureSpaceGrowsFile(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "dovecot.index")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	big := make([]byte, initialSize+1)
	if _, _, err := s.Append(big); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if s.size <= initialSize {
		t.Errorf("size = %d, want greater than initial %d after growth", s.size, initialSize)
	}
}

func TestResetClearsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, "dovecot.index")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, _, err := s.Append([]byte("some cached bytes")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	h := s.readHeader()
	if h.NextOffset != headerSize {
		t.Errorf("NextOffset after reset = %d, want %d", h.NextOffset, headerSize)
	}
}

func TestOpenExistingReopensHeader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := Open(dir, "dovecot.index")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	pos, size, err := s1.Append([]byte("persisted"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s1.SyncFile(ctx); err != nil {
		t.Fatalf("SyncFile() error = %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := Open(dir, "dovecot.index")
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer s2.Close()

	rec := mailindex.Record{DataPosition: pos, DataSize: size, CachedFields: 1}
	got, err := s2.Lookup(ctx, rec, 1)
	if err != nil {
		t.Fatalf("Lookup() after reopen error = %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("Lookup() after reopen = %q, want %q", got, "persisted")
	}
}
