package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStoreSaveAndDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ref, err := store.Save(ctx, "payment_proofs", "transfer.pdf", strings.NewReader("receipt"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(ref, "payment_proofs"+string(filepath.Separator)) {
		t.Errorf("ref %q not under its subdirectory", ref)
	}
	data, err := os.ReadFile(filepath.Join(root, ref))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "receipt" {
		t.Errorf("content = %q, want receipt", data)
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ref)); !os.IsNotExist(err) {
		t.Error("file still present after delete")
	}
	// Double delete is a no-op.
	if err := store.Delete(ctx, ref); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestLocalStoreKeepsNamesApart(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	a, err := store.Save(ctx, "docs", "same.pdf", strings.NewReader("a"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Save(ctx, "docs", "same.pdf", strings.NewReader("b"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two saves of the same name must not collide")
	}
}
