package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "datasets/sub/set.zip", "application/zip", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://datasets/sub/set.zip" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, contentType, ok := store.Object("datasets/sub/set.zip")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if contentType != "application/zip" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	stored[0] = 'X'
	again, _, _ := store.Object("datasets/sub/set.zip")
	if string(again) != "content" {
		t.Fatal("expected Object to return a copy")
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	if _, err := store.PutObject(context.Background(), " ", "", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, _, ok := store.Object("missing"); ok {
		t.Fatal("expected missing object")
	}
}
