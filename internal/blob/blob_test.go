package blob

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestImageKeyRoundTrip(t *testing.T) {
	created := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

	key := NewImageKey(created)
	if key != "20250102150405.png" {
		t.Fatalf("key = %q", key)
	}
	if !IsImageKey(key) {
		t.Fatalf("generated key %q should match the convention", key)
	}

	got, ok := keyCreatedAt(key)
	if !ok {
		t.Fatalf("keyCreatedAt(%q) failed", key)
	}
	if !got.Equal(created) {
		t.Fatalf("createdAt = %v, want %v", got, created)
	}
}

func TestIsImageKeyRejectsStrays(t *testing.T) {
	for _, key := range []string{
		"default-image.png",
		"20250102150405.jpg",
		"2025010215040.png",
		"20250102150405.png.bak",
		"notes.txt",
	} {
		if IsImageKey(key) {
			t.Fatalf("%q should not match the image key convention", key)
		}
	}
}

func TestPageImages(t *testing.T) {
	keys := []string{
		"20250101000000.png",
		"20250103000000.png",
		"20250102000000.png",
		"20250105000000.png",
		"20250104000000.png",
	}

	t.Run("first page newest first", func(t *testing.T) {
		listing := PageImages(append([]string(nil), keys...), 1, 2, "https://cdn.example.com")
		if len(listing.Images) != 2 {
			t.Fatalf("got %d images", len(listing.Images))
		}
		if listing.Images[0].Key != "20250105000000.png" ||
			listing.Images[1].Key != "20250104000000.png" {
			t.Fatalf("unexpected order: %+v", listing.Images)
		}
		if !listing.HasMore {
			t.Fatal("expected more pages")
		}
		if listing.Images[0].URL != "https://cdn.example.com/20250105000000.png" {
			t.Fatalf("unexpected URL %q", listing.Images[0].URL)
		}
		if listing.Images[0].CreatedAt == nil {
			t.Fatal("createdAt should be derived from the key")
		}
	})

	t.Run("last page", func(t *testing.T) {
		listing := PageImages(append([]string(nil), keys...), 3, 2, "")
		if len(listing.Images) != 1 {
			t.Fatalf("got %d images", len(listing.Images))
		}
		if listing.HasMore {
			t.Fatal("last page should not report more")
		}
	})

	t.Run("page past the end", func(t *testing.T) {
		listing := PageImages(append([]string(nil), keys...), 9, 2, "")
		if len(listing.Images) != 0 || listing.HasMore {
			t.Fatalf("expected empty page, got %+v", listing)
		}
	})
}

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://cdn.example.com/20250102150405.png", want: "20250102150405.png"},
		{url: "https://cdn.example.com/my%20report.pdf", want: "my report.pdf"},
		{url: "https://cdn.example.com/", wantErr: true},
		{url: "://bad", wantErr: true},
	}

	for _, tt := range tests {
		got, err := KeyFromURL(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("KeyFromURL(%q) should fail", tt.url)
			}
			continue
		}
		if err != nil {
			t.Fatalf("KeyFromURL(%q): %v", tt.url, err)
		}
		if got != tt.want {
			t.Fatalf("KeyFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestIsFetchError(t *testing.T) {
	err := &FetchError{Key: "a.png", Err: errors.New("no such key")}
	if !IsFetchError(err) {
		t.Fatal("IsFetchError should match a FetchError")
	}
	if !IsFetchError(fmt.Errorf("resolving attachment: %w", err)) {
		t.Fatal("IsFetchError should match a wrapped FetchError")
	}
	if IsFetchError(errors.New("other")) {
		t.Fatal("IsFetchError should not match an arbitrary error")
	}
}
