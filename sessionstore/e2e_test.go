package sessionstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoCodeAlone/sessionarchive/objstore"
	"github.com/GoCodeAlone/sessionarchive/sessionstore"
)

func TestEndToEnd(t *testing.T) {
	drivers := map[string]func(t *testing.T) objstore.Client{
		"memory": func(t *testing.T) objstore.Client { return objstore.NewMemoryClient() },
		"file": func(t *testing.T) objstore.Client {
			c, err := objstore.NewFileClient(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileClient failed: %v", err)
			}
			return c
		},
	}

	for name, newClient := range drivers {
		t.Run(name, func(t *testing.T) {
			// Default staging directory is the working directory.
			t.Chdir(t.TempDir())
			ctx := context.Background()

			store, err := sessionstore.New(&sessionstore.Config{
				Client:     newClient(t),
				BucketName: "dummy-bucket",
				BasePath:   "folder-inside-bucket/",
			})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			if err := os.WriteFile("dummy-session-id.zip", []byte("dummy-file-contents"), 0o600); err != nil {
				t.Fatal(err)
			}

			if err := store.Save(ctx, "dummy-session-id"); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if !store.SessionExists(ctx, "dummy-session-id") {
				t.Fatal("expected session to exist after save")
			}

			if err := store.Extract(ctx, "dummy-session-id", "./sample.zip"); err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			got, err := os.ReadFile("./sample.zip")
			if err != nil {
				t.Fatalf("read sample.zip: %v", err)
			}
			if string(got) != "dummy-file-contents" {
				t.Errorf("sample.zip = %q, want %q", got, "dummy-file-contents")
			}

			if err := store.Delete(ctx, "dummy-session-id"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if store.SessionExists(ctx, "dummy-session-id") {
				t.Fatal("expected session to be gone after delete")
			}
		})
	}
}

func TestEndToEnd_FileLayout(t *testing.T) {
	root := t.TempDir()
	client, err := objstore.NewFileClient(root)
	if err != nil {
		t.Fatal(err)
	}
	staging := t.TempDir()
	store, err := sessionstore.New(&sessionstore.Config{
		Client:     client,
		BucketName: "dummy-bucket",
		BasePath:   "folder-inside-bucket/",
		LocalDir:   staging,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(staging, "abc.zip"), []byte("zip"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(context.Background(), "abc"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	want := filepath.Join(root, "dummy-bucket", "folder-inside-bucket", "abc", "session.zip")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected object at %s: %v", want, err)
	}
}
