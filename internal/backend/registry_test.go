package backend

import (
	"errors"
	"testing"
)

func TestResolveLocalPath(t *testing.T) {
	b, root, err := Resolve("/some/local/dir")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, ok := b.(*LocalBackend); !ok {
		t.Fatalf("Expected local backend, got %T", b)
	}
	if root != "/some/local/dir" {
		t.Fatalf("Unexpected root: %s", root)
	}
}

func TestResolveFileScheme(t *testing.T) {
	b, root, err := Resolve("file:///data/set")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, ok := b.(*LocalBackend); !ok {
		t.Fatalf("file:// should map to the local backend, got %T", b)
	}
	if root != "/data/set" {
		t.Fatalf("Unexpected root: %s", root)
	}
}

func TestResolveUnknownScheme(t *testing.T) {
	_, _, err := Resolve("gopher://hole")
	if err == nil {
		t.Fatalf("Expected resolution error")
	}
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Expected ResolutionError, got %T", err)
	}
	if resErr.Location != "gopher://hole" {
		t.Fatalf("Error lost the location: %+v", resErr)
	}
}

func TestResolveMalformed(t *testing.T) {
	for _, location := range []string{"", "s3://"} {
		if _, _, err := Resolve(location); err == nil {
			t.Fatalf("Expected error for %q", location)
		}
	}
}

func TestSchemeRoot(t *testing.T) {
	b, root, err := Resolve("s3://bucket/prefix/")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if b == nil {
		t.Fatalf("No backend returned")
	}
	if root != "/bucket/prefix" {
		t.Fatalf("Unexpected root: %s", root)
	}
}
