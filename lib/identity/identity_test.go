package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestLoadOrCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := LoadOrCreate(dir, "")
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("generated id %q is not a uuid: %v", first, err)
	}

	second, err := LoadOrCreate(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("id not stable across calls: %s != %s", first, second)
	}

	override, err := LoadOrCreate(dir, " recepcao-01 ")
	if err != nil || override != "recepcao-01" {
		t.Errorf("override ignored: %q (err %v)", override, err)
	}
}

func TestLoadOrCreateBlankFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	id, err := LoadOrCreate(dir, "")
	if err != nil || id == "" {
		t.Fatalf("expected a new id for a blank file, got %q (err %v)", id, err)
	}
}
