package headlinese

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	model := &stubModel{lr: 0.25, value: 3.5}
	if err := SaveCheckpoint(dir, "m.ckpt", 123, model); err != nil {
		t.Fatal(err)
	}

	var restored *stubModel
	step, err := RestoreCheckpoint(CheckpointPath(dir, "m.ckpt", 123), &restored)
	if err != nil {
		t.Fatal(err)
	}
	if step != 123 {
		t.Errorf("expected step 123 got %d", step)
	}
	if restored.lr != 0.25 || restored.value != 3.5 {
		t.Errorf("expected rate 0.25 value 3.5 got %v %v", restored.lr,
			restored.value)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, ent := range entries {
		if strings.HasSuffix(ent.Name(), ".tmp") {
			t.Errorf("leftover temporary file %s", ent.Name())
		}
	}
}

func TestLatestCheckpoint(t *testing.T) {
	dir := t.TempDir()
	model := &stubModel{lr: 1}
	for _, step := range []int{5, 20, 8} {
		if err := SaveCheckpoint(dir, "m.ckpt", step, model); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"m.ckpt-x", "other-30"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("junk"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	path, step, err := LatestCheckpoint(dir, "m.ckpt")
	if err != nil {
		t.Fatal(err)
	}
	if step != 20 {
		t.Errorf("expected step 20 got %d", step)
	}
	if path != CheckpointPath(dir, "m.ckpt", 20) {
		t.Errorf("unexpected path %s", path)
	}
}

func TestLatestCheckpointMissing(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := LatestCheckpoint(dir, "m.ckpt"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("expected ErrNoCheckpoint got %v", err)
	}
	missing := filepath.Join(dir, "missing")
	if _, _, err := LatestCheckpoint(missing, "m.ckpt"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("expected ErrNoCheckpoint got %v", err)
	}
}
