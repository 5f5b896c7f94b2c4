package headlinese

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// ErrNoCheckpoint is returned by LatestCheckpoint when the
// directory holds no checkpoint with the given prefix.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// CheckpointPath names the checkpoint file for a step.
func CheckpointPath(dir, prefix string, step int) string {
	return filepath.Join(dir, prefix+"-"+strconv.Itoa(step))
}

// LatestCheckpoint locates the checkpoint file with the
// highest step suffix. Earlier checkpoints are left in
// place, so a directory usually holds many.
func LatestCheckpoint(dir, prefix string) (path string, step int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, ErrNoCheckpoint
		}
		return "", 0, essentials.AddCtx("find checkpoint", err)
	}
	found := false
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		n, err := strconv.Atoi(name[len(prefix)+1:])
		if err != nil {
			continue
		}
		if !found || n > step {
			found = true
			step = n
			path = filepath.Join(dir, name)
		}
	}
	if !found {
		return "", 0, ErrNoCheckpoint
	}
	return path, step, nil
}

// SaveCheckpoint durably writes the model parameters and
// step counter. The data goes to a temporary file first
// and is renamed into place, so an interrupted save never
// leaves a truncated checkpoint behind.
func SaveCheckpoint(dir, prefix string, step int, model serializer.Serializer) error {
	data, err := serializer.SerializeAny(serializer.Int(step), model)
	if err != nil {
		return essentials.AddCtx("save checkpoint", err)
	}
	path := CheckpointPath(dir, prefix, step)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return essentials.AddCtx("save checkpoint", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return essentials.AddCtx("save checkpoint", err)
	}
	return nil
}

// RestoreCheckpoint reads a checkpoint file, returning the
// step counter stored inside it. The model argument is a
// pointer to the concrete model type, as with
// serializer.DeserializeAny.
func RestoreCheckpoint(path string, model interface{}) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, essentials.AddCtx("restore checkpoint", err)
	}
	var step serializer.Int
	if err := serializer.DeserializeAny(data, &step, model); err != nil {
		return 0, essentials.AddCtx("restore checkpoint", err)
	}
	return int(step), nil
}
