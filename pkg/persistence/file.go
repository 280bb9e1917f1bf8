package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileSlot stores the document as <dir>/<name>.json.
//
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so a reader never sees a half written document.
type FileSlot struct {
	name string
	dir  string
	mu   sync.Mutex
}

func NewFileSlot(dir string, name string) (*FileSlot, error) {
	if dir == "" {
		return nil, errors.New("file slot: empty directory")
	}
	if name == "" {
		name = DefaultSlotName
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "file slot: creating %s", dir)
	}
	return &FileSlot{name: name, dir: dir}, nil
}

func (f *FileSlot) Name() string {
	return f.name
}

func (f *FileSlot) Path() string {
	return filepath.Join(f.dir, f.name+".json")
}

func (f *FileSlot) Load(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "file slot: reading %s", f.Path())
	}
	return b, true, nil
}

func (f *FileSlot) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, "."+f.name+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "file slot: creating temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "file slot: writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "file slot: syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "file slot: closing temp file")
	}
	if err := os.Rename(tmpName, f.Path()); err != nil {
		return errors.Wrapf(err, "file slot: replacing %s", f.Path())
	}
	return nil
}

var _ Slot = (*FileSlot)(nil)
