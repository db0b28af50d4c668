package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"example.com/socialfeed/internal/util"
	"github.com/google/uuid"
)

var ErrEmptyName = errors.New("upload: empty file name")

// Saver stores uploaded files in a single directory under generated names.
type Saver struct {
	dir   string
	clock util.Clock
}

// NewSaver creates dir if it does not exist.
func NewSaver(dir string, clock util.Clock) (*Saver, error) {
	if clock == nil {
		clock = util.NewRealClock()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Saver{dir: dir, clock: clock}, nil
}

func (s *Saver) Dir() string {
	return s.dir
}

// Save writes r to a new file named <unixMillis>_<uuid><ext>, where ext is
// taken from original. It returns the generated name.
func (s *Saver) Save(original string, r io.Reader) (string, error) {
	if original == "" {
		return "", ErrEmptyName
	}

	name := s.uniqueName(original)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return name, nil
}

func (s *Saver) uniqueName(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	// extensions are echoed into URLs, keep them plain
	if strings.ContainsAny(ext, `/\?#%`) || len(ext) > 16 {
		ext = ""
	}
	return strconv.FormatInt(s.clock.NowUtc().UnixMilli(), 10) + "_" + uuid.NewString() + ext
}
