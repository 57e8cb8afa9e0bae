package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads images from the local filesystem. Relative paths are
// resolved against Root when it is set.
type FileSource struct {
	Root string
}

// Fetch implements ImageSource
func (s *FileSource) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := locator
	if strings.HasPrefix(locator, "file://") {
		u, err := url.Parse(locator)
		if err != nil {
			return nil, fmt.Errorf("invalid file URL: %w", err)
		}
		path = u.Path
	}
	if s.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(s.Root, path)
	}
	return os.ReadFile(path)
}
