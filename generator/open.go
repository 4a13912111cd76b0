package generator

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go-murmel/errs"
	"go-murmel/pattern"
	"go-murmel/script"
)

// Opener constructs a Source from an entrypoint path. Sources that run
// code while loading give up after deadline (0 = no limit).
type Opener func(entrypoint string, deadline time.Duration) (Source, error)

// Open picks the source implementation from the entrypoint's extension.
func Open(entrypoint string, deadline time.Duration) (Source, error) {
	path, err := filepath.Abs(entrypoint)
	if err != nil {
		return nil, errs.Wrap(err, errs.Construction, "resolve entrypoint")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".js", ".mjs":
		src, err := script.OpenWithin(path, deadline)
		if err != nil {
			return nil, errs.Wrap(err, errs.Construction, "open script")
		}
		return src, nil
	case ".yml", ".yaml":
		src, err := pattern.Open(path)
		if err != nil {
			return nil, errs.Wrap(err, errs.Construction, "open pattern")
		}
		return src, nil
	default:
		return nil, errs.New(errs.Construction, fmt.Sprintf("unsupported entrypoint extension %q", ext))
	}
}
