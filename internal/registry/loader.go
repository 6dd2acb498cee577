package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"llamactl/internal/common/fsutil"
)

// Installed scans modelsDir and returns the names of model subdirectories
// holding a quantized weight file. It does not consult pipeline state.
// A missing models directory yields an empty result.
func Installed(modelsDir string) ([]string, error) {
	base, err := fsutil.ExpandHome(modelsDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if fsutil.PathExists(filepath.Join(base, e.Name(), QuantizedFile)) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
