package feature

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/kdex-tech/kdex-gadgets/internal/mime"
)

const maxScriptBytes = 4 << 20

// LoadDir reads one feature per sub directory of dir. The feature content is
// the concatenation of the directory's .js files in name order. Directories
// whose name would be rejected by FilterNames are skipped.
func LoadDir(dir string) ([]Resource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading feature directory: %w", err)
	}

	resources := []Resource{}
	for _, entry := range entries {
		if !entry.IsDir() || !validName.MatchString(entry.Name()) {
			continue
		}

		scripts, err := filepath.Glob(filepath.Join(dir, entry.Name(), "*.js"))
		if err != nil {
			return nil, err
		}
		if len(scripts) == 0 {
			continue
		}
		slices.Sort(scripts)

		var content bytes.Buffer
		for _, script := range scripts {
			b, err := readScript(script)
			if err != nil {
				return nil, fmt.Errorf("feature %s: %w", entry.Name(), err)
			}
			content.Write(b)
			content.WriteByte('\n')
		}

		resources = append(resources, Resource{
			Content: content.Bytes(),
			Name:    entry.Name(),
		})
	}
	return resources, nil
}

func readScript(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	b, err := mime.ReadText(f, maxScriptBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return b, nil
}
