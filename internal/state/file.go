package state

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

// saveJSON writes v as pretty-printed JSON through a temp file renamed into
// place, so a crash mid-write can never leave a corrupted store behind. The
// files stay hand-editable; removing an entry with a text editor is a
// supported way to force re-resolution.
func saveJSON(fs afero.Fs, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
