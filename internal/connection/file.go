package connection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile persists the handshake to a JSON connection file. The parent
// directory is created if needed. The file carries credentials (the HMAC
// key), so it is written owner-only.
func WriteFile(path string, info *Info) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create connection dir: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode connection info: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write connection file: %w", err)
	}
	return nil
}

// ReadFile loads a JSON connection file written by WriteFile or by a
// backend that follows the same format.
func ReadFile(path string) (*Info, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from our own provisioner state
	if err != nil {
		return nil, fmt.Errorf("failed to read connection file: %w", err)
	}

	info := New()
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("failed to parse connection file %s: %w", path, err)
	}
	return info, nil
}
