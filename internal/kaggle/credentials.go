// Package kaggle downloads datasets from the Kaggle public API.
package kaggle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const credentialsFileName = "kaggle.json"

var (
	ErrMissingCredentials = errors.New("kaggle credentials not found")
	ErrInvalidCredentials = errors.New("kaggle credentials are invalid")
)

type Credentials struct {
	Username string `json:"username"`
	Key      string `json:"key"`
}

func (c Credentials) valid() bool {
	return strings.TrimSpace(c.Username) != "" && strings.TrimSpace(c.Key) != ""
}

// LoadCredentials reads credentials from path when it is set. Otherwise it
// tries KAGGLE_USERNAME/KAGGLE_KEY, then kaggle.json in KAGGLE_CONFIG_DIR,
// then ~/.kaggle/kaggle.json.
func LoadCredentials(path string) (Credentials, error) {
	if path != "" {
		return readCredentialsFile(path)
	}

	username, key := os.Getenv("KAGGLE_USERNAME"), os.Getenv("KAGGLE_KEY")
	if username != "" || key != "" {
		creds := Credentials{Username: username, Key: key}
		if !creds.valid() {
			return Credentials{}, fmt.Errorf("%w: KAGGLE_USERNAME and KAGGLE_KEY must both be set", ErrInvalidCredentials)
		}
		return creds, nil
	}

	if dir := os.Getenv("KAGGLE_CONFIG_DIR"); dir != "" {
		return readCredentialsFile(filepath.Join(dir, credentialsFileName))
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Credentials{}, ErrMissingCredentials
	}
	return readCredentialsFile(filepath.Join(home, ".kaggle", credentialsFileName))
}

func readCredentialsFile(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, fmt.Errorf("%w: %s", ErrMissingCredentials, path)
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %s: %v", ErrInvalidCredentials, path, err)
	}
	if !creds.valid() {
		return Credentials{}, fmt.Errorf("%w: %s: username and key are required", ErrInvalidCredentials, path)
	}
	return creds, nil
}
