// Package profile loads the read-only personal profile that personalizes
// the system prompt.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/flemzord/confidant/internal/fsutil"
)

// Sentinel errors returned by LoadStrict.
var (
	ErrResourceMissing   = errors.New("profile resource missing")
	ErrMalformedResource = errors.New("profile resource malformed")
)

// rootKey is the top-level key holding the profile object.
const rootKey = "my_profile"

// Profile describes the user. Every field is optional; a nil or empty
// field is omitted from the prompt.
type Profile struct {
	Name       string   `json:"name,omitempty"`
	Age        *int     `json:"age,omitempty"`
	Profession string   `json:"profession,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	Memory     []string `json:"memory,omitempty"`
}

// IsEmpty reports whether no field is set.
func (p Profile) IsEmpty() bool {
	return p.Name == "" && p.Age == nil && p.Profession == "" &&
		len(p.Interests) == 0 && len(p.Memory) == 0
}

type document struct {
	Profile *Profile `json:"my_profile"`
}

// LoadStrict reads the profile document at path and returns the object
// under "my_profile". A document without that key yields an empty Profile.
func LoadStrict(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Profile{}, fmt.Errorf("%w: %s", ErrResourceMissing, path)
		}
		return Profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Profile{}, fmt.Errorf("%w: %s: %w", ErrMalformedResource, path, err)
	}
	if doc.Profile == nil {
		return Profile{}, nil
	}
	return *doc.Profile, nil
}

// Load is LoadStrict with the failure logged and replaced by an empty
// Profile. Startup never fails because of the profile.
func Load(path string, logger *slog.Logger) Profile {
	p, err := LoadStrict(path)
	switch {
	case err == nil:
		return p
	case errors.Is(err, ErrResourceMissing):
		logger.Warn("profile not found, continuing without one", "path", path)
	case errors.Is(err, ErrMalformedResource):
		logger.Warn("profile malformed, continuing without one", "path", path, "error", err)
	default:
		logger.Error("profile unreadable, continuing without one", "path", path, "error", err)
	}
	return Profile{}
}

// Save writes p under "my_profile", atomically replacing any existing file.
func Save(path string, p Profile) error {
	data, err := json.MarshalIndent(map[string]Profile{rootKey: p}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
