package dashboard

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// PersistedState is the JSON snapshot written beside the server so sessions
// survive restarts. Report HTML is rebuilt from the stored result on demand,
// so it is not persisted.
type PersistedState struct {
	Sessions map[string]*Session `json:"sessions"`
}

func LoadState(path string) (PersistedState, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PersistedState{Sessions: map[string]*Session{}}, nil
		}
		return PersistedState{}, err
	}
	var state PersistedState
	if err := json.Unmarshal(blob, &state); err != nil {
		return PersistedState{}, err
	}
	if state.Sessions == nil {
		state.Sessions = map[string]*Session{}
	}
	return state, nil
}

func SaveState(path string, state PersistedState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
