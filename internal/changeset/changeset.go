// Package changeset reads and writes the change-set artifact exchanged between
// the mutation stage and the patch stage.
package changeset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/belgiumluv/docker-cont/internal/domain"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
	"github.com/belgiumluv/docker-cont/internal/fsutil"
)

const component = "changeset"

// Encode renders cs as a JSON object with sorted keys and four-space indent
func Encode(cs domain.ChangeSet) ([]byte, error) {
	if cs == nil {
		cs = domain.ChangeSet{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(map[string]string(cs)); err != nil {
		return nil, rerrors.WrapError(err, rerrors.ErrCodeInternalError, component, "failed to encode change-set")
	}
	return buf.Bytes(), nil
}

// Decode parses a flat JSON object of strings
func Decode(data []byte) (domain.ChangeSet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		if err == nil {
			err = fmt.Errorf("change-set is null")
		}
		return nil, rerrors.WrapError(err, rerrors.ErrCodeInvalidInput, component, "change-set must be a JSON object")
	}

	cs := make(domain.ChangeSet, len(raw))
	for tag, value := range raw {
		var s string
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return nil, rerrors.NewInvalidInputError(component,
				fmt.Sprintf("change-set value for %q is null", tag)).WithMetadata("tag", tag)
		}
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, rerrors.NewInvalidInputError(component,
				fmt.Sprintf("change-set value for %q is not a string", tag)).WithMetadata("tag", tag)
		}
		cs[tag] = s
	}
	return cs, nil
}

// Write persists cs to path, replacing the file atomically
func Write(path string, cs domain.ChangeSet) error {
	data, err := Encode(cs)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return rerrors.WrapError(err, rerrors.ErrCodeInternalError, component, "failed to write change-set").
			WithMetadata("path", path)
	}
	return nil
}

// Read loads the change-set at path. A missing file means the mutation stage
// has not run yet.
func Read(path string) (domain.ChangeSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.NewMissingPrerequisiteError(component, path, err)
		}
		return nil, rerrors.WrapError(err, rerrors.ErrCodeInternalError, component, "failed to read change-set")
	}
	return Decode(data)
}
