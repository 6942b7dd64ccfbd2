// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

// ReadJSON decodes the JSON object stored at [path].
// Numbers are kept as json.Number so that large balances survive a round trip.
func ReadJSON(fsys afero.Fs, path string) (map[string]interface{}, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("couldn't decode %q: %w", path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%q does not hold a JSON object", path)
	}
	return doc, nil
}

// WriteJSON replaces the file at [path] with the indented encoding of [v].
func WriteJSON(fsys afero.Fs, path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fsys, path, b, 0o644)
}
