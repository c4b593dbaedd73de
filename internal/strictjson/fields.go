// Package strictjson enforces exact field names on JSON objects.
//
// encoding/json matches object keys to struct fields case-insensitively and
// keeps the last value when a key repeats. Decoders that must accept a fixed
// schema byte for byte run CheckFields over the raw document first.
package strictjson

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CheckFields verifies that every top-level key of the object in raw is
// byte-equal to one of fields and appears at most once. A document that is
// not an object is left for the caller's decoder to reject.
func CheckFields(raw []byte, fields ...string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	allowed := make(map[string]bool, len(fields))
	for _, f := range fields {
		allowed[f] = true
	}
	seen := make(map[string]bool, len(fields))

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in object", tok)
		}
		if !allowed[key] {
			return fmt.Errorf("unknown field %q", key)
		}
		if seen[key] {
			return fmt.Errorf("duplicate field %q", key)
		}
		seen[key] = true

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	return nil
}
