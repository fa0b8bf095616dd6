package storage

import "encoding/json"

// marshalJSON renders v as a JSON document for a TEXT/JSONB column. It never
// fails for the value shapes this package stores (structs of plain fields),
// so errors are folded into an empty-object fallback rather than threaded
// through every caller.
func marshalJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// unmarshalJSON decodes a TEXT/JSONB column into v, treating an empty column
// as a no-op rather than an error (new rows may not have one yet).
func unmarshalJSON(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
