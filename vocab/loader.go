package vocab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Vocabulary is a JSON object of term identifiers to raw values, in document order.
type Vocabulary struct {
	names  []string
	values map[string]json.RawMessage
}

// Names returns a copy of the term identifiers in the order they appear in the source file.
func (v *Vocabulary) Names() []string {
	names := make([]string, len(v.names))
	copy(names, v.names)
	return names
}

func (v *Vocabulary) Value(name string) json.RawMessage {
	return v.values[name]
}

func (v *Vocabulary) Len() int {
	return len(v.names)
}

// Filename is the source file holding a collection type.
func Filename(collectionType, prefix string) string {
	return prefix + collectionType + ".json"
}

// LoadVocabulary reads <dir>/<prefix><collectionType>.json and returns the
// object stored under the collectionType key. The file is re-read on every call.
func LoadVocabulary(dir, collectionType, prefix string) (*Vocabulary, error) {
	path := filepath.Join(dir, Filename(collectionType, prefix))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrNotFound, path, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}
	raw, ok := doc[collectionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no top-level %q key", ErrMissingKey, path, collectionType)
	}
	v, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %q: %v", ErrParse, path, collectionType, err)
	}
	return v, nil
}

// decodeObject keeps key order, which a map decode would lose. A repeated key
// keeps its first position and its last value.
func decodeObject(raw json.RawMessage) (*Vocabulary, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object, got %s", describe(tok))
	}

	v := &Vocabulary{values: map[string]json.RawMessage{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key, got %s", describe(tok))
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if _, seen := v.values[name]; !seen {
			v.names = append(v.names, name)
		}
		v.values[name] = value
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return v, nil
}

func describe(tok json.Token) string {
	switch t := tok.(type) {
	case json.Delim:
		return fmt.Sprintf("%q", t.String())
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", t)
	}
}
