package vocab

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LabelPolicy decides what label a built term carries.
type LabelPolicy string

const (
	// LabelIdentifier labels each term with its own identifier.
	LabelIdentifier LabelPolicy = "identifier"
	// LabelNone leaves terms unlabelled.
	LabelNone LabelPolicy = "none"
)

func ParseLabelPolicy(s string) (LabelPolicy, error) {
	switch LabelPolicy(s) {
	case LabelIdentifier:
		return LabelIdentifier, nil
	case LabelNone, "":
		return LabelNone, nil
	}
	return "", fmt.Errorf("%w: unknown label policy %q", ErrConfiguration, s)
}

// DataFactory derives the data attached to the term called name.
type DataFactory func(v *Vocabulary, name string) json.RawMessage

// ValueOf attaches the raw JSON value stored under the term's identifier.
func ValueOf(v *Vocabulary, name string) json.RawMessage {
	return v.Value(name)
}

// CollectionConfig is how one collection type is turned into terms.
// A nil DataFactory attaches no data and an empty TermRegex accepts any name.
type CollectionConfig struct {
	DataFactory DataFactory
	TermRegex   string
	LabelPolicy LabelPolicy
	Description string
}

// CollectionTable maps collection type names to their configuration.
type CollectionTable map[string]CollectionConfig

// Names returns the collection types in sorted order.
func (t CollectionTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
