package vocab

import "encoding/json"

// TermRequest is a term ready to be registered with the archive.
type TermRequest struct {
	Name  string
	Label string
	Data  json.RawMessage
}

// BuildTerms returns one request per vocabulary key, in document order.
func BuildTerms(v *Vocabulary, cfg CollectionConfig) []TermRequest {
	terms := make([]TermRequest, 0, v.Len())
	for _, name := range v.Names() {
		t := TermRequest{Name: name}
		if cfg.LabelPolicy == LabelIdentifier {
			t.Label = name
		}
		if cfg.DataFactory != nil {
			t.Data = cfg.DataFactory(v, name)
		}
		terms = append(terms, t)
	}
	return terms
}
