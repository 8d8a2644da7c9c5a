package cv

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Authority is the top level namespace of a vocabulary archive.
type Authority struct {
	Name        string
	Description string
	Label       string
	URL         string
	CreateDate  time.Time
	Namespace   string
	UID         uuid.UUID

	Scopes []*Scope
}

// Scope groups collections under an authority.
type Scope struct {
	Name        string
	Description string
	Label       string
	URL         string
	CreateDate  time.Time
	Namespace   string
	UID         uuid.UUID

	Authority   *Authority
	Collections []*Collection

	collections map[string]*Collection
}

// Collection is a named set of terms. TermRegex, when set, must match every term name.
type Collection struct {
	Name        string
	Description string
	CreateDate  time.Time
	TermRegex   string
	Namespace   string
	UID         uuid.UUID

	Scope *Scope
	Terms []*Term

	terms map[string]*Term
}

// Term is a leaf entry of a collection. Data holds the original JSON value, if any.
type Term struct {
	Name       string
	Label      string
	CreateDate time.Time
	Data       json.RawMessage
	Namespace  string
	UID        uuid.UUID

	Collection *Collection
}

// Scope returns the scope with the given name, or nil. Names compare like namespaces:
// case-insensitively and ignoring surrounding space.
func (a *Authority) Scope(name string) *Scope {
	for _, s := range a.Scopes {
		if key(s.Name) == key(name) {
			return s
		}
	}
	return nil
}

// Collection returns the collection with the given name, or nil.
func (s *Scope) Collection(name string) *Collection {
	return s.collections[key(name)]
}

// Term returns the term with the given name, or nil.
func (c *Collection) Term(name string) *Term {
	return c.terms[key(name)]
}

// TermCount is the number of terms across every collection of the authority.
func (a *Authority) TermCount() int {
	n := 0
	for _, s := range a.Scopes {
		for _, c := range s.Collections {
			n += len(c.Terms)
		}
	}
	return n
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func newUID(namespace string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace))
}
