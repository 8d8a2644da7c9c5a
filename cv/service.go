package cv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidName     = errors.New("invalid name")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrInvalidTermName = errors.New("term name does not match collection term regex")
)

// Writer persists a finished authority tree in two steps. Stage does all the
// work that can fail without touching what readers see; Commit publishes it.
type Writer interface {
	Stage(a *Authority) (Staged, error)
	Healthcheck() fthealth.Check
}

// Staged is a prepared write. Exactly one of Commit or Discard is called.
type Staged interface {
	Commit() error
	Discard() error
}

type AuthorityInfo struct {
	Name        string
	Description string
	Label       string
	URL         string
	CreateDate  time.Time
}

type ScopeInfo struct {
	Name        string
	Description string
	Label       string
	URL         string
	CreateDate  time.Time
}

type CollectionInfo struct {
	Name        string
	Description string
	CreateDate  time.Time
	TermRegex   string
}

type TermInfo struct {
	Name       string
	Label      string
	CreateDate time.Time
	Data       json.RawMessage
}

// Service builds authority trees in memory and hands them to its writers on Archive.
type Service struct {
	writers []Writer
	regexes map[*Collection]*regexp.Regexp
}

func NewService(writers ...Writer) *Service {
	return &Service{
		writers: writers,
		regexes: map[*Collection]*regexp.Regexp{},
	}
}

func (s *Service) CreateAuthority(info AuthorityInfo) (*Authority, error) {
	if err := checkName("authority", info.Name); err != nil {
		return nil, err
	}
	ns := key(info.Name)
	return &Authority{
		Name:        info.Name,
		Description: info.Description,
		Label:       info.Label,
		URL:         info.URL,
		CreateDate:  info.CreateDate.UTC(),
		Namespace:   ns,
		UID:         newUID(ns),
	}, nil
}

func (s *Service) CreateScope(a *Authority, info ScopeInfo) (*Scope, error) {
	if err := checkName("scope", info.Name); err != nil {
		return nil, err
	}
	if a.Scope(info.Name) != nil {
		return nil, fmt.Errorf("%w: scope %q already exists in authority %q", ErrDuplicateName, info.Name, a.Name)
	}
	ns := a.Namespace + ":" + key(info.Name)
	scope := &Scope{
		Name:        info.Name,
		Description: info.Description,
		Label:       info.Label,
		URL:         info.URL,
		CreateDate:  info.CreateDate.UTC(),
		Namespace:   ns,
		UID:         newUID(ns),
		Authority:   a,
		collections: map[string]*Collection{},
	}
	a.Scopes = append(a.Scopes, scope)
	return scope, nil
}

func (s *Service) CreateCollection(scope *Scope, info CollectionInfo) (*Collection, error) {
	if err := checkName("collection", info.Name); err != nil {
		return nil, err
	}
	if scope.Collection(info.Name) != nil {
		return nil, fmt.Errorf("%w: collection %q already exists in scope %q", ErrDuplicateName, info.Name, scope.Name)
	}
	var re *regexp.Regexp
	if info.TermRegex != "" {
		var err error
		if re, err = regexp.Compile(`^(?:` + info.TermRegex + `)$`); err != nil {
			return nil, fmt.Errorf("collection %q: bad term regex: %w", info.Name, err)
		}
	}
	ns := scope.Namespace + ":" + key(info.Name)
	collection := &Collection{
		Name:        info.Name,
		Description: info.Description,
		CreateDate:  info.CreateDate.UTC(),
		TermRegex:   info.TermRegex,
		Namespace:   ns,
		UID:         newUID(ns),
		Scope:       scope,
		terms:       map[string]*Term{},
	}
	if re != nil {
		s.regexes[collection] = re
	}
	scope.Collections = append(scope.Collections, collection)
	scope.collections[key(info.Name)] = collection
	return collection, nil
}

func (s *Service) CreateTerm(c *Collection, info TermInfo) (*Term, error) {
	if err := checkName("term", info.Name); err != nil {
		return nil, err
	}
	if re, ok := s.regexes[c]; ok && !re.MatchString(info.Name) {
		return nil, fmt.Errorf("%w: %q in collection %q (%s)", ErrInvalidTermName, info.Name, c.Name, c.TermRegex)
	}
	if c.Term(info.Name) != nil {
		return nil, fmt.Errorf("%w: term %q already exists in collection %q", ErrDuplicateName, info.Name, c.Name)
	}
	data, err := compact(info.Data)
	if err != nil {
		return nil, fmt.Errorf("term %q: %w", info.Name, err)
	}
	ns := c.Namespace + ":" + key(info.Name)
	term := &Term{
		Name:       info.Name,
		Label:      info.Label,
		CreateDate: info.CreateDate.UTC(),
		Data:       data,
		Namespace:  ns,
		UID:        newUID(ns),
		Collection: c,
	}
	c.Terms = append(c.Terms, term)
	c.terms[key(info.Name)] = term
	return term, nil
}

// Archive stages the authority with every writer and commits only once all of
// them have staged. Commits run in writer order; a failed commit discards the
// writes not yet committed but cannot undo earlier ones.
func (s *Service) Archive(a *Authority) error {
	if len(s.writers) == 0 {
		log.WithField("authority", a.Name).Warn("No archive writers configured, nothing persisted")
		return nil
	}
	staged := make([]Staged, 0, len(s.writers))
	for _, w := range s.writers {
		st, err := w.Stage(a)
		if err != nil {
			discard(staged)
			return fmt.Errorf("archive authority %q: %w", a.Name, err)
		}
		staged = append(staged, st)
	}
	for i, st := range staged {
		if err := st.Commit(); err != nil {
			discard(staged[i+1:])
			return fmt.Errorf("archive authority %q: %w", a.Name, err)
		}
	}
	return nil
}

func discard(staged []Staged) {
	for _, st := range staged {
		if err := st.Discard(); err != nil {
			log.WithError(err).Warn("Unable to discard staged archive")
		}
	}
}

func (s *Service) Healthchecks() []fthealth.Check {
	checks := make([]fthealth.Check, 0, len(s.writers))
	for _, w := range s.writers {
		checks = append(checks, w.Healthcheck())
	}
	return checks
}

func checkName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s name must be non-empty", ErrInvalidName, kind)
	}
	return nil
}

func compact(data json.RawMessage) (json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}
