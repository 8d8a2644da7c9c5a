package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ncasuk/amf-cv-transformer/cv"
)

const ManifestName = "MANIFEST"

var ErrUnsafeName = errors.New("name cannot be used as an archive path segment")

// Document is one file of an encoded archive. Path is slash separated and relative to the archive root.
type Document struct {
	Path string
	Body []byte
}

type authorityDocument struct {
	UID         string          `json:"uid"`
	Namespace   string          `json:"namespace"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Label       string          `json:"label,omitempty"`
	URL         string          `json:"url,omitempty"`
	CreateDate  string          `json:"create_date"`
	Scopes      []scopeDocument `json:"scopes"`
}

type scopeDocument struct {
	UID         string               `json:"uid"`
	Namespace   string               `json:"namespace"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Label       string               `json:"label,omitempty"`
	URL         string               `json:"url,omitempty"`
	CreateDate  string               `json:"create_date"`
	Collections []collectionDocument `json:"collections"`
}

type collectionDocument struct {
	UID         string   `json:"uid"`
	Namespace   string   `json:"namespace"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CreateDate  string   `json:"create_date"`
	TermRegex   string   `json:"term_regex,omitempty"`
	Terms       []string `json:"terms"`
}

type termDocument struct {
	UID        string          `json:"uid"`
	Namespace  string          `json:"namespace"`
	Name       string          `json:"name"`
	Label      string          `json:"label,omitempty"`
	CreateDate string          `json:"create_date"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// AuthorityDir is the directory, relative to the archive root, holding the authority.
func AuthorityDir(a *cv.Authority) (string, error) {
	return segment(a.Name)
}

// Encode renders the authority as a manifest followed by one document per term,
// in creation order. The output only depends on the tree, so equal trees encode to equal bytes.
func Encode(a *cv.Authority) ([]Document, error) {
	root, err := AuthorityDir(a)
	if err != nil {
		return nil, err
	}

	manifest := authorityDocument{
		UID:         a.UID.String(),
		Namespace:   a.Namespace,
		Name:        a.Name,
		Description: a.Description,
		Label:       a.Label,
		URL:         a.URL,
		CreateDate:  formatDate(a.CreateDate),
		Scopes:      []scopeDocument{},
	}
	var terms []Document
	seen := map[string]bool{}

	for _, s := range a.Scopes {
		scopeDir, err := segment(s.Name)
		if err != nil {
			return nil, err
		}
		sd := scopeDocument{
			UID:         s.UID.String(),
			Namespace:   s.Namespace,
			Name:        s.Name,
			Description: s.Description,
			Label:       s.Label,
			URL:         s.URL,
			CreateDate:  formatDate(s.CreateDate),
			Collections: []collectionDocument{},
		}
		for _, c := range s.Collections {
			collectionDir, err := segment(c.Name)
			if err != nil {
				return nil, err
			}
			cd := collectionDocument{
				UID:         c.UID.String(),
				Namespace:   c.Namespace,
				Name:        c.Name,
				Description: c.Description,
				CreateDate:  formatDate(c.CreateDate),
				TermRegex:   c.TermRegex,
				Terms:       make([]string, 0, len(c.Terms)),
			}
			for _, t := range c.Terms {
				file, err := segment(t.Name)
				if err != nil {
					return nil, err
				}
				p := path.Join(root, scopeDir, collectionDir, file)
				if seen[p] {
					return nil, fmt.Errorf("%w: term %q collides with another term at %s", ErrUnsafeName, t.Name, p)
				}
				seen[p] = true

				body, err := marshal(termDocument{
					UID:        t.UID.String(),
					Namespace:  t.Namespace,
					Name:       t.Name,
					Label:      t.Label,
					CreateDate: formatDate(t.CreateDate),
					Data:       t.Data,
				})
				if err != nil {
					return nil, fmt.Errorf("encode term %s: %w", t.Namespace, err)
				}
				terms = append(terms, Document{Path: p, Body: body})
				cd.Terms = append(cd.Terms, t.Name)
			}
			sd.Collections = append(sd.Collections, cd)
		}
		manifest.Scopes = append(manifest.Scopes, sd)
	}

	body, err := marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append([]Document{{Path: path.Join(root, ManifestName), Body: body}}, terms...), nil
}

func segment(name string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return s, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
