package vocab

import (
	"fmt"
	"os"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/ncasuk/amf-cv-transformer/cv"
)

// FacilityPrefix is the filename prefix of facility scoped vocabulary files.
const FacilityPrefix = "AMF_"

// CreateDate stamps every entity so repeated runs produce identical archives.
var CreateDate = time.Date(2018, 3, 9, 0, 0, 0, 0, time.UTC)

// Archive is the controlled vocabulary library the converter publishes through.
type Archive interface {
	CreateAuthority(info cv.AuthorityInfo) (*cv.Authority, error)
	CreateScope(a *cv.Authority, info cv.ScopeInfo) (*cv.Scope, error)
	CreateCollection(s *cv.Scope, info cv.CollectionInfo) (*cv.Collection, error)
	CreateTerm(c *cv.Collection, info cv.TermInfo) (*cv.Term, error)
	Archive(a *cv.Authority) error
}

type Options struct {
	Authority      cv.AuthorityInfo
	FacilityScope  cv.ScopeInfo
	GlobalScope    cv.ScopeInfo
	FacilityPrefix string
	// GlobalCollections are loaded from "<type>.json" into the global scope.
	GlobalCollections CollectionTable
	CreateDate        time.Time
}

// DefaultOptions describes the NCAS authority with its AMF and GLOBAL scopes.
func DefaultOptions() Options {
	return Options{
		Authority: cv.AuthorityInfo{
			Name:        "NCAS",
			Description: "NCAS Atmospheric Measurement Facility CVs",
			Label:       "NCAS",
			URL:         "https://www.ncas.ac.uk/en/about-amf",
			CreateDate:  CreateDate,
		},
		FacilityScope: cv.ScopeInfo{
			Name:        "AMF",
			Description: "Controlled Vocabularies (CVs) for use in AMF",
			Label:       "AMF",
			URL:         "https://github.com/agstephens/AMF_CVs",
			CreateDate:  CreateDate,
		},
		GlobalScope: cv.ScopeInfo{
			Name:        "GLOBAL",
			Description: "Global controlled Vocabularies (CVs)",
			URL:         "https://github.com/agstephens/AMF_CVs",
			CreateDate:  CreateDate,
		},
		FacilityPrefix:    FacilityPrefix,
		GlobalCollections: CollectionTable{},
		CreateDate:        CreateDate,
	}
}

// Converter turns a directory of raw vocabulary files into an archived authority.
type Converter struct {
	archive Archive
	opts    Options
	Metrics metrics.Registry
}

func NewConverter(archive Archive, opts Options) *Converter {
	return &Converter{
		archive: archive,
		opts:    opts,
		Metrics: metrics.NewRegistry(),
	}
}

// Convert publishes every vocabulary file of source and archives the result.
// Nothing is archived unless every file converts.
func (c *Converter) Convert(source string) (*cv.Authority, error) {
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: vocab directory does not exist: %s", ErrConfiguration, source)
	}
	defer metrics.GetOrRegisterTimer("convert", c.Metrics).UpdateSince(time.Now())

	authority, err := c.archive.CreateAuthority(c.opts.Authority)
	if err != nil {
		return nil, err
	}
	facility, err := c.archive.CreateScope(authority, c.opts.FacilityScope)
	if err != nil {
		return nil, err
	}
	global, err := c.archive.CreateScope(authority, c.opts.GlobalScope)
	if err != nil {
		return nil, err
	}

	collections, err := DiscoverCollections(source, c.opts.FacilityPrefix)
	if err != nil {
		return nil, err
	}
	log.WithField("source", source).Infof("Found %d %s vocabulary files", len(collections), facility.Name)

	for _, name := range collections.Names() {
		cfg := collections[name]
		if cfg.Description == "" {
			cfg.Description = fmt.Sprintf("NCAS %s CV collection: %s", facility.Name, name)
		}
		if err := c.convertCollection(source, facility, name, c.opts.FacilityPrefix, cfg); err != nil {
			return nil, err
		}
		metrics.GetOrRegisterCounter("collections.facility", c.Metrics).Inc(1)
	}

	for _, name := range c.opts.GlobalCollections.Names() {
		cfg := c.opts.GlobalCollections[name]
		if cfg.Description == "" {
			cfg.Description = fmt.Sprintf("NCAS %s CV collection: %s", global.Name, name)
		}
		if err := c.convertCollection(source, global, name, "", cfg); err != nil {
			return nil, err
		}
		metrics.GetOrRegisterCounter("collections.global", c.Metrics).Inc(1)
	}

	if err := c.archive.Archive(authority); err != nil {
		return nil, err
	}
	return authority, nil
}

func (c *Converter) convertCollection(source string, scope *cv.Scope, name, prefix string, cfg CollectionConfig) error {
	collection, err := c.archive.CreateCollection(scope, cv.CollectionInfo{
		Name:        name,
		Description: cfg.Description,
		CreateDate:  c.opts.CreateDate,
		TermRegex:   cfg.TermRegex,
	})
	if err != nil {
		return err
	}

	log.WithField("file", Filename(name, prefix)).Debug("Loading vocabulary")
	v, err := LoadVocabulary(source, name, prefix)
	if err != nil {
		return err
	}

	for _, t := range BuildTerms(v, cfg) {
		if _, err := c.archive.CreateTerm(collection, cv.TermInfo{
			Name:       t.Name,
			Label:      t.Label,
			CreateDate: c.opts.CreateDate,
			Data:       t.Data,
		}); err != nil {
			return fmt.Errorf("collection %s: %w", collection.Namespace, err)
		}
	}
	metrics.GetOrRegisterCounter("terms", c.Metrics).Inc(int64(v.Len()))

	log.WithField("collection", collection.Namespace).WithField("terms", v.Len()).Info("Converted collection")
	return nil
}
