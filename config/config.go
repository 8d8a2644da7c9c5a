// Package config reads the converter's environment and the optional global collections file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ncasuk/amf-cv-transformer/vocab"
)

const (
	defaultAWSRegion = "eu-west-1"
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// Config is the converter's runtime configuration. Only the source directory
// is a command line option; everything here comes from the environment.
type Config struct {
	// ArchiveDir is where the file system archive is written (CV_ARCHIVE_DIR).
	ArchiveDir string
	// ArchiveDB optionally indexes the archive in a SQLite file (CV_ARCHIVE_DB).
	ArchiveDB string
	// ArchiveBucket optionally uploads the archive to S3 (CV_ARCHIVE_BUCKET).
	ArchiveBucket string
	// ArchivePrefix is prepended to uploaded object keys (CV_ARCHIVE_PREFIX).
	ArchivePrefix string
	AWSRegion     string
	// GlobalCollections is a YAML file describing the global collections (CV_GLOBAL_COLLECTIONS).
	GlobalCollections string
	LogLevel          string
	LogFormat         string
}

// FromEnv builds a Config from getenv, usually os.Getenv.
func FromEnv(getenv func(string) string) *Config {
	c := &Config{
		ArchiveDir:        getenv("CV_ARCHIVE_DIR"),
		ArchiveDB:         getenv("CV_ARCHIVE_DB"),
		ArchiveBucket:     getenv("CV_ARCHIVE_BUCKET"),
		ArchivePrefix:     getenv("CV_ARCHIVE_PREFIX"),
		AWSRegion:         getenv("AWS_REGION"),
		GlobalCollections: getenv("CV_GLOBAL_COLLECTIONS"),
		LogLevel:          getenv("LOG_LEVEL"),
		LogFormat:         getenv("LOG_FORMAT"),
	}
	if c.ArchiveDir == "" {
		c.ArchiveDir = defaultArchiveDir(getenv("HOME"))
	}
	if c.AWSRegion == "" {
		c.AWSRegion = defaultAWSRegion
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	return c
}

func defaultArchiveDir(home string) string {
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".esdoc", "pyessv-archive")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ArchiveDir == "" {
		return fmt.Errorf("%w: CV_ARCHIVE_DIR must not be empty", vocab.ErrConfiguration)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: LOG_LEVEL: %v", vocab.ErrConfiguration, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: LOG_FORMAT must be text or json, got %q", vocab.ErrConfiguration, c.LogFormat)
	}
	return nil
}

// ConfigureLogging applies the log level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: LOG_LEVEL: %v", vocab.ErrConfiguration, err)
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

// GlobalCollectionsFile is the YAML form of the global collection table.
type GlobalCollectionsFile struct {
	Collections []GlobalCollection `yaml:"collections"`
}

type GlobalCollection struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	TermRegex   string `yaml:"term_regex"`
	// LabelPolicy is "identifier" or "none" (default).
	LabelPolicy string `yaml:"label_policy"`
	// Data is "value" (default) to attach each term's JSON value, or "none".
	Data string `yaml:"data"`
}

// LoadGlobalCollections returns the global collection table. An empty path gives an empty table.
func (c *Config) LoadGlobalCollections() (vocab.CollectionTable, error) {
	if c.GlobalCollections == "" {
		return vocab.CollectionTable{}, nil
	}
	data, err := os.ReadFile(c.GlobalCollections)
	if err != nil {
		return nil, fmt.Errorf("%w: read global collections: %v", vocab.ErrConfiguration, err)
	}
	return ParseGlobalCollections(data)
}

func ParseGlobalCollections(data []byte) (vocab.CollectionTable, error) {
	var file GlobalCollectionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse global collections: %v", vocab.ErrConfiguration, err)
	}

	table := vocab.CollectionTable{}
	for i, gc := range file.Collections {
		if gc.Name == "" {
			return nil, fmt.Errorf("%w: global collection %d has no name", vocab.ErrConfiguration, i)
		}
		if _, dup := table[gc.Name]; dup {
			return nil, fmt.Errorf("%w: global collection %q listed twice", vocab.ErrConfiguration, gc.Name)
		}
		policy, err := vocab.ParseLabelPolicy(gc.LabelPolicy)
		if err != nil {
			return nil, fmt.Errorf("global collection %q: %w", gc.Name, err)
		}
		cfg := vocab.CollectionConfig{
			TermRegex:   gc.TermRegex,
			LabelPolicy: policy,
			Description: gc.Description,
		}
		switch gc.Data {
		case "", "value":
			cfg.DataFactory = vocab.ValueOf
		case "none":
		default:
			return nil, fmt.Errorf("%w: global collection %q: unknown data factory %q", vocab.ErrConfiguration, gc.Name, gc.Data)
		}
		table[gc.Name] = cfg
	}
	return table, nil
}
