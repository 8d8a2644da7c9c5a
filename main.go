package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jawher/mow.cli"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/ncasuk/amf-cv-transformer/archive"
	"github.com/ncasuk/amf-cv-transformer/config"
	"github.com/ncasuk/amf-cv-transformer/cv"
	"github.com/ncasuk/amf-cv-transformer/s3"
	"github.com/ncasuk/amf-cv-transformer/sqlite"
	"github.com/ncasuk/amf-cv-transformer/vocab"
)

func main() {

	app := cli.App("amf-cv-transformer", "Converts the AMF vocabulary JSON files into an NCAS controlled vocabulary archive.")

	source := app.String(cli.StringOpt{
		Name:   "source",
		Desc:   "Directory containing the AMF vocabulary JSON files.",
		EnvVar: "VOCAB_SOURCE",
	})

	app.Action = func() {
		cfg := config.FromEnv(os.Getenv)
		if err := cfg.Validate(); err != nil {
			log.WithError(err).Fatal("Invalid configuration")
		}
		if err := cfg.ConfigureLogging(); err != nil {
			log.WithError(err).Fatal("Invalid configuration")
		}

		if err := run(*source, cfg); err != nil {
			log.WithError(err).WithField("source", *source).Fatal("Conversion failed")
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("Unable to start")
	}
}

func run(source string, cfg *config.Config) error {
	if source == "" {
		return fmt.Errorf("%w: --source is required", vocab.ErrConfiguration)
	}
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: vocab directory does not exist: %s", vocab.ErrConfiguration, source)
	}

	globals, err := cfg.LoadGlobalCollections()
	if err != nil {
		return err
	}

	writers, closers, err := newWriters(cfg)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.WithError(err).Warn("Unable to close archive writer")
			}
		}
	}()
	if err != nil {
		return err
	}

	svc := cv.NewService(writers...)
	if err := cv.NewHealthService(svc).Preflight(); err != nil {
		return fmt.Errorf("%w: preflight: %v", vocab.ErrConfiguration, err)
	}

	opts := vocab.DefaultOptions()
	opts.GlobalCollections = globals
	converter := vocab.NewConverter(svc, opts)
	authority, err := converter.Convert(source)
	if err != nil {
		return err
	}

	fields := log.Fields{"authority": authority.Name, "archive": cfg.ArchiveDir}
	converter.Metrics.Each(func(name string, m interface{}) {
		switch m := m.(type) {
		case metrics.Counter:
			fields[name] = m.Count()
		case metrics.Timer:
			fields[name] = m.Max()
		}
	})
	log.WithFields(fields).Info("Vocabulary conversion complete")
	return nil
}

// newWriters always archives to the file system; SQLite and S3 are added when
// configured. Writers commit in order, so S3, the only one that commits over
// the network, goes first and a failed upload leaves the local archives alone.
func newWriters(cfg *config.Config) ([]cv.Writer, []io.Closer, error) {
	var writers []cv.Writer
	var closers []io.Closer

	if cfg.ArchiveBucket != "" {
		client, err := s3.NewClient(cfg.ArchiveBucket, cfg.ArchivePrefix, cfg.AWSRegion)
		if err != nil {
			return nil, closers, fmt.Errorf("%w: create S3 client: %v", vocab.ErrConfiguration, err)
		}
		writers = append(writers, client)
	}

	if cfg.ArchiveDB != "" {
		store, err := sqlite.Open(cfg.ArchiveDB)
		if err != nil {
			return nil, closers, fmt.Errorf("%w: open archive database: %v", vocab.ErrConfiguration, err)
		}
		writers = append(writers, store)
		closers = append(closers, store)
	}

	writers = append(writers, archive.NewFileSystemWriter(cfg.ArchiveDir))
	return writers, closers, nil
}
