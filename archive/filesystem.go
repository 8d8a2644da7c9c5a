package archive

import (
	"fmt"
	"os"
	"path/filepath"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	log "github.com/sirupsen/logrus"

	"github.com/ncasuk/amf-cv-transformer/cv"
)

// FileSystemWriter writes encoded authorities below a root directory,
// replacing whatever the previous run left for the same authority.
type FileSystemWriter struct {
	root string
}

func NewFileSystemWriter(root string) *FileSystemWriter {
	return &FileSystemWriter{root: root}
}

// Write stages and commits a in one step.
func (w *FileSystemWriter) Write(a *cv.Authority) error {
	st, err := w.Stage(a)
	if err != nil {
		return err
	}
	return st.Commit()
}

// Stage encodes a into a hidden directory beside the authority directory.
func (w *FileSystemWriter) Stage(a *cv.Authority) (cv.Staged, error) {
	docs, err := Encode(a)
	if err != nil {
		return nil, err
	}
	dir, err := AuthorityDir(a)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}

	staging, err := os.MkdirTemp(w.root, "."+dir+"-")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	st := &stagedDir{staging: staging, target: filepath.Join(w.root, dir), documents: len(docs)}
	if err := writeDocuments(staging, dir, docs); err != nil {
		st.Discard()
		return nil, err
	}
	if err := os.Chmod(staging, 0755); err != nil {
		st.Discard()
		return nil, err
	}
	return st, nil
}

func writeDocuments(staging, dir string, docs []Document) error {
	for _, d := range docs {
		rel, err := filepath.Rel(dir, filepath.FromSlash(d.Path))
		if err != nil {
			return err
		}
		p := filepath.Join(staging, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, d.Body, 0644); err != nil {
			return fmt.Errorf("write %s: %w", d.Path, err)
		}
	}
	return nil
}

type stagedDir struct {
	staging   string
	target    string
	documents int
}

// Commit moves the previous archive aside, renames the staged tree into its
// place and only then removes the previous one. A failed swap restores it.
func (s *stagedDir) Commit() error {
	defer os.RemoveAll(s.staging)

	previous := s.staging + ".previous"
	moved := true
	if err := os.Rename(s.target, previous); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("move previous archive aside: %w", err)
		}
		moved = false
	}
	if err := os.Rename(s.staging, s.target); err != nil {
		if moved {
			if rerr := os.Rename(previous, s.target); rerr != nil {
				log.WithError(rerr).WithField("path", previous).Error("Unable to restore previous archive")
			}
		}
		return fmt.Errorf("move archive into place: %w", err)
	}
	if moved {
		if err := os.RemoveAll(previous); err != nil {
			log.WithError(err).WithField("path", previous).Warn("Unable to remove previous archive")
		}
	}

	log.WithField("path", s.target).WithField("documents", s.documents).Info("Wrote CV archive to file system")
	return nil
}

func (s *stagedDir) Discard() error {
	return os.RemoveAll(s.staging)
}

func (w *FileSystemWriter) Healthcheck() fthealth.Check {
	return fthealth.Check{
		BusinessImpact:   "Vocabularies will not be archived",
		Name:             "Check CV archive directory is writable",
		PanicGuide:       "Set CV_ARCHIVE_DIR to a writable directory",
		Severity:         1,
		TechnicalSummary: fmt.Sprintf("Cannot create files below %s", w.root),
		Checker: func() (string, error) {
			if err := os.MkdirAll(w.root, 0755); err != nil {
				return "Cannot create archive directory", err
			}
			f, err := os.CreateTemp(w.root, ".healthcheck-")
			if err != nil {
				return "Cannot write to archive directory", err
			}
			f.Close()
			return "", os.Remove(f.Name())
		},
	}
}
