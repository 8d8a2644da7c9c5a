package vocab

import (
	"fmt"
	"os"
	"regexp"
)

// FilenamePattern matches "<prefix><identifier>.json" and captures the identifier.
func FilenamePattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `([A-Za-z0-9_]+)\.json$`)
}

// DiscoverCollections lists dir (non-recursively) and returns one facility
// collection per matching regular file. Other entries are skipped.
func DiscoverCollections(dir, prefix string) (CollectionTable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrNotFound, dir, err)
	}

	pattern := FilenamePattern(prefix)
	collections := CollectionTable{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		collections[m[1]] = CollectionConfig{
			DataFactory: ValueOf,
			LabelPolicy: LabelIdentifier,
		}
	}
	return collections, nil
}
