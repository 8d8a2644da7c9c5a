package vocab

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncasuk/amf-cv-transformer/archive"
	"github.com/ncasuk/amf-cv-transformer/cv"
)

func TestConverter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"AMF_foo.json": `{"foo": {"a": 1, "b": 2}}`,
		"README.md":    `ignored`,
	})
	mock := newMockArchive()

	authority, err := NewConverter(mock, DefaultOptions()).Convert(dir)
	require.NoError(t, err)
	require.Len(t, mock.archived, 1)
	assert.Same(t, authority, mock.archived[0])

	foo := authority.Scope("AMF").Collection("foo")
	require.NotNil(t, foo)
	assert.Equal(t, "NCAS AMF CV collection: foo", foo.Description)
	assert.Equal(t, CreateDate, foo.CreateDate)
	require.Len(t, foo.Terms, 2)
	assert.Equal(t, "a", foo.Terms[0].Name)
	assert.Equal(t, "a", foo.Terms[0].Label)
	assert.Equal(t, json.RawMessage(`1`), foo.Terms[0].Data)
	assert.Equal(t, "b", foo.Terms[1].Name)
	assert.Equal(t, json.RawMessage(`2`), foo.Terms[1].Data)
	assert.Equal(t, CreateDate, foo.Terms[1].CreateDate)

	assert.Empty(t, authority.Scope("GLOBAL").Collections)
	assert.Equal(t, []string{
		"authority:NCAS",
		"scope:AMF",
		"scope:GLOBAL",
		"collection:AMF/foo",
		"term:foo/a",
		"term:foo/b",
		"archive",
	}, mock.calls)
}

func TestConverter_CollectionsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"AMF_scientist.json": `{"scientist": {"x": {}}}`,
		"AMF_platform.json":  `{"platform": {"y": {}}}`,
	})

	authority, err := NewConverter(newMockArchive(), DefaultOptions()).Convert(dir)
	require.NoError(t, err)
	collections := authority.Scope("AMF").Collections
	require.Len(t, collections, 2)
	assert.Equal(t, "platform", collections[0].Name)
	assert.Equal(t, "scientist", collections[1].Name)
}

func TestConverter_MissingSourceDirectory(t *testing.T) {
	mock := newMockArchive()
	_, err := NewConverter(mock, DefaultOptions()).Convert(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "vocab directory does not exist")
	assert.Empty(t, mock.calls)
}

func TestConverter_SourceIsAFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "AMF_foo.json")
	require.NoError(t, os.WriteFile(file, []byte(`{}`), 0644))
	mock := newMockArchive()

	_, err := NewConverter(mock, DefaultOptions()).Convert(file)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Empty(t, mock.calls)
}

func TestConverter_ParseErrorAbortsRun(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"AMF_aaa.json": `{"aaa": {"ok": 1}}`,
		"AMF_bar.json": `{"bar": {"a": 1`,
		"AMF_zzz.json": `{"zzz": {"never": 1}}`,
	})
	mock := newMockArchive()

	_, err := NewConverter(mock, DefaultOptions()).Convert(dir)
	assert.True(t, errors.Is(err, ErrParse))
	assert.NotContains(t, mock.calls, "archive")
	for _, call := range mock.calls {
		assert.NotContains(t, call, "term:bar/")
		assert.NotContains(t, call, "zzz")
	}
}

func TestConverter_MissingKeyAbortsRun(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"AMF_baz.json": `{"wrong_key": {}}`})
	mock := newMockArchive()

	_, err := NewConverter(mock, DefaultOptions()).Convert(dir)
	assert.True(t, errors.Is(err, ErrMissingKey))
	assert.Empty(t, mock.archived)
}

func TestConverter_DuplicateTermSurfaced(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"AMF_dup.json": `{"dup": {"Lidar": 1, "lidar": 2}}`})
	mock := newMockArchive()

	_, err := NewConverter(mock, DefaultOptions()).Convert(dir)
	assert.True(t, errors.Is(err, cv.ErrDuplicateName))
	assert.Empty(t, mock.archived)
}

func TestConverter_ArchiveFailure(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"AMF_foo.json": `{"foo": {"a": 1}}`})
	mock := newMockArchive()
	mock.err = errors.New("read-only file system")

	_, err := NewConverter(mock, DefaultOptions()).Convert(dir)
	assert.EqualError(t, err, "read-only file system")
}

func TestConverter_GlobalCollectionsUseTheirOwnConfig(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"AMF_platform.json": `{"platform": {"ncas-lidar-1": {"type": "lidar"}}}`,
		"units.json":        `{"units": {"m": "metre", "s": "second"}}`,
		"regions.json":      `{"regions": {"uk": {"name": "United Kingdom"}}}`,
	})
	opts := DefaultOptions()
	opts.GlobalCollections = CollectionTable{
		"units": {
			LabelPolicy: LabelNone,
			TermRegex:   `[a-z]+`,
		},
		"regions": {
			DataFactory: ValueOf,
			LabelPolicy: LabelIdentifier,
			Description: "Regions",
		},
	}

	authority, err := NewConverter(newMockArchive(), opts).Convert(dir)
	require.NoError(t, err)

	global := authority.Scope("GLOBAL")
	require.Len(t, global.Collections, 2)

	regions := global.Collection("regions")
	assert.Equal(t, "Regions", regions.Description)
	assert.Equal(t, "uk", regions.Terms[0].Label)
	assert.JSONEq(t, `{"name": "United Kingdom"}`, string(regions.Terms[0].Data))

	units := global.Collection("units")
	assert.Equal(t, "NCAS GLOBAL CV collection: units", units.Description)
	assert.Equal(t, `[a-z]+`, units.TermRegex)
	require.Len(t, units.Terms, 2)
	assert.Empty(t, units.Terms[0].Label)
	assert.Nil(t, units.Terms[0].Data)

	platform := authority.Scope("AMF").Collection("platform")
	assert.Equal(t, "ncas-lidar-1", platform.Terms[0].Label)
	assert.Nil(t, authority.Scope("AMF").Collection("units"))
}

func TestConverter_GlobalTermRegexRejectsTerm(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"units.json": `{"units": {"Metre": 1}}`})
	opts := DefaultOptions()
	opts.GlobalCollections = CollectionTable{"units": {TermRegex: `[a-z]+`}}

	_, err := NewConverter(newMockArchive(), opts).Convert(dir)
	assert.True(t, errors.Is(err, cv.ErrInvalidTermName))
}

func TestConverter_Metrics(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"AMF_foo.json": `{"foo": {"a": 1, "b": 2}}`,
		"AMF_bar.json": `{"bar": {"c": 3}}`,
	})
	c := NewConverter(newMockArchive(), DefaultOptions())
	_, err := c.Convert(dir)
	require.NoError(t, err)

	assert.Equal(t, int64(2), c.Metrics.Get("collections.facility").(metrics.Counter).Count())
	assert.Equal(t, int64(3), c.Metrics.Get("terms").(metrics.Counter).Count())
	assert.Nil(t, c.Metrics.Get("collections.global"))
	assert.Equal(t, int64(1), c.Metrics.Get("convert").(metrics.Timer).Count())
}

func TestConverter_Idempotent(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"AMF_platform.json":  `{"platform": {"ncas-lidar-1": {"type": "lidar", "html": "<b>"}, "ncas-radar-1": [1, 2.50, null]}}`,
		"AMF_scientist.json": `{"scientist": {"jane": {"orcid": "0000"}}}`,
	})

	run := func() map[string][]byte {
		root := t.TempDir()
		svc := cv.NewService(archive.NewFileSystemWriter(root))
		_, err := NewConverter(svc, DefaultOptions()).Convert(dir)
		require.NoError(t, err)

		files := map[string][]byte{}
		err = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(p)
			files[rel] = body
			return err
		})
		require.NoError(t, err)
		return files
	}

	first := run()
	second := run()
	assert.Len(t, first, 4)
	assert.Contains(t, first, filepath.Join("ncas", "MANIFEST"))
	assert.Contains(t, first, filepath.Join("ncas", "amf", "platform", "ncas-radar-1"))
	assert.Equal(t, first, second)
}
