package walker

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-collect/collector/internal/ntfs/indxslack"
	"github.com/forensics-collect/collector/pkg/record"
)

type fakeVolume struct {
	root     Entry
	children map[uint64][]Entry
}

func (f *fakeVolume) Root() (Entry, error) { return f.root, nil }
func (f *fakeVolume) Children(dir Entry) ([]Entry, error) {
	return f.children[dir.MftReference], nil
}
func (f *fakeVolume) ReadData(e Entry) ([]byte, error) { return nil, nil }
func (f *fakeVolume) HashData(e Entry, md5, sha1, sha256 bool) (string, string, string, error) {
	return "d41d8cd98f00b204e9800998ecf8427e", "", "", nil
}
func (f *fakeVolume) IndxSlack(dir Entry) ([]indxslack.SlackEntry, error) { return nil, nil }
func (f *fakeVolume) Drive() string                                       { return "C:" }

func newFixture() *fakeVolume {
	root := Entry{MftReference: 5, IsDirectory: true, RawFilelist: record.RawFilelist{FullPath: ""}}
	docs := Entry{MftReference: 100, ParentReference: 5, Name: "docs", IsDirectory: true}
	fileA := Entry{MftReference: 101, ParentReference: 100, Name: "a.txt", IsDirectory: false}
	fileB := Entry{MftReference: 102, ParentReference: 5, Name: "b.exe", IsDirectory: false}

	return &fakeVolume{
		root: root,
		children: map[uint64][]Entry{
			5:   {docs, fileB},
			100: {fileA},
		},
	}
}

func TestWalkVisitsAllEntries(t *testing.T) {
	vol := newFixture()
	var names []string
	err := Walk(vol, Options{}, func(r record.RawFilelist) error {
		names = append(names, r.Filename)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs", "a.txt", "b.exe"}, names)
}

func TestWalkFilenameRegexFiltersButStillDescends(t *testing.T) {
	vol := newFixture()
	re := regexp.MustCompile(`\.txt$`)
	var names []string
	err := Walk(vol, Options{FilenameRegex: re}, func(r record.RawFilelist) error {
		names = append(names, r.Filename)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)
}

func TestWalkMaxDepthStopsRecursion(t *testing.T) {
	vol := newFixture()
	var names []string
	err := Walk(vol, Options{MaxDepth: 1}, func(r record.RawFilelist) error {
		names = append(names, r.Filename)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs", "b.exe"}, names)
}

func TestWalkHashesFilesWhenRequested(t *testing.T) {
	vol := newFixture()
	var row record.RawFilelist
	err := Walk(vol, Options{Hash: HashSet{MD5: true}}, func(r record.RawFilelist) error {
		if r.Filename == "a.txt" {
			row = r
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", row.MD5)
}

func TestWalkPropagatesVisitError(t *testing.T) {
	vol := newFixture()
	sentinel := assert.AnError
	err := Walk(vol, Options{}, func(r record.RawFilelist) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}
