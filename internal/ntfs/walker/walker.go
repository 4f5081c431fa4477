// Package walker implements the depth-first NTFS directory walker (spec
// §4.1, C7): starting from a configured path, it recurses through
// directory index entries, building one record.RawFilelist row per file
// or directory encountered and optionally hashing file contents. With
// RecoverIndx set it calls IndxSlack for each matching directory, but the
// recovered entries are not emitted as rows and a recovery error is
// discarded.
package walker

import (
	"path"
	"regexp"
	"strings"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/internal/ntfs/attr"
	"github.com/forensics-collect/collector/internal/ntfs/indxslack"
	"github.com/forensics-collect/collector/pkg/record"
)

const component = "walker"

// Entry is the minimal view of one NTFS directory member the volume
// layer exposes to the walker; concrete lookups of attributes and child
// listings are left to the Volume interface below.
type Entry struct {
	MftReference   uint64
	SequenceNumber uint16
	ParentReference uint64
	Name           string
	IsDirectory    bool
	Attributes     []attr.Attribute
	RawFilelist    record.RawFilelist
}

// Volume abstracts the operations the walker needs from the underlying
// NTFS reader, so it can run against either a live raw-volume reader or a
// fixture built from synthetic FILE records in tests.
type Volume interface {
	// Root returns the entry for the volume's root directory.
	Root() (Entry, error)
	// Children lists the direct children of a directory entry.
	Children(dir Entry) ([]Entry, error)
	// ReadData reads and optionally decompresses a file entry's unnamed
	// data stream.
	ReadData(e Entry) ([]byte, error)
	// HashData computes the requested digests of a file entry's unnamed
	// data stream without necessarily materializing it twice.
	HashData(e Entry, md5, sha1, sha256 bool) (md5Hex, sha1Hex, sha256Hex string, err error)
	// IndxSlack recovers deleted directory-entry remnants for a directory
	// entry's index allocation, when recovery is requested.
	IndxSlack(dir Entry) ([]indxslack.SlackEntry, error)
	Drive() string
}

// Options configures one walk (spec §6's artifact options table, as
// applied to the NTFS walker specifically).
type Options struct {
	StartPath     string
	MaxDepth      int // 0 means unlimited
	RecoverIndx   bool
	Hash          HashSet
	PathRegex     *regexp.Regexp
	FilenameRegex *regexp.Regexp
}

// HashSet selects which digests to compute for encountered files.
type HashSet struct {
	MD5, SHA1, SHA256 bool
}

// Visit is called once per record produced by the walk; returning an
// error aborts the walk and is propagated to the caller of Walk.
type Visit func(record.RawFilelist) error

// Walk performs the depth-first traversal described in spec §4.1 and
// invokes visit for every matching file and directory record.
func Walk(vol Volume, opts Options, visit Visit) error {
	root, err := vol.Root()
	if err != nil {
		return ferrors.Wrap(ferrors.ErrRootDirectory, component, "resolve root", err)
	}

	start := root
	if opts.StartPath != "" && opts.StartPath != "/" && opts.StartPath != "\\" {
		found, err := descendTo(vol, root, opts.StartPath)
		if err != nil {
			return ferrors.Wrap(ferrors.ErrBadStart, component, opts.StartPath, err)
		}
		start = found
	}

	return walkDir(vol, start, opts, 0, visit)
}

func descendTo(vol Volume, root Entry, startPath string) (Entry, error) {
	parts := strings.FieldsFunc(startPath, func(r rune) bool { return r == '/' || r == '\\' })
	current := root
	for _, part := range parts {
		children, err := vol.Children(current)
		if err != nil {
			return Entry{}, err
		}
		var next *Entry
		for i := range children {
			if strings.EqualFold(children[i].Name, part) {
				next = &children[i]
				break
			}
		}
		if next == nil {
			return Entry{}, ferrors.ErrBadStart
		}
		current = *next
	}
	return current, nil
}

func walkDir(vol Volume, dir Entry, opts Options, depth int, visit Visit) error {
	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		return nil
	}

	children, err := vol.Children(dir)
	if err != nil {
		return ferrors.Wrap(ferrors.ErrIndexDirectory, component, dir.Name, err)
	}

	for _, child := range children {
		row := buildRow(vol, child, dir, depth)
		if !matches(opts, row) {
			if child.IsDirectory {
				if err := walkDir(vol, child, opts, depth+1, visit); err != nil {
					return err
				}
			}
			continue
		}

		if child.IsDirectory {
			if opts.RecoverIndx {
				_, slackErr := vol.IndxSlack(child)
				if slackErr != nil {
					// Slack recovery failure never aborts the directory's
					// own traversal; the error is discarded here.
					_ = slackErr
				}
			}
		} else {
			attachFileData(vol, child, opts, &row)
		}

		if err := visit(row); err != nil {
			return err
		}

		if child.IsDirectory {
			if err := walkDir(vol, child, opts, depth+1, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

func attachFileData(vol Volume, e Entry, opts Options, row *record.RawFilelist) {
	if !opts.Hash.MD5 && !opts.Hash.SHA1 && !opts.Hash.SHA256 {
		return
	}
	md5Hex, sha1Hex, sha256Hex, err := vol.HashData(e, opts.Hash.MD5, opts.Hash.SHA1, opts.Hash.SHA256)
	if err != nil {
		return
	}
	row.MD5 = md5Hex
	row.SHA1 = sha1Hex
	row.SHA256 = sha256Hex
}

func buildRow(vol Volume, e Entry, parent Entry, depth int) record.RawFilelist {
	row := e.RawFilelist
	row.FullPath = path.Join(parent.RawFilelist.FullPath, e.Name)
	row.Directory = parent.RawFilelist.FullPath
	row.Filename = e.Name
	row.Extension = extOf(e.Name)
	row.IsDirectory = e.IsDirectory
	row.IsFile = !e.IsDirectory
	row.Depth = depth
	row.Drive = vol.Drive()
	return row
}

func extOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return name[i+1:]
}

func matches(opts Options, row record.RawFilelist) bool {
	if opts.PathRegex != nil && !opts.PathRegex.MatchString(row.FullPath) {
		return false
	}
	if opts.FilenameRegex != nil && !opts.FilenameRegex.MatchString(row.Filename) {
		return false
	}
	return true
}
