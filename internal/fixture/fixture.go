package fixture

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Default subdirectory names for the accept and reject sets.
const (
	DefaultAcceptDir = "yes"
	DefaultRejectDir = "no"
)

// Name prefixes encoding the expected label.
const (
	AcceptPrefix = "y_"
	RejectPrefix = "n_"
)

// ModeAll is the display name of an unrestricted run.
const ModeAll = "ALL"

// Case is a single labeled input file.
type Case struct {
	// Path is the absolute path of the fixture file.
	Path string `json:"path"`

	// Name is the base file name, used as the report key.
	Name string `json:"name"`

	// ExpectedAccept is true for accept-set fixtures.
	ExpectedAccept bool `json:"expected_accept"`

	// Size is the file size in bytes at scan time.
	Size int64 `json:"size"`
}

// Set is the ordered, immutable collection produced by Load.
type Set struct {
	cases    []Case
	restrict string
}

// NewSet builds a Set from explicit cases. The slice is copied.
func NewSet(restrict string, cases ...Case) *Set {
	cp := make([]Case, len(cases))
	copy(cp, cases)
	return &Set{cases: cp, restrict: restrict}
}

// Cases returns a copy of the cases in enumeration order.
func (s *Set) Cases() []Case {
	cp := make([]Case, len(s.cases))
	copy(cp, s.cases)
	return cp
}

// Len returns the number of cases.
func (s *Set) Len() int {
	return len(s.cases)
}

// Restrict returns the restriction tag, or "" for an unrestricted set.
func (s *Set) Restrict() string {
	return s.restrict
}

// Mode returns the restriction tag, or ModeAll when unrestricted.
func (s *Set) Mode() string {
	if s.restrict == "" {
		return ModeAll
	}
	return s.restrict
}

// Filter returns the subset of cases whose names carry the tag-derived
// prefix for their label. Filtering an already-restricted set narrows it
// further.
func (s *Set) Filter(tag string) *Set {
	if tag == "" {
		return NewSet(s.restrict, s.cases...)
	}
	var out []Case
	for _, c := range s.cases {
		if Matches(c.Name, c.ExpectedAccept, tag) {
			out = append(out, c)
		}
	}
	return &Set{cases: out, restrict: tag}
}

// Prefix returns the file name prefix selected by tag for the given label.
func Prefix(expectedAccept bool, tag string) string {
	if expectedAccept {
		return AcceptPrefix + tag
	}
	return RejectPrefix + tag
}

// Matches reports whether name is selected by tag for the given label.
// Names are compared in NFC so decomposed file names still match.
func Matches(name string, expectedAccept bool, tag string) bool {
	if tag == "" {
		return true
	}
	return strings.HasPrefix(norm.NFC.String(name), norm.NFC.String(Prefix(expectedAccept, tag)))
}

// Options controls Load.
type Options struct {
	// AcceptDir is the accept-set subdirectory name. Defaults to "yes".
	AcceptDir string

	// RejectDir is the reject-set subdirectory name. Defaults to "no".
	RejectDir string

	// Restrict narrows the set to y_<tag>/n_<tag> files when non-empty.
	Restrict string
}

func (o Options) withDefaults() Options {
	if o.AcceptDir == "" {
		o.AcceptDir = DefaultAcceptDir
	}
	if o.RejectDir == "" {
		o.RejectDir = DefaultRejectDir
	}
	return o
}

// Load scans root for the accept and reject subdirectories.
//
// The accept set is enumerated first, then the reject set. Within a
// directory, order is whatever the filesystem listing returns.
func Load(root string, opts Options) (*Set, error) {
	opts = opts.withDefaults()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve fixture root: %w", err)
	}

	accepted, err := scanDir(filepath.Join(absRoot, opts.AcceptDir), true, opts.Restrict)
	if err != nil {
		return nil, err
	}
	rejected, err := scanDir(filepath.Join(absRoot, opts.RejectDir), false, opts.Restrict)
	if err != nil {
		return nil, err
	}

	cases := make([]Case, 0, len(accepted)+len(rejected))
	cases = append(cases, accepted...)
	cases = append(cases, rejected...)
	return &Set{cases: cases, restrict: opts.Restrict}, nil
}

func scanDir(dir string, expectedAccept bool, restrict string) ([]Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &StructureError{Dir: dir, Reason: "fixture directory not found"}
		}
		return nil, fmt.Errorf("read fixture directory %s: %w", dir, err)
	}

	var cases []Case
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		// A symlink counts as the file it points to.
		var target fs.FileInfo
		mode := entry.Type()
		if mode&fs.ModeSymlink != 0 {
			target, err = os.Stat(path)
			if err != nil {
				return nil, &StructureError{Dir: dir, Entry: entry.Name(), Reason: "dangling symlink"}
			}
			if !target.Mode().IsRegular() {
				return nil, &StructureError{
					Dir:    dir,
					Entry:  entry.Name(),
					Reason: fmt.Sprintf("expected regular file, found symlink to %s", describeMode(target.Mode().Type())),
				}
			}
			mode = target.Mode().Type()
		}
		if !mode.IsRegular() {
			return nil, &StructureError{
				Dir:    dir,
				Entry:  entry.Name(),
				Reason: fmt.Sprintf("expected regular file, found %s", describeMode(mode)),
			}
		}
		if !Matches(entry.Name(), expectedAccept, restrict) {
			continue
		}

		if target == nil {
			target, err = entry.Info()
			if err != nil {
				return nil, fmt.Errorf("stat fixture %s: %w", entry.Name(), err)
			}
		}
		cases = append(cases, Case{
			Path:           path,
			Name:           entry.Name(),
			ExpectedAccept: expectedAccept,
			Size:           target.Size(),
		})
	}
	return cases, nil
}

func describeMode(m fs.FileMode) string {
	switch {
	case m.IsDir():
		return "directory"
	case m&fs.ModeSymlink != 0:
		return "symlink"
	case m&fs.ModeNamedPipe != 0:
		return "named pipe"
	case m&fs.ModeSocket != 0:
		return "socket"
	case m&fs.ModeDevice != 0:
		return "device"
	default:
		return "irregular file"
	}
}

// StructureError reports a fixture layout that violates the
// regular-files-only convention.
type StructureError struct {
	Dir    string
	Entry  string
	Reason string
}

func (e *StructureError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("fixture structure: %s: %s", filepath.Join(e.Dir, e.Entry), e.Reason)
	}
	return fmt.Sprintf("fixture structure: %s: %s", e.Dir, e.Reason)
}
