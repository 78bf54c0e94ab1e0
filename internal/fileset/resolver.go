package fileset

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"s3-storage/internal/platform"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	separatorRun   = regexp.MustCompile(`[\\|/]+`)
	alternativeSep = regexp.MustCompile(`;+`)
	wildcardPrefix = regexp.MustCompile(`^.+?[*?]+`)
)

// Resolver expands wildcard expressions into the files they name.
type Resolver struct {
	fs    afero.Fs
	dir   string
	sugar *zap.SugaredLogger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFs walks fs instead of the operating system filesystem.
func WithFs(fs afero.Fs) Option {
	return func(r *Resolver) { r.fs = fs }
}

// WithDir anchors relative alternatives at dir instead of the process
// working directory.
func WithDir(dir string) Option {
	return func(r *Resolver) { r.dir = dir }
}

// WithLogger sets the logger used for walk diagnostics.
func WithLogger(sugar *zap.SugaredLogger) Option {
	return func(r *Resolver) { r.sugar = sugar }
}

// NewResolver returns a Resolver over the OS filesystem rooted at the
// current working directory, adjusted by opts.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(r)
	}
	if r.dir == "" {
		if wd, err := os.Getwd(); err == nil {
			r.dir = wd
		}
	}
	if r.sugar == nil {
		r.sugar = zap.NewNop().Sugar()
	}
	return r
}

// Resolve expands expression using a default Resolver.
func Resolve(expression string) ([]string, error) {
	return NewResolver().Resolve(expression)
}

// Normalize collapses every run of '\', '/' and '|' into a single '/'.
func Normalize(expression string) string {
	return separatorRun.ReplaceAllString(expression, "/")
}

// Alternatives normalizes expression and splits it on ';', dropping empty
// alternatives.
func Alternatives(expression string) []string {
	var alts []string
	for _, alt := range alternativeSep.Split(Normalize(expression), -1) {
		if alt != "" {
			alts = append(alts, alt)
		}
	}
	return alts
}

// BaseDir returns the literal directory an alternative's walk starts from.
// Without any wildcard the whole alternative is returned. An empty result
// means the wildcard run has no directory in front of it.
func BaseDir(alternative string) string {
	prefix := wildcardPrefix.FindString(alternative)
	if prefix == "" {
		return alternative
	}
	i := strings.LastIndex(prefix, "/")
	if i < 0 {
		return ""
	}
	return prefix[:i]
}

// Resolve returns the deduplicated, sorted set of files matched by any
// alternative of expression. Missing base directories contribute nothing;
// the only error is an alternative that cannot be compiled.
func (r *Resolver) Resolve(expression string) ([]string, error) {
	seen := make(map[string]struct{})
	files := make([]string, 0)

	for _, alt := range Alternatives(expression) {
		found, err := r.resolveAlternative(alt)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			files = append(files, f)
		}
	}

	sort.Strings(files)
	return files, nil
}

// anchor splits alt into a literal directory and the wildcard part below
// it, both cleaned of "." and ".." segments. Relative alternatives are
// placed under the resolver's directory and a leading '~' under the home
// directory. Absolute alternatives have no literal directory.
func (r *Resolver) anchor(alt string) (dir, rest string) {
	if alt == "~" || strings.HasPrefix(alt, "~/") {
		if home, err := homedir.Dir(); err == nil {
			return split(filepath.ToSlash(home), alt[1:])
		}
	}
	if strings.HasPrefix(alt, "/") || filepath.IsAbs(filepath.FromSlash(alt)) || r.dir == "" {
		return "", path.Clean(alt)
	}
	return split(filepath.ToSlash(r.dir), alt)
}

// split joins alt onto dir and returns the nearest ancestor of dir that
// still prefixes the cleaned result, with the remainder.
func split(dir, alt string) (string, string) {
	dir = path.Clean(dir)
	joined := path.Clean(dir + "/" + alt)
	for anc := dir; ; anc = path.Dir(anc) {
		if joined == anc {
			return anc, ""
		}
		prefix := strings.TrimSuffix(anc, "/") + "/"
		if strings.HasPrefix(joined, prefix) {
			return anc, joined[len(prefix):]
		}
		if path.Dir(anc) == anc {
			return "", joined
		}
	}
}

// baseUnder is BaseDir for rest placed below the literal directory dir.
func baseUnder(dir, rest string) string {
	if dir == "" {
		return BaseDir(rest)
	}
	prefix := wildcardPrefix.FindString("/" + rest)
	if prefix == "" {
		return path.Join(dir, rest)
	}
	return path.Join(dir, prefix[:strings.LastIndex(prefix, "/")])
}

func (r *Resolver) resolveAlternative(alt string) ([]string, error) {
	dir, rest := r.anchor(alt)
	m, err := CompileUnder(dir, rest)
	if err != nil {
		return nil, err
	}

	base := baseUnder(dir, rest)
	if base == "" {
		r.sugar.Debugf("No base directory for %s", alt)
		return nil, nil
	}
	base = filepath.FromSlash(base)

	info, err := r.fs.Stat(base)
	if err != nil {
		r.sugar.Debugf("Skipping %s: base %s not accessible: %v", alt, base, err)
		return nil, nil
	}

	if info.Mode().IsRegular() {
		return []string{base}, nil
	}
	if !info.IsDir() {
		return nil, nil
	}

	var files []string
	r.walk(base, m, []os.FileInfo{info}, &files)
	r.sugar.Debugf("Pattern %s matched %d file(s) under %s", m.Pattern(), len(files), base)
	return files, nil
}

// walk visits every entry below dir. Regular non-hidden files are tested
// against m; every directory is descended. Symlinks are followed unless the
// target is a directory already on the current path.
func (r *Resolver) walk(dir string, m *Matcher, ancestors []os.FileInfo, files *[]string) {
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		r.sugar.Debugf("Error reading directory %s: %v", dir, err)
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info := entry
		if entry.Mode()&os.ModeSymlink != 0 {
			if info, err = r.fs.Stat(path); err != nil {
				r.sugar.Debugf("Skipping dangling symlink %s: %v", path, err)
				continue
			}
		}

		switch {
		case info.Mode().IsRegular():
			if !platform.IsHidden(path, info) && m.Matches(path) {
				*files = append(*files, path)
			}
		case info.IsDir():
			if onPath(ancestors, info) {
				r.sugar.Debugf("Not following %s: directory cycle", path)
				continue
			}
			r.walk(path, m, append(ancestors, info), files)
		}
	}
}

func onPath(ancestors []os.FileInfo, info os.FileInfo) bool {
	for _, a := range ancestors {
		if os.SameFile(a, info) {
			return true
		}
	}
	return false
}
