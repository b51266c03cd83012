package scanner

import (
	"context"
	"fmt"
	"log"
	"path"
	"regexp"
	"sort"
	"strings"

	"seedbox-gateway/internal/catalog"
	"seedbox-gateway/internal/sftpx"
	"seedbox-gateway/internal/titles"
)

const (
	KindBooks  = "books"
	KindMovies = "movies"
	KindTV     = "tv"
	KindMusic  = "music"
)

// flat library files named "Author - Title.ext"
var flatNameRE = regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`)

// Root is one scannable media tree on the remote host.
type Root struct {
	Path string
	Exts []string
}

// Scanner walks remote media trees into catalogs and resolves a user's
// selection back to concrete files. Every operation opens its own SFTP
// session and closes it before returning.
type Scanner struct {
	factory sftpx.Factory
	roots   map[string]Root
}

func New(factory sftpx.Factory, roots map[string]Root) *Scanner {
	return &Scanner{factory: factory, roots: roots}
}

// Kinds lists the configured media kinds in a stable order.
func (s *Scanner) Kinds() []string {
	var kinds []string
	for _, k := range []string{KindBooks, KindMovies, KindTV, KindMusic} {
		if _, ok := s.roots[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (s *Scanner) Scan(ctx context.Context, kind string) (*catalog.Catalog, error) {
	switch kind {
	case KindBooks:
		return s.ScanBooks(ctx)
	case KindMovies:
		return s.ScanMovies(ctx)
	case KindTV:
		return s.ScanTV(ctx)
	case KindMusic:
		return s.ScanMusic(ctx)
	}
	return nil, fmt.Errorf("scan: unknown kind %q", kind)
}

// ScanBooks builds author -> book titles. Authors are directories under the
// library root; a book is a subdirectory holding at least one matching file,
// or a matching file directly inside the author directory. Files sitting
// flat at the root named "Author - Title.ext" are folded in as well.
func (s *Scanner) ScanBooks(ctx context.Context) (*catalog.Catalog, error) {
	root, err := s.rootFor(KindBooks)
	if err != nil {
		return nil, err
	}
	sess, err := s.factory.Connect()
	if err != nil {
		return nil, fmt.Errorf("scan %s: connect: %w", KindBooks, err)
	}
	defer sess.Close()

	entries, err := sess.ReadDir(root.Path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: list %s: %w", KindBooks, root.Path, err)
	}

	groups := make(map[string][]string)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			books := s.booksUnder(sess, path.Join(root.Path, name), root.Exts)
			if len(books) > 0 {
				groups[name] = append(groups[name], books...)
			}
			continue
		}
		if !titles.MatchesExt(name, root.Exts) {
			continue
		}
		base := titles.StripExt(name, root.Exts)
		if m := flatNameRE.FindStringSubmatch(base); m != nil {
			author := strings.TrimSpace(m[1])
			groups[author] = append(groups[author], titles.Clean(m[2]))
		}
	}
	for author, books := range groups {
		groups[author] = dedupeSorted(books)
	}
	return &catalog.Catalog{Kind: KindBooks, Groups: groups}, nil
}

func (s *Scanner) booksUnder(sess sftpx.Session, dir string, exts []string) []string {
	entries, err := sess.ReadDir(dir)
	if err != nil {
		log.Printf("[scan] skipping %s: %v", dir, err)
		return nil
	}
	var books []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			if s.dirHasMatch(sess, path.Join(dir, name), exts) {
				books = append(books, titles.Clean(name))
			}
		} else if titles.MatchesExt(name, exts) {
			books = append(books, titles.Clean(titles.StripExt(name, exts)))
		}
	}
	return books
}

// ScanMovies builds a flat title list: directories holding at least one
// matching file contribute their name, loose matching files their basename.
func (s *Scanner) ScanMovies(ctx context.Context) (*catalog.Catalog, error) {
	root, err := s.rootFor(KindMovies)
	if err != nil {
		return nil, err
	}
	sess, err := s.factory.Connect()
	if err != nil {
		return nil, fmt.Errorf("scan %s: connect: %w", KindMovies, err)
	}
	defer sess.Close()

	entries, err := sess.ReadDir(root.Path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: list %s: %w", KindMovies, root.Path, err)
	}

	var list []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			if s.dirHasMatch(sess, path.Join(root.Path, name), root.Exts) {
				list = append(list, titles.Clean(name))
			}
		} else if titles.MatchesExt(name, root.Exts) {
			list = append(list, titles.Clean(titles.StripExt(name, root.Exts)))
		}
	}
	return &catalog.Catalog{Kind: KindMovies, Titles: dedupeSorted(list)}, nil
}

// ScanTV builds show -> episode names. Episodes live directly inside the
// show directory or one level down in season directories. Show keys keep
// the directory name verbatim; only episode titles are cleaned.
func (s *Scanner) ScanTV(ctx context.Context) (*catalog.Catalog, error) {
	root, err := s.rootFor(KindTV)
	if err != nil {
		return nil, err
	}
	sess, err := s.factory.Connect()
	if err != nil {
		return nil, fmt.Errorf("scan %s: connect: %w", KindTV, err)
	}
	defer sess.Close()

	entries, err := sess.ReadDir(root.Path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: list %s: %w", KindTV, root.Path, err)
	}

	groups := make(map[string][]string)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		var episodes []string
		for _, f := range s.filesUnder(sess, path.Join(root.Path, name), root.Exts, 1) {
			episodes = append(episodes, titles.Clean(titles.StripExt(path.Base(f), root.Exts)))
		}
		if len(episodes) > 0 {
			groups[name] = dedupeSorted(episodes)
		}
	}
	return &catalog.Catalog{Kind: KindTV, Groups: groups}, nil
}

// ScanMusic builds artist -> track names, collecting tracks recursively so
// album subdirectories flatten into the artist's list. Artist keys keep the
// directory name verbatim; a loose matching file at the root stands alone
// under its literal filename.
func (s *Scanner) ScanMusic(ctx context.Context) (*catalog.Catalog, error) {
	root, err := s.rootFor(KindMusic)
	if err != nil {
		return nil, err
	}
	sess, err := s.factory.Connect()
	if err != nil {
		return nil, fmt.Errorf("scan %s: connect: %w", KindMusic, err)
	}
	defer sess.Close()

	entries, err := sess.ReadDir(root.Path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: list %s: %w", KindMusic, root.Path, err)
	}

	groups := make(map[string][]string)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			var tracks []string
			for _, f := range s.filesUnder(sess, path.Join(root.Path, name), root.Exts, 8) {
				tracks = append(tracks, titles.Clean(titles.StripExt(path.Base(f), root.Exts)))
			}
			if len(tracks) > 0 {
				groups[name] = dedupeSorted(tracks)
			}
		} else if titles.MatchesExt(name, root.Exts) {
			groups[name] = []string{titles.Clean(titles.StripExt(name, root.Exts))}
		}
	}
	return &catalog.Catalog{Kind: KindMusic, Groups: groups}, nil
}

// filesUnder returns full paths of matching files in dir, descending up to
// depth levels into subdirectories. Branches that fail to list are logged
// and skipped.
func (s *Scanner) filesUnder(sess sftpx.Session, dir string, exts []string, depth int) []string {
	entries, err := sess.ReadDir(dir)
	if err != nil {
		log.Printf("[scan] skipping %s: %v", dir, err)
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			if depth > 0 {
				out = append(out, s.filesUnder(sess, path.Join(dir, name), exts, depth-1)...)
			}
		} else if titles.MatchesExt(name, exts) {
			out = append(out, path.Join(dir, name))
		}
	}
	return out
}

func (s *Scanner) dirHasMatch(sess sftpx.Session, dir string, exts []string) bool {
	entries, err := sess.ReadDir(dir)
	if err != nil {
		log.Printf("[scan] skipping %s: %v", dir, err)
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && titles.MatchesExt(e.Name(), exts) {
			return true
		}
	}
	return false
}

func (s *Scanner) rootFor(kind string) (Root, error) {
	root, ok := s.roots[kind]
	if !ok {
		return Root{}, fmt.Errorf("scan: kind %q not configured", kind)
	}
	return root, nil
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
