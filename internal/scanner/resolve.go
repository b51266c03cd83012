package scanner

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"seedbox-gateway/internal/sftpx"
	"seedbox-gateway/internal/titles"
	"seedbox-gateway/pkg/types"
)

// Resolve maps a human selection back to remote files. The selector is
// "Group | Item" or a bare group/title: group matching is case-insensitive
// exact first, then substring; item matching compares normalized forms.
func (s *Scanner) Resolve(ctx context.Context, kind, selector string) ([]types.ResolvedFile, error) {
	group, item := splitSelector(selector)
	if group == "" {
		return nil, fmt.Errorf("resolve: empty selector")
	}
	root, err := s.rootFor(kind)
	if err != nil {
		return nil, err
	}
	sess, err := s.factory.Connect()
	if err != nil {
		return nil, fmt.Errorf("resolve %s: connect: %w", kind, err)
	}
	defer sess.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var files []types.ResolvedFile
	switch kind {
	case KindBooks:
		files, err = s.resolveBooks(sess, root, group, item)
	case KindMovies:
		files, err = s.resolveFlatTitle(sess, root, group)
	case KindTV:
		files, err = s.resolveGrouped(sess, root, group, item, 1)
	case KindMusic:
		files, err = s.resolveGrouped(sess, root, group, item, 8)
	default:
		return nil, fmt.Errorf("resolve: unknown kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return dedupeFiles(files), nil
}

func (s *Scanner) resolveBooks(sess sftpx.Session, root Root, author, book string) ([]types.ResolvedFile, error) {
	entries, err := sess.ReadDir(root.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve books: list %s: %w", root.Path, err)
	}

	var out []types.ResolvedFile
	dirName, found := matchGroup(entries, author)
	if found {
		authorDir := path.Join(root.Path, dirName)
		inner, err := sess.ReadDir(authorDir)
		if err != nil {
			return nil, fmt.Errorf("resolve books: list %s: %w", authorDir, err)
		}
		for _, e := range inner {
			name := e.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			if e.IsDir() {
				if book == "" || itemMatches(name, book) {
					for _, f := range s.filesUnder(sess, path.Join(authorDir, name), root.Exts, 1) {
						out = append(out, s.statted(sess, f))
					}
				}
				continue
			}
			if !titles.MatchesExt(name, root.Exts) {
				continue
			}
			if book == "" || itemMatches(titles.StripExt(name, root.Exts), book) {
				out = append(out, types.ResolvedFile{Path: path.Join(authorDir, name), Size: e.Size()})
			}
		}
		return out, nil
	}

	// No author directory: fall back to flat "Author - Title.ext" root files.
	if book == "" {
		return nil, nil
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !titles.MatchesExt(name, root.Exts) {
			continue
		}
		if m := flatNameRE.FindStringSubmatch(titles.StripExt(name, root.Exts)); m != nil {
			if itemMatches(m[2], book) {
				out = append(out, types.ResolvedFile{Path: path.Join(root.Path, name), Size: e.Size()})
			}
		}
	}
	return out, nil
}

// resolveFlatTitle serves movie-style roots: directories whose name matches
// the title contribute every matching file inside, loose files match on
// their stripped basename.
func (s *Scanner) resolveFlatTitle(sess sftpx.Session, root Root, title string) ([]types.ResolvedFile, error) {
	entries, err := sess.ReadDir(root.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve: list %s: %w", root.Path, err)
	}
	var out []types.ResolvedFile
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			if itemMatches(name, title) {
				for _, f := range s.filesUnder(sess, path.Join(root.Path, name), root.Exts, 1) {
					out = append(out, s.statted(sess, f))
				}
			}
		} else if titles.MatchesExt(name, root.Exts) && itemMatches(titles.StripExt(name, root.Exts), title) {
			out = append(out, types.ResolvedFile{Path: path.Join(root.Path, name), Size: e.Size()})
		}
	}
	return out, nil
}

// resolveGrouped serves tv and music roots: find the group directory, then
// matching files directly inside or up to depth levels down.
func (s *Scanner) resolveGrouped(sess sftpx.Session, root Root, group, item string, depth int) ([]types.ResolvedFile, error) {
	entries, err := sess.ReadDir(root.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve: list %s: %w", root.Path, err)
	}
	dirName, found := matchGroup(entries, group)
	if !found {
		return nil, nil
	}
	var out []types.ResolvedFile
	for _, f := range s.filesUnder(sess, path.Join(root.Path, dirName), root.Exts, depth) {
		if item == "" || itemMatches(titles.StripExt(path.Base(f), root.Exts), item) {
			out = append(out, s.statted(sess, f))
		}
	}
	return out, nil
}

// FindFile locates a single book by author and title, preferring an exact
// normalized title match.
func (s *Scanner) FindFile(ctx context.Context, author, title string) (types.ResolvedFile, bool, error) {
	files, err := s.Resolve(ctx, KindBooks, author+" | "+title)
	if err != nil {
		return types.ResolvedFile{}, false, err
	}
	if len(files) == 0 {
		return types.ResolvedFile{}, false, nil
	}
	want := titles.Normalize(title)
	for _, f := range files {
		base := path.Base(f.Path)
		if titles.Normalize(base[:len(base)-len(path.Ext(base))]) == want {
			return f, true, nil
		}
	}
	return files[0], true, nil
}

func (s *Scanner) statted(sess sftpx.Session, p string) types.ResolvedFile {
	size := int64(0)
	if fi, err := sess.Stat(p); err == nil {
		size = fi.Size()
	}
	return types.ResolvedFile{Path: p, Size: size}
}

func splitSelector(sel string) (group, item string) {
	parts := strings.SplitN(sel, "|", 2)
	group = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		item = strings.TrimSpace(parts[1])
	}
	return group, item
}

// matchGroup picks a directory entry by name: exact case-insensitive match
// wins, otherwise the first normalized-substring match.
func matchGroup(entries []os.FileInfo, want string) (string, bool) {
	for _, e := range entries {
		if e.IsDir() && strings.EqualFold(e.Name(), want) {
			return e.Name(), true
		}
	}
	w := titles.Normalize(want)
	for _, e := range entries {
		if e.IsDir() && strings.Contains(titles.Normalize(e.Name()), w) {
			return e.Name(), true
		}
	}
	return "", false
}

func itemMatches(name, want string) bool {
	n, w := titles.Normalize(name), titles.Normalize(want)
	return n == w || strings.Contains(n, w)
}

func dedupeFiles(in []types.ResolvedFile) []types.ResolvedFile {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, f := range in {
		if _, ok := seen[f.Path]; ok {
			continue
		}
		seen[f.Path] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
