// Package verify checks that every page-relative reference in a generated
// output tree resolves to a file inside that tree.
package verify

import (
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
)

// PageFile is the file name of every generated page.
const PageFile = "index.html"

// BrokenLink is a local reference whose target does not exist.
type BrokenLink struct {
	Page   string `json:"page"`
	URL    string `json:"url"`
	Target string `json:"target"`
}

// Result summarizes a verification run.
type Result struct {
	Pages  int          `json:"pages"`
	Links  int          `json:"links"`
	Broken []BrokenLink `json:"broken,omitempty"`
}

// OK reports whether no broken link was found.
func (r *Result) OK() bool { return len(r.Broken) == 0 }

// Site walks root, parses every page, and resolves each local reference
// relative to the page that contains it. Pages and broken links are reported
// in lexical path order.
func Site(root string) (*Result, error) {
	var pages []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == PageFile {
			pages = append(pages, p)
		}
		return nil
	})
	if err != nil {
		return nil, perrors.FileSystem("walk", root, err)
	}
	sort.Strings(pages)

	res := &Result{Pages: len(pages)}
	for _, p := range pages {
		links, err := ExtractLinks(p)
		if err != nil {
			return nil, err
		}
		rel, _ := filepath.Rel(root, p)
		rel = filepath.ToSlash(rel)
		for _, l := range links {
			if !l.Local {
				continue
			}
			res.Links++
			target, ok := resolve(rel, l.URL)
			if ok && exists(root, target) {
				continue
			}
			res.Broken = append(res.Broken, BrokenLink{Page: rel, URL: l.URL, Target: target})
		}
	}
	slog.Debug("Verified output links",
		logfields.Output(root),
		logfields.Count(res.Links),
		slog.Int("broken", len(res.Broken)))
	return res, nil
}

// resolve maps ref, found in page (slash path relative to the root), to a
// slash path relative to the root. References escaping the root fail.
func resolve(page, ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return ref, false
	}
	target := path.Join(path.Dir(page), u.Path)
	if target == ".." || len(target) >= 3 && target[:3] == "../" {
		return target, false
	}
	return target, true
}

func exists(root, target string) bool {
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(target)))
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err = os.Stat(filepath.Join(root, filepath.FromSlash(target), PageFile))
		return err == nil
	}
	return true
}
