package verify

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
)

// Link is one reference found in a generated page.
type Link struct {
	URL       string // href or src value as written
	Tag       string // a, img, script, link
	Attribute string // href or src
	// Local is true for references that resolve inside the output tree
	// (relative paths without scheme or host).
	Local bool
}

// ExtractLinks parses the HTML page at path and returns its references.
func ExtractLinks(path string) ([]Link, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, perrors.FileSystem("open", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return ExtractLinksFromReader(f)
}

// ExtractLinksFromReader returns the references of the HTML document in r,
// in document order.
func ExtractLinksFromReader(r io.Reader) ([]Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryValidation, perrors.SeverityError, "failed to parse HTML")
	}

	var links []Link
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if l, ok := elementLink(n); ok {
				links = append(links, l)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(doc)
	return links, nil
}

func elementLink(n *html.Node) (Link, bool) {
	var attr string
	switch n.Data {
	case "a", "link":
		attr = "href"
	case "img", "script":
		attr = "src"
	default:
		return Link{}, false
	}
	v := getAttr(n, attr)
	if v == "" {
		return Link{}, false
	}
	return Link{URL: v, Tag: n.Data, Attribute: attr, Local: isLocal(v)}, true
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isLocal(ref string) bool {
	if strings.HasPrefix(ref, "#") {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && !strings.HasPrefix(u.Path, "/") && u.Path != ""
}
