// Package verify checks a built artifact tree before it is published.
//
// The link checker walks generated HTML and reports intra-site links that do
// not resolve to a file in the artifact tree. External URLs are out of scope;
// only links the artifact itself should satisfy are checked.
package verify

import (
	"context"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
)

// LinkChecker verifies intra-site links in generated HTML.
type LinkChecker struct {
	failOnBroken bool
}

// NewLinkChecker returns a LinkChecker. When failOnBroken is false, broken
// links are logged as warnings and the stage succeeds.
func NewLinkChecker(failOnBroken bool) *LinkChecker {
	return &LinkChecker{failOnBroken: failOnBroken}
}

// BrokenLink is one unresolvable intra-site reference.
type BrokenLink struct {
	Page   string // HTML file containing the link, relative to the artifact root
	Target string // the link as written
}

// Verify walks the artifact tree and checks every internal link.
func (c *LinkChecker) Verify(ctx context.Context, artifactPath string) error {
	var broken []BrokenLink

	err := filepath.WalkDir(artifactPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".html") {
			return nil
		}

		rel, err := filepath.Rel(artifactPath, p)
		if err != nil {
			return err
		}

		links, err := extractLinks(p)
		if err != nil {
			return err
		}
		for _, link := range links {
			if !c.resolves(artifactPath, rel, link) {
				broken = append(broken, BrokenLink{Page: rel, Target: link})
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryBuild, errors.SeverityFatal, "link verification could not complete")
	}

	for _, b := range broken {
		slog.Warn("Broken internal link",
			logfields.File(b.Page),
			logfields.URL(b.Target))
	}

	if len(broken) > 0 && c.failOnBroken {
		return errors.VerifyFailed(len(broken))
	}

	slog.Info("Link verification completed",
		slog.Int("broken", len(broken)),
		logfields.Path(artifactPath))
	return nil
}

// resolves reports whether link, written in page, points at something inside
// the artifact tree. Directory targets resolve through their index.html.
func (c *LinkChecker) resolves(root, page, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != "" || u.Host != "" {
		return true // external link, out of scope
	}
	target := u.Path
	if target == "" {
		return true // pure fragment or query
	}

	var rel string
	if strings.HasPrefix(target, "/") {
		rel = strings.TrimPrefix(target, "/")
	} else {
		rel = path.Join(path.Dir(filepath.ToSlash(page)), target)
	}
	rel = filepath.FromSlash(rel)

	full := filepath.Join(root, rel)
	info, err := os.Stat(full)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err := os.Stat(filepath.Join(full, "index.html"))
		return err == nil
	}
	return true
}

// extractLinks pulls href/src attributes out of an HTML file.
func extractLinks(htmlPath string) ([]string, error) {
	file, err := os.Open(filepath.Clean(htmlPath))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close() // read-only
	}()

	doc, err := html.Parse(file)
	if err != nil {
		return nil, err
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key == "href" || attr.Key == "src" {
					links = append(links, attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return links, nil
}
