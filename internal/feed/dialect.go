package feed

import (
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/mmcdole/gofeed"
)

const xmlnsPrefix = "xmlns"

// Namespaces maps the prefixes declared on the feed root to their URIs.
// The default namespace is stored under the empty prefix.
type Namespaces map[string]string

// Dialect is a publisher-specific flavour of RSS.
type Dialect interface {
	// Name identifies the dialect in logs and metrics.
	Name() string
	// Recognizes reports whether the root namespace declarations mark a document of this dialect.
	Recognizes(ns Namespaces) bool
	// Links returns the item links in document order.
	Links(f *gofeed.Feed) []string
}

// DefaultDialects returns every dialect the extractor understands.
func DefaultDialects() []Dialect {
	return []Dialect{ABCNewsDialect{}}
}

// ABCNewsDialect matches feeds that declare the xmlns:abcnews namespace.
type ABCNewsDialect struct{}

// ABCNewsNamespacePrefix is the prefix ABC News declares on its RSS root.
const ABCNewsNamespacePrefix = "abcnews"

func (ABCNewsDialect) Name() string { return ABCNewsNamespacePrefix }

func (ABCNewsDialect) Recognizes(ns Namespaces) bool {
	_, ok := ns[ABCNewsNamespacePrefix]
	return ok
}

func (ABCNewsDialect) Links(f *gofeed.Feed) []string {
	return itemLinks(f)
}

// itemLinks collects non-empty item links. Items without one are skipped.
func itemLinks(f *gofeed.Feed) []string {
	links := make([]string, 0, len(f.Items))
	for _, item := range f.Items {
		if item == nil {
			continue
		}
		if link := strings.TrimSpace(item.Link); link != "" {
			links = append(links, link)
		}
	}
	return links
}

// rootNamespaces returns the namespace declarations on the document's <rss> element.
// ok is false when the root element is not <rss>.
func rootNamespaces(doc *xmlquery.Node) (Namespaces, bool) {
	root := xmlquery.FindOne(doc, "/rss")
	if root == nil {
		return nil, false
	}

	ns := Namespaces{}
	for _, attr := range root.Attr {
		switch {
		case attr.Name.Space == xmlnsPrefix:
			ns[attr.Name.Local] = attr.Value
		case attr.Name.Space == "" && attr.Name.Local == xmlnsPrefix:
			ns[""] = attr.Value
		case attr.Name.Space == "" && strings.HasPrefix(attr.Name.Local, xmlnsPrefix+":"):
			ns[strings.TrimPrefix(attr.Name.Local, xmlnsPrefix+":")] = attr.Value
		}
	}
	return ns, true
}
