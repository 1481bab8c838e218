package humastar

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 Link headers derived from the OpenAPI paths, keyed by
// operation path.
type Links struct {
	mu    sync.RWMutex
	byOp  map[string][]string
	entry string
}

// Build walks the registered paths. Call after all routes are registered;
// the zero Links serves no static links until then. Item paths link up to
// their collection, collections link to their item template, and the entry
// path links to every collection plus the OpenAPI document. Paths tagged
// skipTag (SSE endpoints) are ignored.
func (l *Links) Build(api huma.API, entry, skipTag string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byOp = map[string][]string{}
	l.entry = entry
	oapi := api.OpenAPI()

	var collections, items []string
	for p, pi := range oapi.Paths {
		if hasTag(pi, skipTag) {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	sort.Strings(collections)
	sort.Strings(items)

	for _, item := range items {
		parent := path.Dir(item)
		if _, ok := oapi.Paths[parent]; ok {
			l.add(item, parent, "collection")
			l.add(parent, item, "item")
		}
	}
	for _, coll := range collections {
		if coll == entry {
			continue
		}
		l.add(coll, entry, "up")
		l.add(entry, coll, lastSegment(coll))
	}
	l.add(entry, "/openapi.json", "service-desc")
	l.add(entry, "/docs", "service-doc")
}

func (l *Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	for _, existing := range l.byOp[from] {
		if existing == val {
			return
		}
	}
	l.byOp[from] = append(l.byOp[from], val)
}

// For returns the links of an operation path.
func (l *Links) For(opPath string) []string {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byOp[opPath]
}

// Entry returns the entry point links, for non-Huma handlers.
func (l *Links) Entry() []string {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	entry := l.entry
	l.mu.RUnlock()
	return l.For(entry)
}

// LinkTransformer returns a Huma Transformer that writes Link headers: the
// static links for the operation (links may be nil), a self link for item
// endpoints, pagination links from a [Pager] body and action links from an
// [Actor] body.
func LinkTransformer(links *Links) huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func hasTag(pi *huma.PathItem, tag string) bool {
	if tag == "" {
		return false
	}
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op == nil {
			continue
		}
		for _, t := range op.Tags {
			if t == tag {
				return true
			}
		}
	}
	return false
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}
