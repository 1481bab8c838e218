// resource.go: state-dependent actions for places and the draft.
//
// Bodies that implement Actor get one Link header per available action, so a
// client can tell from a draft response whether confirm or adjust is allowed.
package humastar

import (
	"fmt"
	"strings"
)

// Action is a hypermedia action link, formatted as
//
//	</api/v1/draft/confirm>; rel="confirm"; method="POST"; title="Add to trip"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
}

// Actor is implemented by response bodies that provide state-dependent actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as an RFC 8288 Link header value.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		fmt.Fprintf(&b, `; method="%s"`, a.Method)
	}
	if a.Title != "" {
		fmt.Fprintf(&b, `; title="%s"`, a.Title)
	}
	return b.String()
}

// ActionDef is an action template. Pattern takes the resource id through a
// single %s verb; patterns without one are used as-is.
type ActionDef struct {
	Rel     string
	Pattern string
	Method  string
	Title   string
}

// ActionsFor expands defs for one resource id.
func ActionsFor(id string, defs []ActionDef) []Action {
	actions := make([]Action, len(defs))
	for i, d := range defs {
		href := d.Pattern
		if strings.Contains(d.Pattern, "%s") {
			href = fmt.Sprintf(d.Pattern, id)
		}
		actions[i] = Action{Rel: d.Rel, Href: href, Method: d.Method, Title: d.Title}
	}
	return actions
}
