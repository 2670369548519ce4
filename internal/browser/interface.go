package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors shared by every layer that touches the page.
var (
	// ErrNotFound means no visible element matched any candidate.
	ErrNotFound = errors.New("element not found")
	// ErrTimedOut means a bounded wait expired before its condition held.
	ErrTimedOut = errors.New("wait timed out")
	// ErrStale means a previously resolved element is no longer attached.
	ErrStale = errors.New("element is stale")
	// ErrSessionLost means the browser session is gone and cannot be reused.
	ErrSessionLost = errors.New("browser session lost")
	// ErrUnexpectedScreen means the page matched no known wizard screen.
	ErrUnexpectedScreen = errors.New("unexpected screen")
)

// By selects the query language of a Query.
type By int

const (
	ByXPath By = iota
	ByCSS
)

func (b By) String() string {
	if b == ByCSS {
		return "css"
	}
	return "xpath"
}

// Query is one way of locating elements. Fields maps a name to an XPath
// evaluated relative to each match; the text of the first node it selects is
// returned in Element.Fields. Scope restricts the search to the subtree of a
// previously returned element.
type Query struct {
	By     By
	Expr   string
	Fields map[string]string
	Scope  string
}

// XPath builds an XPath query.
func XPath(expr string) Query { return Query{By: ByXPath, Expr: expr} }

// CSS builds a CSS selector query.
func CSS(expr string) Query { return Query{By: ByCSS, Expr: expr} }

// WithField returns a copy of q that also extracts a named relative field.
func (q Query) WithField(name, relXPath string) Query {
	fields := make(map[string]string, len(q.Fields)+1)
	for k, v := range q.Fields {
		fields[k] = v
	}
	fields[name] = relXPath
	q.Fields = fields
	return q
}

// Within returns a copy of q scoped to the element with the given ref.
func (q Query) Within(ref string) Query {
	q.Scope = ref
	return q
}

func (q Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s)", q.By, q.Expr)
	if q.Scope != "" {
		fmt.Fprintf(&b, " within %s", q.Scope)
	}
	return b.String()
}

// Element is a visible node captured at the moment of the query. Ref stays
// valid until the node is detached, after which actions return ErrStale.
type Element struct {
	Ref     string
	Text    string
	Class   string
	Value   string
	Enabled bool
	Fields  map[string]string
}

// Field returns an extracted field, or "" when it was not present.
func (e Element) Field(name string) string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields[name]
}

// HasClass reports whether the class attribute contains substr.
func (e Element) HasClass(substr string) bool {
	return strings.Contains(strings.ToLower(e.Class), strings.ToLower(substr))
}

// Signature is the number of visible matches for each named probe at one
// instant. It is the only input to screen inference.
type Signature map[string]int

// Has reports whether the named probe matched at least one element.
func (s Signature) Has(name string) bool { return s[name] > 0 }

func (s Signature) String() string {
	names := make([]string, 0, len(s))
	for name, n := range s {
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ",") + "}"
}

// Driver is the DOM primitive layer. It never waits: every call is a single
// immediate probe or action, and all waiting lives in the wait package.
type Driver interface {
	// Find returns every currently visible match of q, in document order.
	Find(ctx context.Context, q Query) ([]Element, error)
	// Click clicks el, returning ErrStale if it is no longer attached.
	Click(ctx context.Context, el Element) error
	// Type replaces the value of an input element with text.
	Type(ctx context.Context, el Element, text string) error
	// Signature counts visible matches for each probe in a single pass.
	Signature(ctx context.Context, probes map[string]Query) (Signature, error)
	// Navigate loads url in the current tab.
	Navigate(ctx context.Context, url string) error
	// Alive returns ErrSessionLost when the session can no longer be used.
	Alive(ctx context.Context) error
}

// Capturer snapshots the page for a failure report. Drivers implement it
// optionally; callers type-assert.
type Capturer interface {
	// Screenshot returns a PNG of the viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	// PageSource returns the serialized document.
	PageSource(ctx context.Context) (string, error)
}

// QuoteXPath quotes s as an XPath 1.0 string literal.
func QuoteXPath(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
