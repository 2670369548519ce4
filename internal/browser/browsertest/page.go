// Package browsertest provides a scripted in-memory browser.Driver. A Page is
// a set of named screens; each screen maps query expressions to the nodes
// they match. Click handlers switch screens or mutate nodes, which is enough
// to model the wizard without a real browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/fleetpm/internal/browser"
)

// Node is one element on a screen.
type Node struct {
	Ref      string
	Text     string
	Class    string
	Value    string
	Disabled bool
	Hidden   bool
	Fields   map[string]string
	// Children answer scoped queries, keyed by query expression.
	Children map[string][]*Node
	// EnableAfterFinds makes a disabled-looking node report enabled once it
	// has been returned by Find this many times.
	EnableAfterFinds int
	// StaleClicks makes the next N clicks fail with browser.ErrStale.
	StaleClicks int
	OnClick     func(p *Page)
	OnType      func(p *Page, text string)

	finds int
}

func (n *Node) enabled() bool {
	if n.EnableAfterFinds > 0 {
		return n.finds >= n.EnableAfterFinds
	}
	return !n.Disabled
}

// Screen is a named page state.
type Screen struct {
	Name  string
	nodes map[string][]*Node
}

// Add registers nodes as the matches of q on this screen.
func (s *Screen) Add(q browser.Query, nodes ...*Node) *Screen {
	s.nodes[q.Expr] = append(s.nodes[q.Expr], nodes...)
	return s
}

// Set replaces the matches of q on this screen.
func (s *Screen) Set(q browser.Query, nodes ...*Node) *Screen {
	s.nodes[q.Expr] = nodes
	return s
}

// Remove drops every match of q.
func (s *Screen) Remove(q browser.Query) *Screen {
	delete(s.nodes, q.Expr)
	return s
}

// Page implements browser.Driver.
type Page struct {
	mu          sync.Mutex
	screens     map[string]*Screen
	current     string
	clicks      []string
	typed       map[string]string
	navigations []string
	lost        bool
	seq         int

	// OnNavigate runs after every Navigate call.
	OnNavigate func(p *Page, url string)
	// FindErr, when set, is returned by every Find.
	FindErr error
	// CaptureErr, when set, is returned by Screenshot and PageSource.
	CaptureErr error
}

var (
	_ browser.Driver   = (*Page)(nil)
	_ browser.Capturer = (*Page)(nil)
)

// NewPage returns an empty page showing a blank screen.
func NewPage() *Page {
	p := &Page{screens: map[string]*Screen{}, typed: map[string]string{}}
	p.Screen("blank")
	p.current = "blank"
	return p
}

// Screen returns the named screen, creating it when needed.
func (p *Page) Screen(name string) *Screen {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.screens[name]
	if !ok {
		s = &Screen{Name: name, nodes: map[string][]*Node{}}
		p.screens[name] = s
	}
	return s
}

// Show switches the visible screen.
func (p *Page) Show(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.screens[name]; !ok {
		panic(fmt.Sprintf("browsertest: unknown screen %q", name))
	}
	p.current = name
}

// Current returns the visible screen name.
func (p *Page) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// LoseSession makes every subsequent call fail with browser.ErrSessionLost.
func (p *Page) LoseSession() {
	p.mu.Lock()
	p.lost = true
	p.mu.Unlock()
}

// Clicks returns the refs of every successful click, in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// ClickCount returns how many times ref was clicked.
func (p *Page) ClickCount(ref string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.clicks {
		if c == ref {
			n++
		}
	}
	return n
}

// Typed returns the last text typed into ref.
func (p *Page) Typed(ref string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[ref]
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *Page) Find(ctx context.Context, q browser.Query) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lost {
		return nil, browser.ErrSessionLost
	}
	if p.FindErr != nil {
		return nil, p.FindErr
	}

	var candidates []*Node
	if q.Scope != "" {
		parent := p.lookup(q.Scope)
		if parent == nil {
			return nil, nil
		}
		candidates = parent.Children[q.Expr]
	} else {
		candidates = p.screens[p.current].nodes[q.Expr]
	}

	var out []browser.Element
	for _, n := range candidates {
		if n.Hidden {
			continue
		}
		n.finds++
		out = append(out, p.element(n))
	}
	return out, nil
}

func (p *Page) Click(ctx context.Context, el browser.Element) error {
	p.mu.Lock()
	if p.lost {
		p.mu.Unlock()
		return browser.ErrSessionLost
	}
	n := p.lookup(el.Ref)
	if n == nil || n.Hidden {
		p.mu.Unlock()
		return browser.ErrStale
	}
	if n.StaleClicks > 0 {
		n.StaleClicks--
		p.mu.Unlock()
		return browser.ErrStale
	}
	if !n.enabled() {
		// A disabled control swallows the click.
		p.mu.Unlock()
		return nil
	}
	p.clicks = append(p.clicks, n.Ref)
	hook := n.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Type(ctx context.Context, el browser.Element, text string) error {
	p.mu.Lock()
	if p.lost {
		p.mu.Unlock()
		return browser.ErrSessionLost
	}
	n := p.lookup(el.Ref)
	if n == nil || n.Hidden {
		p.mu.Unlock()
		return browser.ErrStale
	}
	n.Value = text
	p.typed[n.Ref] = text
	hook := n.OnType
	p.mu.Unlock()

	if hook != nil {
		hook(p, text)
	}
	return nil
}

func (p *Page) Signature(ctx context.Context, probes map[string]browser.Query) (browser.Signature, error) {
	sig := browser.Signature{}
	for name, q := range probes {
		els, err := p.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		sig[name] = len(els)
	}
	return sig, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	if p.lost {
		p.mu.Unlock()
		return browser.ErrSessionLost
	}
	p.navigations = append(p.navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) Alive(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lost {
		return browser.ErrSessionLost
	}
	return nil
}

// Screenshot returns a fake PNG naming the current screen.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.captureErr(); err != nil {
		return nil, err
	}
	return []byte("\x89PNG screen=" + p.current), nil
}

// PageSource returns a minimal document naming the current screen.
func (p *Page) PageSource(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.captureErr(); err != nil {
		return "", err
	}
	return fmt.Sprintf("<html><body data-screen=%q></body></html>", p.current), nil
}

func (p *Page) captureErr() error {
	if p.lost {
		return browser.ErrSessionLost
	}
	return p.CaptureErr
}

// lookup finds a node on the current screen by ref, searching children.
// Callers hold p.mu.
func (p *Page) lookup(ref string) *Node {
	var walk func(nodes map[string][]*Node) *Node
	walk = func(nodes map[string][]*Node) *Node {
		for _, list := range nodes {
			for _, n := range list {
				if n.Ref == ref {
					return n
				}
				if found := walk(n.Children); found != nil {
					return found
				}
			}
		}
		return nil
	}
	return walk(p.screens[p.current].nodes)
}

// element snapshots n. Nodes without a ref get a generated one.
func (p *Page) element(n *Node) browser.Element {
	if n.Ref == "" {
		p.seq++
		n.Ref = fmt.Sprintf("node-%d", p.seq)
	}
	fields := make(map[string]string, len(n.Fields))
	for k, v := range n.Fields {
		fields[k] = v
	}
	return browser.Element{
		Ref:     n.Ref,
		Text:    n.Text,
		Class:   n.Class,
		Value:   n.Value,
		Enabled: n.enabled(),
		Fields:  fields,
	}
}
