package content

import (
	"sort"
	"strings"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

// Node is one entry of the site tree. A group node has children and may own
// the page at its route (its index page). An external node has only a URL.
type Node struct {
	Title    string
	Route    route.Route
	Page     *Page
	URL      string
	Children []*Node

	order    int
	hasOrder bool
	sortPath string
}

// IsGroup reports whether the node has children.
func (n *Node) IsGroup() bool { return len(n.Children) > 0 }

// IsExternal reports whether the node links outside the site.
func (n *Node) IsExternal() bool { return n.URL != "" }

// SiteTree is the navigation hierarchy. It is a pure function of the page
// set and configuration and is rebuilt, never patched, after every change.
type SiteTree struct {
	Root *Node

	order []*Page
	index map[route.Route]int
}

// Pages returns the pages in document order (pre-order traversal).
func (t *SiteTree) Pages() []*Page { return t.order }

// PrevNext returns the neighbours of r in document order.
func (t *SiteTree) PrevNext(r route.Route) (prev, next *Page) {
	i, ok := t.index[r]
	if !ok {
		return nil, nil
	}
	if i > 0 {
		prev = t.order[i-1]
	}
	if i < len(t.order)-1 {
		next = t.order[i+1]
	}
	return prev, next
}

// Trail returns the nodes from the top level down to the node holding r,
// excluding the root node. It is empty when r is not in the tree.
func (t *SiteTree) Trail(r route.Route) []*Node {
	var trail []*Node
	var walk func(n *Node) bool
	walk = func(n *Node) bool {
		for _, c := range n.Children {
			trail = append(trail, c)
			if (c.Page != nil && c.Page.Route == r) || walk(c) {
				return true
			}
			trail = trail[:len(trail)-1]
		}
		return false
	}
	if t.Root != nil && walk(t.Root) {
		return trail
	}
	return nil
}

// buildTree assembles the hierarchy from pages (sorted by route) and applies
// navigation overrides. Dangling override routes come back as warnings.
func buildTree(pages []*Page, cfg *config.Config) (*SiteTree, []*errors.ClassifiedError) {
	root := &Node{Title: cfg.Title, Route: route.Root}
	nodes := map[route.Route]*Node{route.Root: root}
	dirNames := map[route.Route]string{}

	var ensure func(r route.Route) *Node
	ensure = func(r route.Route) *Node {
		if n, ok := nodes[r]; ok {
			return n
		}
		parent := ensure(r.Parent())
		n := &Node{Route: r, sortPath: string(r)}
		nodes[r] = n
		parent.Children = append(parent.Children, n)
		return n
	}

	for _, p := range pages {
		n := ensure(p.Route)
		n.Page = p
		n.Title = p.Title
		n.order, n.hasOrder = p.Order, p.HasOrder
		n.sortPath = p.Source
		recordDirNames(p, dirNames)
	}
	for r, n := range nodes {
		if n.Page == nil && r != route.Root {
			name := dirNames[r]
			if name == "" {
				segs := r.Segments()
				name = segs[len(segs)-1]
			}
			n.Title = DeriveTitle(name)
		}
	}
	sortChildren(root)

	var warnings []*errors.ClassifiedError
	if len(cfg.Nav) > 0 {
		used := map[*Node]bool{}
		top := make([]*Node, 0, len(cfg.Nav)+len(root.Children))
		for _, item := range cfg.Nav {
			if n := overrideNode(item, nodes, used, &warnings); n != nil {
				top = append(top, n)
			}
		}
		for _, c := range root.Children {
			if !used[c] {
				top = append(top, prune(c, used))
			}
		}
		root.Children = top
	}

	t := &SiteTree{Root: root, index: map[route.Route]int{}}
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Page != nil {
			if _, seen := t.index[n.Page.Route]; !seen {
				t.index[n.Page.Route] = len(t.order)
				t.order = append(t.order, n.Page)
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return t, warnings
}

// recordDirNames remembers the original spelling of each directory on the
// page's source path so group titles read "Getting Started", not the slug.
func recordDirNames(p *Page, names map[route.Route]string) {
	dirs := strings.Split(p.Source, "/")
	dirs = dirs[:len(dirs)-1]
	segs := p.Route.Segments()
	if p.Route != route.Root && len(segs) == len(dirs)+1 {
		segs = segs[:len(segs)-1]
	}
	if len(segs) != len(dirs) {
		return
	}
	for i := range dirs {
		r := route.Route(strings.Join(segs[:i+1], "/"))
		if _, ok := names[r]; !ok {
			names[r] = dirs[i]
		}
	}
}

// sortChildren orders siblings by explicit order first, then source path.
func sortChildren(n *Node) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.hasOrder != b.hasOrder {
			return a.hasOrder
		}
		if a.hasOrder && a.order != b.order {
			return a.order < b.order
		}
		return a.sortPath < b.sortPath
	})
	for _, c := range n.Children {
		sortChildren(c)
	}
}

func overrideNode(item config.NavItem, nodes map[route.Route]*Node, used map[*Node]bool, warnings *[]*errors.ClassifiedError) *Node {
	if item.URL != "" {
		return &Node{Title: item.Title, URL: item.URL}
	}

	var n *Node
	if item.Route != "" || (item.Title != "" && len(item.Children) == 0) {
		src, ok := nodes[route.Route(item.Route)]
		if !ok || (src.Page == nil && !src.IsGroup()) {
			*warnings = append(*warnings, errors.NewError(errors.CategoryConfig, "navigation override references unknown route").
				WithContext(errors.KeyRoute, item.Route).Warning().Build())
			return nil
		}
		cp := *src
		n = &cp
		switch {
		case src.Route == route.Root:
			n.Children = nil
		case len(item.Children) == 0:
			used[src] = true
			n.Children = pruneAll(src.Children, used)
		default:
			used[src] = true
		}
	} else {
		n = &Node{}
	}
	if item.Title != "" {
		n.Title = item.Title
	}
	if len(item.Children) > 0 {
		n.Children = nil
		for _, c := range item.Children {
			if cn := overrideNode(c, nodes, used, warnings); cn != nil {
				n.Children = append(n.Children, cn)
			}
		}
	}
	return n
}

// prune returns n without descendants that an override placed elsewhere.
func prune(n *Node, used map[*Node]bool) *Node {
	cp := *n
	cp.Children = pruneAll(n.Children, used)
	return &cp
}

func pruneAll(children []*Node, used map[*Node]bool) []*Node {
	out := make([]*Node, 0, len(children))
	for _, c := range children {
		if used[c] {
			continue
		}
		out = append(out, prune(c, used))
	}
	return out
}
