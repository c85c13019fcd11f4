package site

import (
	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/render"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

// NavView converts the tree into the navigation shown on every page, with
// the node for current marked active and its ancestors open. Every page
// sees the same tree; only the marks differ.
func NavView(tree *content.SiteTree, current route.Route, cfg *config.Config) []render.NavItem {
	if tree == nil || tree.Root == nil {
		return nil
	}
	var items []render.NavItem
	if tree.Root.Page != nil {
		items = append(items, render.NavItem{
			Title:  tree.Root.Page.Title,
			URL:    route.Root.URL(cfg.BaseURL, cfg.Output.Style),
			Active: current == route.Root,
		})
	}
	for _, c := range tree.Root.Children {
		item, _ := navItem(c, current, cfg)
		items = append(items, item)
	}
	return items
}

func navItem(n *content.Node, current route.Route, cfg *config.Config) (render.NavItem, bool) {
	item := render.NavItem{Title: n.Title}
	switch {
	case n.IsExternal():
		item.URL = n.URL
		item.External = true
	case n.Page != nil:
		item.URL = n.Page.Route.URL(cfg.BaseURL, cfg.Output.Style)
		item.Active = n.Page.Route == current
	}
	onPath := item.Active
	for _, c := range n.Children {
		child, childOnPath := navItem(c, current, cfg)
		item.Children = append(item.Children, child)
		onPath = onPath || childOnPath
	}
	item.Open = onPath && len(n.Children) > 0
	return item, onPath
}

// Breadcrumbs lists the ancestors of current, ending with the page itself.
func Breadcrumbs(tree *content.SiteTree, current route.Route, cfg *config.Config) []render.Link {
	if tree == nil {
		return nil
	}
	var out []render.Link
	for _, n := range tree.Trail(current) {
		l := render.Link{Title: n.Title}
		if n.Page != nil {
			l.URL = n.Page.Route.URL(cfg.BaseURL, cfg.Output.Style)
		}
		out = append(out, l)
	}
	return out
}
