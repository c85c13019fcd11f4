package devserver

import (
	"maps"

	"git.home.luguber.info/inful/teadocs/internal/assets"
	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/route"
	"git.home.luguber.info/inful/teadocs/internal/site"
)

// entry is what the server answers for one page.
type entry struct {
	// art is the last good artifact, nil when the page never compiled.
	art    *site.Artifact
	body   []byte
	status int
	// err is set when the current source failed to build.
	err error
}

// snapshot is an immutable view of the site. The worker publishes a new
// one after every change; handlers only read.
type snapshot struct {
	gen      uint64
	cfg      *config.Config
	pipe     *assets.Pipeline
	routes   map[route.Route]bool
	pages    map[route.Route]*entry
	assets   map[string]assets.Location
	notFound []byte
	problems []string
}

// next returns a copy to be modified before publication. Entries are
// shared, so unchanged pages keep their identity.
func (s *snapshot) next() *snapshot {
	cp := *s
	cp.gen++
	cp.pages = maps.Clone(s.pages)
	return &cp
}
