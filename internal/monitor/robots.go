package monitor

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"

	customhttp "github.com/BenjaminSRussell/urlmon/internal/http"
	"github.com/BenjaminSRussell/urlmon/internal/parser"
)

// RobotsAgent is the user agent name matched against robots.txt groups
const RobotsAgent = "urlmon"

type fetchFunc func(ctx context.Context, t customhttp.Target) (string, error)

// robotsGuard answers robots.txt questions per origin for one run
type robotsGuard struct {
	fetch fetchFunc
	log   zerolog.Logger
	cache sync.Map // map[string]*robotstxt.RobotsData
}

func newRobotsGuard(fetch fetchFunc, log zerolog.Logger) *robotsGuard {
	return &robotsGuard{fetch: fetch, log: log}
}

// Allowed reports whether t may be requested. An origin whose robots.txt
// cannot be fetched or parsed allows everything.
func (g *robotsGuard) Allowed(ctx context.Context, t customhttp.Target) bool {
	origin := t.BaseURL()

	if cached, ok := g.cache.Load(origin); ok {
		return allows(cached.(*robotstxt.RobotsData), t.Path)
	}

	robots := g.load(ctx, t)
	g.cache.Store(origin, robots)
	return allows(robots, t.Path)
}

func (g *robotsGuard) load(ctx context.Context, t customhttp.Target) *robotstxt.RobotsData {
	robotsTarget := t
	robotsTarget.Path = "/robots.txt"

	raw, err := g.fetch(ctx, robotsTarget)
	if err != nil {
		g.log.Debug().Err(err).Str("robots", robotsTarget.String()).Msg("robots.txt unavailable")
		return nil
	}

	code, _, err := parser.ParseStatus(raw)
	if err != nil {
		return nil
	}

	_, body := parser.SplitBody(raw)
	robots, err := robotstxt.FromStatusAndBytes(code, []byte(body))
	if err != nil {
		g.log.Debug().Err(err).Str("robots", robotsTarget.String()).Int("status", code).Msg("robots.txt ignored")
		return nil
	}

	return robots
}

func allows(robots *robotstxt.RobotsData, path string) bool {
	if robots == nil {
		return true
	}
	return robots.TestAgent(path, RobotsAgent)
}
