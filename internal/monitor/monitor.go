package monitor

import (
	"context"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	customhttp "github.com/BenjaminSRussell/urlmon/internal/http"
	"github.com/BenjaminSRussell/urlmon/internal/parser"
	"github.com/BenjaminSRussell/urlmon/internal/storage"
	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// Monitor checks URLs one at a time and writes a report block per visit
type Monitor struct {
	config    types.Config
	connector *customhttp.Connector
	retry     *customhttp.RetryHandler
	exchange  customhttp.ExchangeOptions
	robots    *robotsGuard

	out       io.Writer
	log       zerolog.Logger
	recorders []storage.Recorder

	panics atomic.Int64
}

// New creates a monitor that reports to out and hands every visit to the
// given recorders
func New(config types.Config, out io.Writer, log zerolog.Logger, recorders ...storage.Recorder) (*Monitor, error) {
	profile, err := customhttp.TLSProfileByName(config.TLSProfile)
	if err != nil {
		return nil, err
	}

	if config.MaxVisits < 1 {
		return nil, fmt.Errorf("max visits must be at least 1, got %d", config.MaxVisits)
	}

	retryConfig := customhttp.DefaultRetryConfig()
	retryConfig.MaxRetries = config.MaxRetries

	exchange := customhttp.DefaultExchangeOptions()
	if config.ConnectTimeout > 0 {
		exchange.IdleTimeout = config.ConnectTimeout
	}
	if config.ExchangeTimeout > 0 {
		exchange.TotalTimeout = config.ExchangeTimeout
	}
	if config.MaxBodyBytes > 0 {
		exchange.MaxBytes = config.MaxBodyBytes
	}

	m := &Monitor{
		config:    config,
		connector: customhttp.NewConnector(config.ConnectTimeout, profile),
		retry:     customhttp.NewRetryHandler(retryConfig),
		exchange:  exchange,
		out:       out,
		log:       log,
		recorders: recorders,
	}

	if config.RespectRobots {
		m.robots = newRobotsGuard(m.fetch, log)
	}

	return m, nil
}

// Process visits raw and every follow-up it leads to, writing one report
// block per visit. Follow-ups are visited breadth first, so each block
// comes after the block that referenced it.
func (m *Monitor) Process(ctx context.Context, raw string) []types.Visit {
	frontier := NewFrontier(m.config.MaxHops, m.config.MaxVisits)
	frontier.Seed(raw)

	visits := make([]types.Visit, 0, 1)
	for {
		item, ok := frontier.Next()
		if !ok {
			break
		}

		visit := m.safeVisit(ctx, item)
		m.queueFollowUps(frontier, item, &visit)
		if frontier.Size() > 0 {
			m.log.Debug().Str("url", visit.URL).Int("pending", frontier.Size()).Msg("follow-ups queued")
		}
		m.emit(visit)

		visits = append(visits, visit)
	}

	if frontier.Admitted() > 1 {
		m.log.Debug().
			Str("url", raw).
			Int("visits", frontier.Admitted()).
			Msg("follow-ups done")
	}

	return visits
}

// visit runs one connect/exchange/classify round
func (m *Monitor) visit(ctx context.Context, item types.FollowItem) (visit types.Visit) {
	start := time.Now()
	visit = types.Visit{
		URL:       item.URL,
		Hop:       item.Hop,
		ParentURL: item.ParentURL,
		Kind:      types.KindOK,
		CheckedAt: start,
	}
	defer func() {
		visit.ElapsedMS = time.Since(start).Milliseconds()
	}()

	target, err := customhttp.ParseTarget(item.URL)
	if err != nil {
		return failed(visit, err)
	}

	if m.robots != nil && !m.robots.Allowed(ctx, target) {
		return failed(visit, types.NewVisitError(types.KindBlockedByRobots, "robots", item.URL, types.ErrBlockedByRobots))
	}

	raw, err := m.fetch(ctx, target)
	if err != nil {
		return failed(visit, err)
	}

	code, reason, err := parser.ParseStatus(raw)
	if err != nil {
		return failed(visit, err)
	}
	visit.StatusCode = code
	visit.Reason = reason

	switch {
	case parser.IsRedirect(code):
		location, ok := parser.ParseRedirectLocation(raw)
		if ok {
			location, ok = parser.ResolveReference(item.URL, location)
		}
		if !ok {
			visit.Kind = types.KindMissingRedirect
			visit.Error = types.ErrMissingRedirect.Error()
			return visit
		}
		visit.Redirect = location

	case parser.IsSuccess(code):
		visit.Referenced = m.referencedImages(raw, target.BaseURL())
	}

	return visit
}

// fetch connects to t, retrying network failures when configured, and
// runs one exchange. The transport is closed before fetch returns.
func (m *Monitor) fetch(ctx context.Context, t customhttp.Target) (string, error) {
	var conn net.Conn
	err := m.retry.Do(ctx, t.Host, func() error {
		c, err := m.connector.Connect(ctx, t)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return "", err
	}
	defer conn.Close()

	return customhttp.Exchange(ctx, conn, t.HostHeader(), t.Path, m.exchange)
}

// referencedImages returns the image URLs a 2xx response refers to: the
// first one, or all of them in follow mode all
func (m *Monitor) referencedImages(raw, baseURL string) []string {
	if m.config.FollowMode == types.FollowAll {
		return slices.Collect(parser.ExtractImageURLs(raw, baseURL))
	}

	if u, ok := parser.FirstImageURL(raw, baseURL); ok {
		return []string{u}
	}
	return nil
}

// queueFollowUps admits the visit's follow targets into the frontier and
// records any refusal on the visit
func (m *Monitor) queueFollowUps(frontier *Frontier, item types.FollowItem, visit *types.Visit) {
	if m.config.FollowMode == types.FollowNone {
		return
	}

	var notes []string
	for _, target := range visit.FollowTargets() {
		err := frontier.Add(item, target)
		if err == nil {
			continue
		}

		m.log.Debug().
			Str("url", visit.URL).
			Str("target", target).
			Int("hop", item.Hop).
			Err(err).
			Msg("follow-up refused")

		note := err.Error()
		if !slices.Contains(notes, note) {
			notes = append(notes, note)
		}
	}

	visit.FollowNote = strings.Join(notes, "; ")
}

// emit writes the report block, logs the visit and hands it to recorders
func (m *Monitor) emit(visit types.Visit) {
	if err := WriteReport(m.out, visit); err != nil {
		m.log.Error().Err(err).Str("url", visit.URL).Msg("failed to write report")
	}

	if visit.Kind == types.KindOK {
		m.log.Debug().
			Str("url", visit.URL).
			Int("hop", visit.Hop).
			Int("status", visit.StatusCode).
			Int64("elapsed", visit.ElapsedMS).
			Msg("visited")
	} else {
		event := m.log.Warn().
			Str("url", visit.URL).
			Int("hop", visit.Hop).
			Str("kind", string(visit.Kind)).
			Str("error", visit.Error).
			Int64("elapsed", visit.ElapsedMS)
		if visit.Kind == types.KindNetwork {
			if t, err := customhttp.ParseTarget(visit.URL); err == nil {
				event = event.Int("host_failures", m.retry.ConsecutiveFailures(t.Host))
			}
		}
		event.Msg("visit failed")
	}

	for _, r := range m.recorders {
		if err := r.SaveVisit(visit); err != nil {
			m.log.Warn().Err(err).Str("url", visit.URL).Msg("failed to record visit")
		}
	}
}

func failed(visit types.Visit, err error) types.Visit {
	visit.Kind = types.KindOf(err)
	visit.Error = err.Error()
	return visit
}
