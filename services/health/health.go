// Package health reports whether the source store and the search index are reachable.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/meghashyamc/searchsync/logger"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	ComponentUp   = "up"
	ComponentDown = "down"

	checkTimeout = 3 * time.Second
)

type Checker interface {
	CheckConnection(ctx context.Context) bool
}

// PingerFunc adapts a ping style check, such as a redis client's, to Checker.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) CheckConnection(ctx context.Context) bool {
	return f(ctx) == nil
}

type Report struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

type Service struct {
	logger logger.Logger
	source Checker
	index  Checker
	cache  Checker
}

// New returns a Service. cache may be nil; when set it is reported but does not affect the status.
func New(logger logger.Logger, source Checker, index Checker, cache Checker) *Service {
	return &Service{logger: logger, source: source, index: index, cache: cache}
}

func (s *Service) Check(ctx context.Context) Report {
	var sourceUp, indexUp, cacheUp bool

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(s.probe(groupCtx, "source", s.source, &sourceUp))
	group.Go(s.probe(groupCtx, "index", s.index, &indexUp))
	if s.cache != nil {
		group.Go(s.probe(groupCtx, "cache", s.cache, &cacheUp))
	}
	err := group.Wait()

	report := Report{
		Components: map[string]string{
			"source": componentStatus(sourceUp),
			"index":  componentStatus(indexUp),
		},
		CheckedAt: time.Now().UTC(),
	}
	if s.cache != nil {
		report.Components["cache"] = componentStatus(cacheUp)
	}

	switch {
	case err != nil:
		s.logger.Error("health check failed", "err", err.Error())
		report.Status = StatusUnhealthy
	case sourceUp && indexUp:
		report.Status = StatusHealthy
	default:
		report.Status = StatusDegraded
	}

	return report
}

// probe never returns an error for a down component, only for a check that panicked.
func (s *Service) probe(ctx context.Context, name string, checker Checker, up *bool) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s check panicked: %v", name, r)
			}
		}()

		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		*up = checker.CheckConnection(checkCtx)
		if !*up {
			s.logger.Warn("component is down", "component", name)
		}
		return nil
	}
}

func componentStatus(up bool) string {
	if up {
		return ComponentUp
	}
	return ComponentDown
}
