package health

import (
	"context"
	"errors"
	"testing"

	"github.com/meghashyamc/searchsync/logger"
	"github.com/stretchr/testify/require"
)

type staticChecker bool

func (c staticChecker) CheckConnection(ctx context.Context) bool {
	return bool(c)
}

type panickingChecker struct{}

func (panickingChecker) CheckConnection(ctx context.Context) bool {
	panic("boom")
}

func TestCheck(t *testing.T) {
	testCases := []struct {
		name       string
		source     Checker
		index      Checker
		cache      Checker
		wantStatus string
		wantCache  string
	}{
		{name: "all up", source: staticChecker(true), index: staticChecker(true), wantStatus: StatusHealthy},
		{name: "source down", source: staticChecker(false), index: staticChecker(true), wantStatus: StatusDegraded},
		{name: "index down", source: staticChecker(true), index: staticChecker(false), wantStatus: StatusDegraded},
		{name: "both down", source: staticChecker(false), index: staticChecker(false), wantStatus: StatusDegraded},
		{name: "check panics", source: panickingChecker{}, index: staticChecker(true), wantStatus: StatusUnhealthy},
		{name: "cache down does not degrade", source: staticChecker(true), index: staticChecker(true), cache: staticChecker(false), wantStatus: StatusHealthy, wantCache: ComponentDown},
		{
			name:   "ping style cache",
			source: staticChecker(true), index: staticChecker(true),
			cache:      PingerFunc(func(ctx context.Context) error { return errors.New("refused") }),
			wantStatus: StatusHealthy, wantCache: ComponentDown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			report := New(logger.Discard(), tc.source, tc.index, tc.cache).Check(context.Background())
			assert.Equal(tc.wantStatus, report.Status)
			assert.Equal(tc.wantCache, report.Components["cache"])
			assert.Contains([]string{ComponentUp, ComponentDown}, report.Components["source"])
		})
	}
}
