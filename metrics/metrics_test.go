package metrics

import (
	"testing"

	"github.com/m-lab/go/prometheusx/promtest"
)

func TestLintMetrics(t *testing.T) {
	WhiskerLookups.WithLabelValues("match")
	Decisions.WithLabelValues("table")
	FlowAborts.WithLabelValues("invariant")
	ReplayFlows.WithLabelValues("ok")
	promtest.LintMetrics(t)
}
