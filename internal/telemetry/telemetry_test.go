package telemetry

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codexlens/codexlens/internal/chainsearch"
)

func TestRecordSearchExposesMetrics(t *testing.T) {
	r := New()
	r.RecordSearch(chainsearch.Stats{
		StageTimings: map[string]time.Duration{"stage1_coarse": 5 * time.Millisecond},
		Fallback:     "binary_coarse",
	})
	r.RecordBuild(3, 2, 0, 10*time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}
