package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAPICall(t *testing.T) {
	r := New()

	r.RecordAPICall("create_server", nil, 200*time.Millisecond)
	r.RecordAPICall("create_server", nil, 300*time.Millisecond)
	r.RecordAPICall("create_server", errors.New("409"), 100*time.Millisecond)

	ok, err := r.apiCallsTotal.GetMetricWithLabelValues("create_server", "success")
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(ok))

	failed, err := r.apiCallsTotal.GetMetricWithLabelValues("create_server", "error")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(failed))

	assert.Equal(t, 1, testutil.CollectAndCount(r.apiLatency))
}

func TestRecordPollAttempt(t *testing.T) {
	r := New()

	r.RecordPollAttempt("server")
	r.RecordPollAttempt("server")
	r.RecordPollAttempt("volume")

	assert.Equal(t, float64(2), testutil.ToFloat64(r.pollAttempts.WithLabelValues("server")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.pollAttempts.WithLabelValues("volume")))
}

func TestRecordStage(t *testing.T) {
	r := New()

	r.RecordStage("provision_fleet", nil, time.Minute)
	r.RecordStage("configure", errors.New("host count"), time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.stagesTotal.WithLabelValues("provision_fleet", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.stagesTotal.WithLabelValues("configure", "error")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.RecordAPICall("show_image", nil, time.Second)
		r.RecordPollAttempt("image")
		r.RecordStage("image", nil, time.Second)
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "pipeman.prom")))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.RecordPollAttempt("snapshot")

	path := filepath.Join(t.TempDir(), "pipeman.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pipeman_poll_attempts_total{kind="snapshot"} 1`)

	assert.NoError(t, r.WriteTextfile(""))
}
