package benchmark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessLine_ExtractsFirstMatchPerPhaseOnly(t *testing.T) {
	w := &LogWatcher{}
	t0 := time.Now()

	w.processLine(t0, "container booting")
	w.processLine(t0.Add(time.Second), "Loading model weights now")
	w.processLine(t0.Add(2*time.Second), "Loading model weights again") // second match ignored
	w.processLine(t0.Add(3*time.Second), "Uvicorn running on 0.0.0.0:8000")

	phases := w.Phases()
	assert.Equal(t, t0, phases.ContainerStart)
	assert.Equal(t, t0.Add(time.Second), phases.ModelLoadStart)
	assert.Equal(t, t0.Add(3*time.Second), phases.Ready)
}

func TestCreateLogWatcher_ReturnsNilWhenMetadataMissing(t *testing.T) {
	assert.Nil(t, CreateLogWatcher("modal", map[string]string{}))
	assert.Nil(t, CreateLogWatcher("baseten", map[string]string{"model_id": "abc"}))
	assert.NotNil(t, CreateLogWatcher("modal", map[string]string{"app_name": "my-app"}))
}

func TestCreateLogWatcher_UnsupportedProviderReturnsNil(t *testing.T) {
	assert.Nil(t, CreateLogWatcher("runpod", map[string]string{"anything": "x"}))
}
