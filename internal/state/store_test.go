package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	req := &models.DeployRequest{
		ServiceName:        "tuna-abc123",
		ModelName:          "meta-llama/Llama-3-8b",
		GPU:                "A100",
		GPUCount:           1,
		ServerlessProvider: "modal",
		SpotsCloud:         "aws",
	}
	result := &models.HybridDeployment{
		Serverless: &models.DeploymentResult{Provider: "modal", EndpointURL: "https://modal.example/infer"},
		Spot:       &models.DeploymentResult{Provider: "skyserve", EndpointURL: "http://1.2.3.4:30001"},
		RouterURL:  "http://1.2.3.4:8080",
	}

	require.NoError(t, store.Save(ctx, req, result))

	rec, err := store.Load(ctx, "tuna-abc123")
	require.NoError(t, err)
	assert.Equal(t, "modal", rec.ServerlessProviderName)
	assert.Equal(t, "skyserve", rec.SpotProviderName)
	assert.Equal(t, "https://modal.example/infer", rec.ServerlessEndpoint)
	assert.Equal(t, "http://1.2.3.4:8080", rec.RouterURL)
	assert.Equal(t, models.StatusActive, rec.Status)
}

func TestStore_SaveForcesNilSpotProviderWhenServerlessOnly(t *testing.T) {
	ctx := context.Background()
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	req := &models.DeployRequest{ServiceName: "tuna-solo", ServerlessProvider: "modal", ServerlessOnly: true}
	require.NoError(t, store.Save(ctx, req, nil))

	rec, err := store.Load(ctx, "tuna-solo")
	require.NoError(t, err)
	assert.Empty(t, rec.SpotProviderName)
	assert.Equal(t, "modal", rec.ServerlessProviderName)
}

func TestStore_ProviderNamesPersistEvenWithoutSpotResult(t *testing.T) {
	// An interrupted hybrid deploy (spot never finished) must still record
	// spot_provider_name so destroy can find it later.
	ctx := context.Background()
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	req := &models.DeployRequest{ServiceName: "tuna-partial", ServerlessProvider: "runpod", ServerlessOnly: false}
	result := &models.HybridDeployment{
		Serverless: &models.DeploymentResult{Provider: "runpod", EndpointURL: "https://runpod.example"},
		Spot:       nil,
	}
	require.NoError(t, store.Save(ctx, req, result))

	rec, err := store.Load(ctx, "tuna-partial")
	require.NoError(t, err)
	assert.Equal(t, "skyserve", rec.SpotProviderName)
	assert.Empty(t, rec.SpotEndpoint)
}

func TestStore_LoadMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	req := &models.DeployRequest{ServiceName: "tuna-status", ServerlessProvider: "modal"}
	require.NoError(t, store.Save(ctx, req, nil))
	require.NoError(t, store.UpdateStatus(ctx, "tuna-status", models.StatusDestroyed))

	rec, err := store.Load(ctx, "tuna-status")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDestroyed, rec.Status)
}

func TestStore_UpdateStatusMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	err = store.UpdateStatus(ctx, "nope", models.StatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListReturnsAllAndFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, &models.DeployRequest{ServiceName: "tuna-1", ServerlessProvider: "modal"}, nil))
	require.NoError(t, store.Save(ctx, &models.DeployRequest{ServiceName: "tuna-2", ServerlessProvider: "modal"}, nil))
	require.NoError(t, store.UpdateStatus(ctx, "tuna-2", models.StatusDestroyed))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := store.List(ctx, models.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "tuna-1", active[0].ServiceName)
}
