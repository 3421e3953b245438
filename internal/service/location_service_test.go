package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/beunreal/internal/device"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/syncq"
)

func TestLocation_PermissionDenied(t *testing.T) {
	e := newEnv(t, false)
	e.geo.Denied = true
	assert.ErrorIs(t, e.location.SetEnabled(context.Background(), true), device.ErrPermissionDenied)

	loc, err := e.location.CurrentLocation(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestLocation_OfflineUpdatesCollapse(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	require.NoError(t, e.location.SetEnabled(ctx, true))

	_, err := e.location.CurrentLocation(ctx)
	require.NoError(t, err)
	e.geo.Location.Latitude = 48.9
	loc, err := e.location.CurrentLocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 48.9, loc.Latitude)

	pending, err := e.sync.Queue().Pending(ctx, syncq.KindLocationUpdate)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	var queued model.LocationData
	require.NoError(t, pending[0].Decode(&queued))
	assert.Equal(t, 48.9, queued.Latitude)
}

func TestLocation_PrivacyLatestWins(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	p, err := e.location.GetPrivacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultLocationPrivacy(), p)

	require.NoError(t, e.location.UpdatePrivacy(ctx, model.LocationPrivacy{ShareWith: model.ShareEveryone, Precision: model.PrecisionCity}))
	require.NoError(t, e.location.UpdatePrivacy(ctx, model.LocationPrivacy{ShareWith: model.ShareNobody, Precision: model.PrecisionApproximate}))
	assert.ErrorIs(t, e.location.UpdatePrivacy(ctx, model.LocationPrivacy{ShareWith: "strangers", Precision: model.PrecisionExact}), ErrInvalidInput)

	p, err = e.location.GetPrivacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ShareNobody, p.ShareWith)

	pending, err := e.sync.Queue().Pending(ctx, syncq.KindPrivacyUpdate)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	e.monitor.Set(true)
	_, err = e.sync.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, e.api.count("PUT /api/location/privacy"))
}

func TestLocation_OnlinePrivacyNotOverwrittenByQueued(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	bodies := e.api.recordBodies("PUT /api/location/privacy", 1)

	require.NoError(t, e.location.UpdatePrivacy(ctx, model.LocationPrivacy{ShareWith: model.ShareEveryone, Precision: model.PrecisionExact}))
	e.monitor.Set(true)
	res, err := e.sync.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Retried)

	require.NoError(t, e.location.UpdatePrivacy(ctx, model.LocationPrivacy{ShareWith: model.ShareNobody, Precision: model.PrecisionExact}))

	e.clock.Set(t0.Add(time.Hour))
	_, err = e.sync.Drain(ctx)
	require.NoError(t, err)

	sent := bodies()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1], string(model.ShareNobody))
	n, err := e.sync.Queue().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	p, err := e.location.GetPrivacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ShareNobody, p.ShareWith)
}

func TestLocation_OnlineUpdateNotOverwrittenByQueued(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	require.NoError(t, e.location.SetEnabled(ctx, true))
	bodies := e.api.recordBodies("POST /api/location/update", 1)

	e.geo.Location.Latitude = 10.5
	_, err := e.location.CurrentLocation(ctx)
	require.NoError(t, err)
	e.monitor.Set(true)
	res, err := e.sync.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Retried)

	e.geo.Location.Latitude = 20.25
	_, err = e.location.CurrentLocation(ctx)
	require.NoError(t, err)

	e.clock.Set(t0.Add(time.Hour))
	_, err = e.sync.Drain(ctx)
	require.NoError(t, err)

	sent := bodies()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1], "20.25")
	pending, err := e.sync.Queue().Pending(ctx, syncq.KindLocationUpdate)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDistance(t *testing.T) {
	// 巴黎 - 伦敦
	assert.InDelta(t, 343.5, Distance(48.8566, 2.3522, 51.5074, -0.1278), 2)
	assert.Zero(t, Distance(10, 10, 10, 10))
}
