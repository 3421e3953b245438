package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/beunreal/internal/device"
)

func TestCamera_TakePhotoAttachesLocation(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	require.NoError(t, e.location.SetEnabled(ctx, true))

	p, err := e.cam.TakePhoto(ctx)
	require.NoError(t, err)
	require.NotNil(t, p.Location)
	assert.Equal(t, 48.8566, p.Location.Latitude)
	assert.Equal(t, t0, p.CreatedAt)

	got, err := e.cam.PhotoByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	ok, err := e.cam.DeletePhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCamera_LocationFailureStillSaves(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	require.NoError(t, e.location.SetEnabled(ctx, true))
	e.geo.Err = errors.New("no fix")

	p, err := e.cam.TakePhoto(ctx)
	require.NoError(t, err)
	assert.Nil(t, p.Location)

	_, err = e.cam.ImportPhoto(ctx, device.Capture{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, e.cam.DeleteAllPhotos(ctx))
	photos, err := e.cam.Photos(ctx)
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestCamera_CaptureError(t *testing.T) {
	e := newEnv(t, false)
	e.camera.Err = device.ErrUnavailable
	_, err := e.cam.TakePhoto(context.Background())
	assert.ErrorIs(t, err, device.ErrUnavailable)
}
