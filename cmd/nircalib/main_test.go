package main

import (
	"strings"
	"testing"

	"phenotrace/internal/camera"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLandmarks(t *testing.T) {
	lm, err := readLandmarks(strings.NewReader(`{
		"vis": {"cols": 2454, "rows": 2056},
		"nir": {"cols": 720, "rows": 576},
		"pairs": [{"vis": {"x": 100, "y": 200}, "nir": {"x": 31, "y": 61}}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 2454, lm.VIS.Cols)
	require.Len(t, lm.Pairs, 1)
	assert.Equal(t, 61.0, lm.Pairs[0].NIR.Y)

	_, err = readLandmarks(strings.NewReader(`{"vis": {"cols": 0, "rows": 1}, "nir": {"cols": 1, "rows": 1}}`))
	assert.Error(t, err)
	_, err = readLandmarks(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestSetAlignment(t *testing.T) {
	table := camera.LT1Table()
	a := camera.Alignment{Scale: 0.3, OffsetX: 40, OffsetY: 5, Vertical: camera.Top, Horizontal: camera.Right}

	require.NoError(t, setAlignment(table, camera.SideView, "z300", a))
	p, err := table.Lookup(camera.SideView, "z300")
	require.NoError(t, err)
	assert.Equal(t, &a, p.NIR)

	err = setAlignment(table, camera.SideView, "z999", a)
	assert.ErrorIs(t, err, camera.ErrUnknownCamera)

	assert.Error(t, setAlignment(table, camera.SideView, "z300", camera.Alignment{}))
}
