package roi

import (
	"image"
	"testing"

	"phenotrace/internal/mask"
	"phenotrace/internal/object"
	"phenotrace/pkg/colorutil"
	"phenotrace/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestDefine(t *testing.T) {
	region, err := Define(2454, 2056, Adjustment{X: 500, Y: 250, Width: -500, Height: -250})
	require.NoError(t, err)
	assert.Equal(t, geometry.NewRectInt(500, 250, 1454, 1556), region)

	region, err = Define(100, 100, Adjustment{X: -10, Y: 0, Width: 50, Height: 0})
	require.NoError(t, err)
	assert.Equal(t, geometry.NewRectInt(0, 0, 100, 100), region)

	_, err = Define(100, 100, Adjustment{X: 60, Width: -60})
	assert.ErrorIs(t, err, ErrInvalidRegion)
}

// scene has a plant straddling the left ROI edge, a speck inside the ROI, and
// a label outside it.
func scene() gocv.Mat {
	m := mask.Empty(200, 200)
	gocv.Rectangle(&m, image.Rect(30, 60, 70, 120), colorutil.White, -1)
	gocv.Rectangle(&m, image.Rect(45, 80, 55, 90), colorutil.Black, -1)
	gocv.Rectangle(&m, image.Rect(120, 120, 125, 125), colorutil.White, -1)
	gocv.Rectangle(&m, image.Rect(5, 5, 15, 15), colorutil.White, -1)
	return m
}

func TestFilterPartial(t *testing.T) {
	m := scene()
	defer m.Close()
	set, err := object.Find(m)
	require.NoError(t, err)

	region := geometry.NewRectInt(50, 50, 100, 100)
	res, err := Filter(set, region, ModePartial, 200, 200)
	require.NoError(t, err)
	defer res.Close()

	assert.Len(t, res.Kept.TopLevel(), 2)
	assert.Len(t, res.Kept.Holes(), 1)
	assert.LessOrEqual(t, res.Kept.Len(), set.Len())
	assert.Equal(t, 40*60-10*10+5*5, res.Area)
	assert.LessOrEqual(t, res.Area, mask.Count(m))
}

func TestFilterLargest(t *testing.T) {
	m := scene()
	defer m.Close()
	set, err := object.Find(m)
	require.NoError(t, err)

	res, err := Filter(set, geometry.NewRectInt(50, 50, 100, 100), ModeLargest, 200, 200)
	require.NoError(t, err)
	defer res.Close()

	assert.Len(t, res.Kept.TopLevel(), 1)
	assert.Equal(t, 40*60-10*10, res.Area)
}

func TestFilterNothingOverlaps(t *testing.T) {
	m := scene()
	defer m.Close()
	set, err := object.Find(m)
	require.NoError(t, err)

	res, err := Filter(set, geometry.NewRectInt(150, 0, 50, 50), ModePartial, 200, 200)
	require.NoError(t, err)
	defer res.Close()

	assert.Zero(t, res.Kept.Len())
	assert.Zero(t, res.Area)

	_, err = object.Compose(res.Kept, 200, 200)
	assert.ErrorIs(t, err, object.ErrNoContours)
}

func TestFilterUnknownMode(t *testing.T) {
	_, err := Filter(object.Set{}, geometry.NewRectInt(0, 0, 1, 1), Mode("cut"), 1, 1)
	assert.Error(t, err)
}
