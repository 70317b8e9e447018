package image

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"phenotrace/internal/camera"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0644))
	}
}

func TestResolveNIR(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"VIS_SV_90_z300_h1_g0_e82_117770.png",
		"NIR_SV_0_z1_h1_g0_e6500_117773.png",
		"NIR_SV_90_z1_h1_g0_e6500_117772.png",
		"NIR_SV_90_z1_h1_g0_e6500_117771.png",
		"NIR_TV_z1_h1_g0_e6500_117775.png",
		"VIS_TV_z300_h1_g0_e82_117774.png",
		"NIR_SV_90_notes.txt",
	)

	nir, err := ResolveNIR(filepath.Join(dir, "VIS_SV_90_z300_h1_g0_e82_117770.png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "NIR_SV_90_z1_h1_g0_e6500_117771.png"), nir)

	nir, err = ResolveNIR(filepath.Join(dir, "VIS_TV_z300_h1_g0_e82_117774.png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "NIR_TV_z1_h1_g0_e6500_117775.png"), nir)
}

func TestResolveNIRMissing(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "VIS_SV_180_z1_h1_g0_e82_1.png", "NIR_SV_90_z1_h1_g0_e6500_2.png")

	_, err := ResolveNIR(filepath.Join(dir, "VIS_SV_180_z1_h1_g0_e82_1.png"))
	assert.ErrorIs(t, err, ErrNoNIR)

	_, err = ResolveNIR(filepath.Join(dir, "VIS_QV_180_z1.png"))
	assert.ErrorIs(t, err, camera.ErrUnknownCamera)
}

func TestListVIS(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "VIS_SV_90_z1_b.png", "VIS_SV_0_z1_a.png", "NIR_SV_0_z1_c.png", "readme.md")

	paths, err := ListVIS(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "VIS_SV_0_z1_a.png"),
		filepath.Join(dir, "VIS_SV_90_z1_b.png"),
	}, paths)
}

func TestToMatBGR(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	m, err := ToMat(img)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, gocv.MatTypeCV8UC3, m.Type())
	assert.Equal(t, 3, m.Rows())
	assert.Equal(t, 4, m.Cols())
	assert.Equal(t, uint8(30), m.GetUCharAt(2, 1*3+0))
	assert.Equal(t, uint8(20), m.GetUCharAt(2, 1*3+1))
	assert.Equal(t, uint8(10), m.GetUCharAt(2, 1*3+2))
}

func TestLoadGray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NIR_TV_z1_h1_g0_e6500_117775.png")

	img := image.NewGray(image.Rect(0, 0, 5, 5))
	img.SetGray(2, 3, color.Gray{Y: 200})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	frame, err := Load(path)
	require.NoError(t, err)
	defer frame.Close()

	assert.Equal(t, camera.TopView, frame.Meta.Camera)
	assert.Equal(t, "NIR", frame.Meta.Modality)
	assert.Equal(t, gocv.MatTypeCV8UC1, frame.Mat.Type())
	assert.Equal(t, uint8(200), frame.Mat.GetUCharAt(3, 2))
	assert.Equal(t, 5, frame.Width())
}
