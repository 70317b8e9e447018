package camera

import (
	"os"
	"path/filepath"
	"testing"

	"phenotrace/internal/roi"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilename(t *testing.T) {
	md, err := ParseFilename("/data/snapshot1/VIS_SV_90_z300_h1_g0_e82_117770.png")
	require.NoError(t, err)
	assert.Equal(t, Metadata{
		Path:     "/data/snapshot1/VIS_SV_90_z300_h1_g0_e82_117770.png",
		Modality: "VIS",
		Camera:   SideView,
		Angle:    "90",
		Zoom:     "z300",
	}, md)

	md, err = ParseFilename("VIS_TV_z1_h1_g0_e65_117779.png")
	require.NoError(t, err)
	assert.Equal(t, TopView, md.Camera)
	assert.Equal(t, "z1", md.Zoom)
	assert.Empty(t, md.Angle)

	_, err = ParseFilename("VIS_XV_90_z1_h1.png")
	assert.ErrorIs(t, err, ErrUnknownCamera)

	_, err = ParseFilename("VIS.png")
	assert.ErrorIs(t, err, ErrBadFilename)
}

func TestMetadataMatches(t *testing.T) {
	sv90 := Metadata{Camera: SideView, Angle: "90"}
	assert.True(t, sv90.Matches(Metadata{Camera: SideView, Angle: "90", Zoom: "z1"}))
	assert.False(t, sv90.Matches(Metadata{Camera: SideView, Angle: "0"}))
	assert.False(t, sv90.Matches(Metadata{Camera: TopView}))
	assert.True(t, Metadata{Camera: TopView}.Matches(Metadata{Camera: TopView, Zoom: "z300"}))
}

func TestLT1Lookup(t *testing.T) {
	table, err := GetTable("lt1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		kind     Kind
		zoom     string
		boundary int
		hasLine  bool
		nir      *Alignment
	}{
		{"sv z300", SideView, "z300", 680, true, &Alignment{Scale: 0.278, OffsetX: 43, OffsetY: 6, Vertical: Top, Horizontal: Right}},
		{"sv z1", SideView, "z1", 670, true, &Alignment{Scale: 0.278, OffsetX: 39, OffsetY: 6, Vertical: Top, Horizontal: Right}},
		{"sv other zoom", SideView, "z500", 0, false, nil},
		{"tv any zoom", TopView, "z2500", 0, false, &Alignment{Scale: 0.278, OffsetX: 3, OffsetY: 7, Vertical: Bottom, Horizontal: Right}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := table.Lookup(tt.kind, tt.zoom)
			require.NoError(t, err)

			line, ok := p.Boundary()
			assert.Equal(t, tt.hasLine, ok)
			assert.Equal(t, tt.boundary, line)
			assert.Equal(t, tt.kind == TopView, p.RotateNIR)
			assert.Equal(t, roi.Adjustment{X: 500, Y: 250, Width: -500, Height: -250}, p.ROI)

			if tt.nir == nil {
				_, err := p.Alignment()
				assert.ErrorIs(t, err, ErrNoAlignment)
				return
			}
			a, err := p.Alignment()
			require.NoError(t, err)
			assert.Equal(t, *tt.nir, a)
		})
	}
}

func TestTransectLookup(t *testing.T) {
	table, err := GetTable("transect")
	require.NoError(t, err)
	assert.False(t, table.HasNIR())

	p, err := table.Lookup(SideView, "z1")
	require.NoError(t, err)
	line, ok := p.Boundary()
	assert.True(t, ok)
	assert.Equal(t, 700, line)
	assert.Len(t, p.Mask.Passes, 2)
	assert.Equal(t, 100, p.Mask.FillSize)
	assert.Equal(t, 11, p.Mask.MedianKernel)

	_, err = table.Lookup(TopView, "z1")
	assert.ErrorIs(t, err, ErrUnknownCamera)
}

func TestBuiltinTablesValid(t *testing.T) {
	for _, name := range ListTables() {
		table, err := GetTable(name)
		require.NoError(t, err)
		assert.NoError(t, table.Validate(), name)
	}
	assert.Equal(t, []string{"lt1", "transect"}, ListTables())

	_, err := GetTable("greenhouse")
	assert.Error(t, err)
}

func TestTableRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lt1.json")
	require.NoError(t, LT1Table().SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(LT1Table(), loaded); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromFileRejects(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "rig.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"name":"x","segmentation":"classifier","classifier_class":"plant","roi_mode":"partial","color_bins":256,
		"profiles":[{"camera":"SV","nir":{"scale":0,"vertical":"top","horizontal":"left"}}]}`), 0644))
	_, err = LoadFromFile(bad)
	assert.ErrorContains(t, err, "scale")

	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"name":"x","profiles":[{"camera":"FV"}]}`), 0644))
	_, err = LoadFromFile(unknown)
	assert.ErrorIs(t, err, ErrUnknownCamera)
}
