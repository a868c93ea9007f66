package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"foamsynth/internal/models"
)

func sampleTable() *models.FeatureTable {
	table := models.NewFeatureTable(2)
	table.Append(models.Feature{
		Volume:             33.5,
		EquivalentDiameter: 4,
		AxisLengths:        [3]float64{1, 0.8, 0.5},
		AxisEulerAngles:    [3]float64{0, 1.5, 3.25},
		Omega3:             1,
		Phase:              1,
		Neighborhood:       3,
		Centroid:           r3.Vec{X: 2.5, Y: 10, Z: 7.25},
	})
	table.Append(models.Feature{
		Volume:             8.25,
		EquivalentDiameter: 2.5,
		AxisLengths:        [3]float64{1, 0.75, 0.625},
		AxisEulerAngles:    [3]float64{0.125, 0.25, 0.5},
		Omega3:             0.875,
		Phase:              2,
		Centroid:           r3.Vec{X: 0, Y: 12.5, Z: 3},
	})
	return table
}

func TestWriteGoalAttributes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGoalAttributes(&buf, sampleTable()))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "goal_attributes", buf.Bytes())
}

func TestWriteGoalAttributesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGoalAttributes(&buf, models.NewFeatureTable(0)))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "0", string(lines[0]))
}

func TestHeaderWidth(t *testing.T) {
	h := Header()
	assert.Len(t, h, 15)
	assert.Equal(t, "Feature_ID", h[0])
	assert.Equal(t, "AxisEulerAngles_2", h[10])
}

func TestSaveGoalAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "goal.csv")
	require.NoError(t, SaveGoalAttributes(path, sampleTable()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteGoalAttributes(&buf, sampleTable()))
	assert.Equal(t, buf.String(), string(data))
}
