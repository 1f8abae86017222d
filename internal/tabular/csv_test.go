package tabular_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/Flaque/filet"
	"github.com/gothamgeo/geoclient/internal/models"
	"github.com/gothamgeo/geoclient/internal/tabular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	t.Run("header-keyed rows in input order", func(t *testing.T) {
		input := "id,house_number,street_name\nr1,314,West 100 St\nr2,55,Main St\n"

		rows, columns, err := tabular.Read(strings.NewReader(input))

		require.NoError(t, err)
		assert.Equal(t, []string{"id", "house_number", "street_name"}, columns)
		require.Len(t, rows, 2)
		assert.Equal(t, "r1", rows[0]["id"])
		assert.Equal(t, "West 100 St", rows[0]["street_name"])
		assert.Equal(t, "r2", rows[1]["id"])
	})

	t.Run("empty input fails", func(t *testing.T) {
		_, _, err := tabular.Read(strings.NewReader(""))

		require.Error(t, err)
		assert.ErrorContains(t, err, "no header row")
	})

	t.Run("duplicate header fails", func(t *testing.T) {
		_, _, err := tabular.Read(strings.NewReader("id,id\n1,2\n"))

		require.Error(t, err)
		assert.ErrorContains(t, err, "duplicate header")
	})

	t.Run("empty header column fails", func(t *testing.T) {
		_, _, err := tabular.Read(strings.NewReader("id,,bin\n1,2,3\n"))

		require.Error(t, err)
		assert.ErrorContains(t, err, "is empty")
	})

	t.Run("ragged row fails", func(t *testing.T) {
		_, _, err := tabular.Read(strings.NewReader("id,bin\n1\n"))

		require.Error(t, err)
		assert.ErrorContains(t, err, "row 2")
	})
}

func TestWrite(t *testing.T) {
	rows := models.Table{
		{"id": "r1", "latitude": "40.75", "geocoding_error": ""},
		{"id": "r2", "latitude": "", "geocoding_error": "missing required input field \"street_name\""},
	}
	columns := []string{"id", "latitude", "geocoding_error"}

	var out strings.Builder
	require.NoError(t, tabular.Write(&out, rows, columns))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,latitude,geocoding_error", lines[0])
	assert.Equal(t, "r1,40.75,", lines[1])
	assert.Contains(t, lines[2], "r2,")
	assert.Contains(t, lines[2], "street_name")
}

func TestFileRoundTrip(t *testing.T) {
	defer filet.CleanUp(t)

	dir := filet.TmpDir(t, "")
	inPath := filepath.Join(dir, "input.csv")
	outPath := filepath.Join(dir, "output.csv")

	rows := models.Table{
		{"id": "r1", "bin": "1012345"},
		{"id": "r2", "bin": "2045678"},
		{"id": "r3", "bin": ""},
	}
	columns := []string{"id", "bin"}

	require.NoError(t, tabular.WriteFile(inPath, rows, columns))

	readRows, readColumns, err := tabular.ReadFile(inPath)
	require.NoError(t, err)
	assert.Equal(t, columns, readColumns)
	require.Len(t, readRows, len(rows))
	for idx, row := range readRows {
		assert.Equal(t, rows[idx]["id"], row["id"])
		assert.Equal(t, rows[idx]["bin"], row["bin"])
	}

	// Write the same table again and compare outputs byte for byte.
	require.NoError(t, tabular.WriteFile(outPath, readRows, readColumns))
	first, _, err := tabular.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, readRows, first)
}

func TestReadFile_Missing(t *testing.T) {
	_, _, err := tabular.ReadFile("/nonexistent/input.csv")

	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to open input file")
}
