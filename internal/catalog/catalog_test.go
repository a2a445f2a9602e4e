package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepeccz/msi-a-sub001/internal/collection"
	"github.com/pepeccz/msi-a-sub001/internal/models"
)

func TestLoad_Fixture(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"ENGANCHE", "LUCES_LED", "SUSPENSION"}, c.Codes())

	fields, err := c.Fields("enganche")
	require.NoError(t, err)
	require.Len(t, fields, 5)
	assert.Equal(t, models.FieldTypeChoice, fields[2].Type)
	require.NotNil(t, fields[4].DependsOn)
	assert.Equal(t, "tipo_bola", fields[4].DependsOn.ParentKey)
	assert.Equal(t, models.ModeHybrid, collection.Classify(fields, nil))

	susp, err := c.Fields("SUSPENSION")
	require.NoError(t, err)
	assert.Equal(t, models.ModeSequential, collection.Classify(susp, nil), "nested conditional chain")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(`
elements:
  - code: " faros "
    fields:
      - key: marca
`))
	require.NoError(t, err)
	e, err := c.Element("FAROS")
	require.NoError(t, err)
	assert.Equal(t, models.FieldTypeText, e.Fields[0].Type)
	assert.Equal(t, "marca", e.Fields[0].Label)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "dangling parent",
			yaml: `
elements:
  - code: A
    fields:
      - key: color
        depends_on: {parent: pintura}
`,
			want: models.ErrDanglingDependency,
		},
		{
			name: "duplicate key",
			yaml: `
elements:
  - code: A
    fields:
      - key: color
      - key: color
`,
			want: models.ErrDuplicateFieldKey,
		},
		{
			name: "cycle",
			yaml: `
elements:
  - code: A
    fields:
      - key: x
        depends_on: {parent: y}
      - key: y
        depends_on: {parent: x}
`,
			want: models.ErrDependencyCycle,
		},
		{
			name: "choice without options",
			yaml: `
elements:
  - code: A
    fields:
      - key: tipo
        type: choice
`,
			want: models.ErrMissingChoices,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want.Error())
		})
	}
}

func TestParse_InvalidPattern(t *testing.T) {
	_, err := Parse([]byte(`
elements:
  - code: A
    fields:
      - key: placa
        validation: {pattern: "([a-z"}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestParse_StructuralErrors(t *testing.T) {
	_, err := Parse([]byte(`elements: []`))
	assert.ErrorContains(t, err, "at least one element")

	_, err = Parse([]byte(`
elements:
  - code: A
  - code: a
`))
	assert.ErrorContains(t, err, "duplicate code")

	_, err = Parse([]byte(`elements: [`))
	assert.ErrorContains(t, err, "catalog: parse")
}

func TestValidateFields(t *testing.T) {
	assert.NoError(t, ValidateFields(nil))
	err := ValidateFields([]models.FieldSpec{{Key: "a", Type: models.FieldTypeText, DependsOn: &models.Dependency{ParentKey: "b"}}})
	assert.ErrorIs(t, err, models.ErrDanglingDependency)
}

func TestElement_Unknown(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	_, err = c.Element("NOPE")
	assert.ErrorIs(t, err, models.ErrUnknownElement)
}

func TestShippedCatalogMatchesFixture(t *testing.T) {
	shipped, err := os.ReadFile(filepath.Join("..", "..", "configs", "catalog.yaml"))
	require.NoError(t, err)
	_, err = Parse(shipped)
	assert.NoError(t, err)
}
