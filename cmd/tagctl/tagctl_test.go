package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/service"
)

func sampleConfigs() []*model.TagConfig {
	return []*model.TagConfig{{
		ID:            "0b6f3c2e-8d2a-4f7e-9a51-3c1d2e4f5a60",
		EntityType:    "equipment",
		Prefix:        "EQ",
		Separator:     "-",
		Format:        model.FormatSequential,
		AutoGenerate:  true,
		CurrentNumber: 41,
		PaddingLength: 3,
	}}
}

func TestPrintConfigs_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printConfigs(&buf, formatTable, sampleConfigs()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "equipment")
	assert.Contains(t, lines[1], `"-"`)
	assert.Contains(t, lines[1], "41")
}

func TestPrintConfigs_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printConfigs(&buf, formatJSON, sampleConfigs()))

	var got []model.TagConfig
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "EQ", got[0].Prefix)
	assert.Equal(t, uint64(41), got[0].CurrentNumber)
}

func TestPrintConfigs_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printConfigs(&buf, formatYAML, sampleConfigs()))

	assert.Contains(t, buf.String(), "entity_type: equipment")

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "sequential", got[0]["format"])
}

func TestPrintTags_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTags(&buf, formatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestPrintTags_TableWithoutID(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTags(&buf, formatTable, []*model.Tag{{Value: "EQ-001", OwnerType: "equipment", OwnerID: "1"}}))
	assert.Contains(t, buf.String(), "EQ-001")
	assert.Contains(t, buf.String(), "-")
}

func TestPrintBulkResult(t *testing.T) {
	result := &service.BulkResult{
		Regenerated: []service.BulkRegenerated{{ID: 1, OldValue: "EQ-001", NewValue: "EQ-007"}},
		Failed:      []service.BulkFailure{{ID: 2, Error: "ресурс не найден"}},
	}

	var buf bytes.Buffer
	require.NoError(t, printBulkResult(&buf, formatTable, result))
	out := buf.String()
	assert.Contains(t, out, "regenerated")
	assert.Contains(t, out, "EQ-007")
	assert.Contains(t, out, "ресурс не найден")

	buf.Reset()
	require.NoError(t, printBulkResult(&buf, formatJSON, result))
	assert.JSONEq(t, `{
		"regenerated": [{"id": 1, "oldValue": "EQ-001", "newValue": "EQ-007"}],
		"failed": [{"id": 2, "error": "ресурс не найден"}]
	}`, buf.String())

	buf.Reset()
	require.NoError(t, printBulkResult(&buf, formatYAML, result))
	assert.Contains(t, buf.String(), "oldValue: EQ-001")
	assert.NotContains(t, buf.String(), "tagId")
}

func TestPrintBulkDeleted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printBulkDeleted(&buf, formatJSON, 2))
	assert.JSONEq(t, `{"deletedCount": 2}`, buf.String())

	buf.Reset()
	require.NoError(t, printBulkDeleted(&buf, formatTable, 2))
	assert.Equal(t, "Удалено тегов: 2\n", buf.String())
}

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, printTags(&buf, "xml", nil))
	assert.Error(t, validateFormat("csv"))
	assert.NoError(t, validateFormat(formatYAML))
}

func TestParseImport(t *testing.T) {
	input := `
- owner_type: equipment
  owner_id: "42"
  value: EQ-042
- owner_type: vehicle
  owner_id: "7"
  value: VH-007
`
	tags, err := parseImport(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, model.EntityRef{Type: "equipment", ID: "42"}, tags[0].Owner())
	assert.Equal(t, "VH-007", tags[1].Value)
}

func TestParseImport_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"пустой файл", ""},
		{"пустой список", "[]"},
		{"не список", "owner_type: equipment"},
		{"нет владельца", `- value: EQ-1`},
		{"пробел в значении", `- {owner_type: equipment, owner_id: "1", value: "EQ 1"}`},
		{"повтор владельца", "- {owner_type: equipment, owner_id: \"1\", value: EQ-1}\n- {owner_type: equipment, owner_id: \"1\", value: EQ-2}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseImport(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", "20", "300"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 20, 300}, ids)

	for _, bad := range []string{"abc", "0", "-5"} {
		_, err := parseIDs([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestRootCmd_Structure(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"migrate"},
		{"configs", "list"},
		{"configs", "create"},
		{"tags", "regenerate"},
		{"tags", "import"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	flag := root.PersistentFlags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, formatTable, flag.DefValue)
}
