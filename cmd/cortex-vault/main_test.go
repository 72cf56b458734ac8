package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/cortex-vault/internal/models"
)

func sampleExport() []exportRecord {
	cat := "location"
	created := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	m := models.Memory{
		ID: "1", Text: "Lives in Berlin, Germany", Type: models.MemoryTypeFact, Confidence: 0.9,
		Category: &cat, CreatedAt: created, UpdatedAt: created, AccessCount: 2,
		Status: models.StatusActive, Entities: []string{"Berlin", "Germany"},
	}
	return []exportRecord{toExportRecord(&m)}
}

func TestToExportRecord(t *testing.T) {
	r := sampleExport()[0]
	assert.Equal(t, "fact", r.Type)
	assert.Equal(t, "location", r.Category)
	assert.Equal(t, "2024-01-01T09:30:00Z", r.CreatedAt)
	assert.Empty(t, r.LastAccessedAt)
}

func TestWriteExport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, "json", sampleExport()))
	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Lives in Berlin, Germany", got[0]["text"])
	assert.NotContains(t, got[0], "last_accessed_at")
}

func TestWriteExport_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, "yaml", sampleExport()))
	var got []exportRecord
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleExport(), got)
	assert.Contains(t, buf.String(), "access_count: 2")
}

func TestWriteExport_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, "csv", sampleExport()))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "Lives in Berlin, Germany", rows[1][3])
	assert.Equal(t, "0.9000", rows[1][4])
	assert.Equal(t, "Berlin;Germany", rows[1][6])
}

func TestWriteExport_UnknownFormat(t *testing.T) {
	err := writeExport(&bytes.Buffer{}, "xml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("ignored\n"), "from-flag")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", pw)

	pw, err = readPassword(strings.NewReader("s3cret\r\nrest"), "")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	pw, err = readPassword(strings.NewReader("no-newline"), "")
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)

	_, err = readPassword(strings.NewReader(""), "")
	assert.Error(t, err)
}

func TestPrintCounts_Sorted(t *testing.T) {
	var buf bytes.Buffer
	printCounts(&buf, map[string]int64{"preference": 1, "fact": 3})
	out := buf.String()
	assert.Less(t, strings.Index(out, "fact"), strings.Index(out, "preference"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "日本...", truncate("日本語", 2))
}
