package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordsWholeArray(t *testing.T) {
	records := ParseRecords(`[{"original_title":"a"},{"original_title":"b"}]`)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0]["original_title"])
	assert.Equal(t, "b", records[1]["original_title"])
}

func TestParseRecordsEmbeddedArray(t *testing.T) {
	text := `Here are the classifications: [{"original_title":"a"}] done.`
	records := ParseRecords(text)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0]["original_title"])
}

func TestParseRecordsFlatObjects(t *testing.T) {
	// No valid array anywhere; each flat object parsed independently.
	text := `{"original_title":"a"} garbage {"original_title":"b"}`
	records := ParseRecords(text)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0]["original_title"])
	assert.Equal(t, "b", records[1]["original_title"])
}

func TestParseRecordsPartialRecovery(t *testing.T) {
	// One mangled entry in the middle costs that entry, not the batch.
	text := `[{"original_title":"a"}, {"original_title": broken}, {"original_title":"c"}]`
	records := ParseRecords(text)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0]["original_title"])
	assert.Equal(t, "c", records[1]["original_title"])
}

func TestParseRecordsTopLevelObjectRejected(t *testing.T) {
	// Valid JSON of the wrong shape ends recovery: no strategy should dig
	// records out of a single object answer.
	records := ParseRecords(`{"original_title":"a"}`)
	assert.Empty(t, records)
}

func TestParseRecordsNonMapElementsDropped(t *testing.T) {
	records := ParseRecords(`[{"original_title":"a"}, "stray string", 42]`)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0]["original_title"])
}

func TestParseRecordsEmptyAndGarbage(t *testing.T) {
	assert.Empty(t, ParseRecords(""))
	assert.Empty(t, ParseRecords("no json here at all"))
	assert.Empty(t, ParseRecords("[]"))
}

func TestParseRecordsAfterRepair(t *testing.T) {
	raw := "```json\n[{\"original_title\":\"a\",\"summary\":\"x\ny\",},]\n```"
	records := ParseRecords(Repair(raw))
	require.Len(t, records, 1)
	assert.Equal(t, "x\ny", records[0]["summary"])
}
