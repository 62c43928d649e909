package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExportID(t *testing.T) {
	t.Parallel()

	id := NewExportID()
	assert.True(t, strings.HasPrefix(id, "exp_"))
	assert.Len(t, id, 12)

	assert.NotEqual(t, id, NewExportID())
}

func TestNewExportTask(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC()
	task, err := NewExportTask("<p>hello</p>", CleanModeSafe, DefaultOptions(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, TaskStatusQueued, task.Status)
	assert.Equal(t, "<p>hello</p>", task.Document)
	assert.Equal(t, CleanModeSafe, task.Mode)
	assert.True(t, task.Options.DownloadAssets)
	assert.Equal(t, FailurePolicyKeepRemote, task.Options.OnFetchFailure)

	assert.False(t, task.CreatedAt.Before(before))
	assert.Equal(t, task.CreatedAt.Add(time.Hour), task.ExpiresAt)

	assert.Equal(t, "/api/v1/exports/"+task.ID, task.Links.Self)
	assert.Equal(t, "/api/v1/exports/"+task.ID+"/archive", task.Links.Archive)
	assert.Equal(t, "/api/v1/exports/"+task.ID+"/manifest", task.Links.Manifest)
}

func TestNewExportTaskValidation(t *testing.T) {
	t.Parallel()

	_, err := NewExportTask("", CleanModeSafe, DefaultOptions(), time.Hour)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = NewExportTask("<p>x</p>", CleanMode("sloppy"), DefaultOptions(), time.Hour)
	assert.ErrorIs(t, err, ErrInvalidCleanMode)

	opts := DefaultOptions()
	opts.OnFetchFailure = FailurePolicy("ignore")
	_, err = NewExportTask("<p>x</p>", CleanModeSafe, opts, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestValidateAssetStatuses(t *testing.T) {
	t.Parallel()

	task, err := NewExportTask("<p>x</p>", CleanModeSafe, DefaultOptions(), time.Hour)
	require.NoError(t, err)

	task.Assets = []AssetRecord{
		{SourceRef: "https://a.example.com/1.png", Status: AssetStatusDownloaded},
		{SourceRef: "https://b.example.com/2.png", Status: AssetStatusFailed},
	}
	require.NoError(t, task.Validate())

	task.Assets = append(task.Assets, AssetRecord{
		SourceRef: "https://c.example.com/3.png",
		Status:    AssetStatus("stalled"),
	})
	assert.ErrorIs(t, task.Validate(), ErrInvalidAssetStatus)
}

func TestIsExpired(t *testing.T) {
	t.Parallel()

	task, err := NewExportTask("<p>x</p>", CleanModeSafe, DefaultOptions(), time.Hour)
	require.NoError(t, err)

	assert.False(t, task.IsExpired(task.ExpiresAt))
	assert.True(t, task.IsExpired(task.ExpiresAt.Add(time.Nanosecond)))
}

func TestFailedAssetIndexes(t *testing.T) {
	t.Parallel()

	task := &ExportTask{Assets: []AssetRecord{
		{SourceRef: "a", Status: AssetStatusDownloaded},
		{SourceRef: "b", Status: AssetStatusFailed},
		{SourceRef: "c", Status: AssetStatusDownloaded},
		{SourceRef: "d", Status: AssetStatusFailed},
	}}

	assert.Equal(t, []int{1, 3}, task.FailedAssetIndexes())

	none := &ExportTask{Assets: []AssetRecord{{SourceRef: "a", Status: AssetStatusDownloaded}}}
	assert.Empty(t, none.FailedAssetIndexes())
}

func TestAssetIndexByRef(t *testing.T) {
	t.Parallel()

	task := &ExportTask{Assets: []AssetRecord{
		{SourceRef: "https://a.example.com/1.png"},
		{SourceRef: "https://b.example.com/2.jpg"},
	}}

	assert.Equal(t, 1, task.AssetIndexByRef("https://b.example.com/2.jpg"))
	assert.Equal(t, -1, task.AssetIndexByRef("https://c.example.com/3.gif"))
}

func TestAssetRecordIsInline(t *testing.T) {
	t.Parallel()

	inline := AssetRecord{SourceRef: "data:image/png;base64,iVBOR"}
	remote := AssetRecord{SourceRef: "https://a.example.com/1.png"}

	assert.True(t, inline.IsInline())
	assert.False(t, remote.IsInline())
}
