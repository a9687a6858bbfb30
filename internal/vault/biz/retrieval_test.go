package biz

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestDownload_BindsVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	f := env.storeCompleted(t, "owner-1", "report.pdf", []byte("version one"))

	// 同一路径被覆盖写入新版本
	env.objects.put(f.StorageKey, []byte("version two"))

	res, err := env.vault.Retrieval.RequestDownload(ctx, "owner-1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, *f.StorageVersion, res.Version)

	data, err := env.objects.fetch(res.URL)
	require.NoError(t, err)
	assert.Equal(t, "version one", string(data))

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	assert.Contains(t, u.Query().Get("response-content-disposition"), `filename="report.pdf"`)

	entry := env.logs.last(t)
	assert.Equal(t, ActionDownload, entry.Action)
	assert.True(t, entry.Success)
	assert.Nil(t, entry.ShareID)
}

func TestRequestDownload_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uploading := env.initiate(t, "owner-1", "a.bin", 10)
	deleted := env.storeCompleted(t, "owner-1", "b.bin", []byte("b"))
	_, err := env.vault.Deletion.DeleteFile(ctx, "owner-1", deleted.ID)
	require.NoError(t, err)
	other := env.storeCompleted(t, "owner-2", "c.bin", []byte("c"))

	tests := []struct {
		name   string
		owner  string
		fileID string
	}{
		{"unknown file", "owner-1", "missing"},
		{"still uploading", "owner-1", uploading.FileID},
		{"deleted", "owner-1", deleted.ID},
		{"owned by someone else", "owner-1", other.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.vault.Retrieval.RequestDownload(ctx, tt.owner, tt.fileID)
			assert.ErrorIs(t, err, ErrFileNotFound)
		})
	}
}

func TestListFiles(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.ListDefaultLimit = 2
		o.ListMaxLimit = 3
	})
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		f := env.storeCompleted(t, "owner-1", name, []byte(name))
		ids = append(ids, f.ID)
		env.clock.Advance(time.Second)
	}
	pending := env.initiate(t, "owner-1", "e", 1)
	env.storeCompleted(t, "owner-2", "x", []byte("x"))
	_, err := env.vault.Deletion.DeleteFile(ctx, "owner-1", ids[0])
	require.NoError(t, err)

	page, err := env.vault.Retrieval.ListFiles(ctx, &ListFilesQuery{OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Len(t, page.Files, 2)
	assert.Equal(t, pending.FileID, page.Files[0].ID)
	assert.Equal(t, ids[3], page.Files[1].ID)
	require.NotEmpty(t, page.NextCursor)

	page, err = env.vault.Retrieval.ListFiles(ctx, &ListFilesQuery{OwnerID: "owner-1", Cursor: page.NextCursor, Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Files, 2)
	assert.Equal(t, ids[2], page.Files[0].ID)
	assert.Equal(t, ids[1], page.Files[1].ID)
	assert.Empty(t, page.NextCursor)

	page, err = env.vault.Retrieval.ListFiles(ctx, &ListFilesQuery{OwnerID: "owner-1", Statuses: []FileStatus{FileStatusDeleted}})
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	assert.Equal(t, ids[0], page.Files[0].ID)

	_, err = env.vault.Retrieval.ListFiles(ctx, &ListFilesQuery{OwnerID: "owner-1", Statuses: []FileStatus{"archived"}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.vault.Retrieval.ListFiles(ctx, &ListFilesQuery{OwnerID: "owner-1", Cursor: "garbage"})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestGetFile_HidesAbandoned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.initiate(t, "owner-1", "a.bin", 10)
	f, err := env.vault.Retrieval.GetFile(ctx, "owner-1", res.FileID)
	require.NoError(t, err)
	assert.Equal(t, FileStatusUploading, f.Status)

	cancelled, err := env.vault.Deletion.DeleteFile(ctx, "owner-1", res.FileID)
	require.NoError(t, err)
	require.True(t, cancelled.Cancelled)

	_, err = env.vault.Retrieval.GetFile(ctx, "owner-1", res.FileID)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestGetQuota(t *testing.T) {
	env := newTestEnv(t)
	env.storeCompleted(t, "owner-1", "a.bin", make([]byte, 256))

	q, err := env.vault.Retrieval.GetQuota(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(256), q.StorageUsed)
	assert.Equal(t, int64(10<<30)-256, q.Available())

	fresh, err := env.vault.Retrieval.GetQuota(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.Zero(t, fresh.StorageUsed)
	assert.Equal(t, int64(10<<30), fresh.StorageQuota)
	assert.Zero(t, fresh.UsagePercent())
}

func TestQuota_Helpers(t *testing.T) {
	q := &Quota{StorageUsed: 150, StorageQuota: 100}
	assert.Zero(t, q.Available())
	assert.InDelta(t, 150.0, q.UsagePercent(), 0.001)
	assert.False(t, q.Fits(1))

	q = &Quota{StorageUsed: 40, StorageQuota: 100}
	assert.True(t, q.Fits(60))
	assert.False(t, q.Fits(61))
}

func TestListAccessLogs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	f := env.storeCompleted(t, "owner-1", "a.bin", []byte("a"))
	_, err := env.vault.Retrieval.RequestDownload(ctx, "owner-1", f.ID)
	require.NoError(t, err)

	entries, err := env.vault.Retrieval.ListAccessLogs(ctx, "owner-1", f.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionDownload, entries[0].Action)
	assert.Equal(t, ActionUpload, entries[1].Action)

	_, err = env.vault.Retrieval.ListAccessLogs(ctx, "owner-2", f.ID, 0)
	assert.ErrorIs(t, err, ErrFileNotFound)

	// 超过保留期后不再返回
	env.clock.Advance(DefaultOptions().AccessLogRetention)
	entries, err = env.vault.Retrieval.ListAccessLogs(ctx, "owner-1", f.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
