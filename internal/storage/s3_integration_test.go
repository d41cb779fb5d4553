//go:build integration

package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/clarify/internal/testutil"
)

func TestS3Client_ArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()

	rc := testutil.NewRustFSContainer(ctx, t)
	t.Cleanup(func() { _ = rc.Terminate(ctx) })

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "clarify-test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))

	archive := NewIngestArchive(client)
	require.NoError(t, archive.Archive(ctx, "req-1", []string{"first", "second"}))

	data, err := client.GetObject(ctx, ArchiveKey("req-1"))
	require.NoError(t, err)

	var doc IngestDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "req-1", doc.ID)
	assert.Equal(t, []string{"first", "second"}, doc.Chunks)

	require.NoError(t, client.DeleteObject(ctx, ArchiveKey("req-1")))
}
