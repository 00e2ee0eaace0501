package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("<html></html>")
	uri, err := store.PutObject(context.Background(), "layout/shanghai/zhangjiang/1.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://layout/shanghai/zhangjiang/1.html", uri)

	payload[0] = 'X'
	got, ok := store.Object("layout/shanghai/zhangjiang/1.html")
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(got))
	require.Equal(t, []string{"layout/shanghai/zhangjiang/1.html"}, store.Paths())
}
