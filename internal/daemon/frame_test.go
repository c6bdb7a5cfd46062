package daemon

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Kind: RequestSearch, Search: &SearchRequest{Query: "foo", Limit: 5}}

	require.NoError(t, WriteFrame(&buf, req))

	var got Request
	require.NoError(t, ReadFrame(&buf, &got))

	assert.Equal(t, req.Kind, got.Kind)
	require.NotNil(t, got.Search)
	assert.Equal(t, "foo", got.Search.Query)
	assert.Equal(t, 5, got.Search.Limit)
}

func TestReadFrame_RejectsOversizeFrame(t *testing.T) {
	var buf bytes.Buffer
	var lenPrefix [4]byte
	lenPrefix[0] = 0xff
	lenPrefix[1] = 0xff
	lenPrefix[2] = 0xff
	lenPrefix[3] = 0xff
	buf.Write(lenPrefix[:])

	var req Request
	err := ReadFrame(&buf, &req)
	assert.Error(t, err)
}
