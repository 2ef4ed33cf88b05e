package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstream/dedupe/internal/types"
)

func TestPlainTextExtractsUTF8(t *testing.T) {
	text, err := PlainText{}.ExtractText(context.Background(), &types.DocumentEntry{
		ID: "a", Source: types.BytesSource("hello, world"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello, world", text)
}

func TestPlainTextRejectsBinary(t *testing.T) {
	text, err := PlainText{}.ExtractText(context.Background(), &types.DocumentEntry{
		ID: "a", Source: types.BytesSource{0xff, 0xfe, 0x00, 0x01},
	})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestPlainTextNilSource(t *testing.T) {
	text, err := PlainText{}.ExtractText(context.Background(), &types.DocumentEntry{ID: "a"})
	require.NoError(t, err)
	assert.Empty(t, text)
}
