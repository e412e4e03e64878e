package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelav/streamcore/internal/model"
)

func TestSupportedInTS(t *testing.T) {
	assert.True(t, SupportedInTS(model.MimeH264))
	assert.True(t, SupportedInTS(model.MimeAAC))
	assert.False(t, SupportedInTS(model.MimeAV1))
	assert.False(t, SupportedInTS(model.Mime("unknown")))
}
