package sshexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, "'/var/log/app.log'", quote("/var/log/app.log"))
	assert.Equal(t, `'it'\''s'`, quote("it's"))
	assert.Equal(t, "'a b'", quote("a b"))
}
