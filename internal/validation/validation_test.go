package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestValidateFile(t *testing.T) {
	assert.NoError(t, ValidateFile("summit.PNG", pngHeader, ImageConstraints))

	assert.Error(t, ValidateFile("summit.png", nil, ImageConstraints))
	assert.Error(t, ValidateFile("notes.png", []byte("plain text, not an image"), ImageConstraints))
	assert.Error(t, ValidateFile("summit.exe", pngHeader, ImageConstraints))

	small := ImageConstraints
	small.MaxSize = 4
	assert.Error(t, ValidateFile("summit.png", pngHeader, small))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("runner@example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("Runner <runner@example.com>"))
	assert.Error(t, ValidateEmail("not-an-email"))
}
