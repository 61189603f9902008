package errors

import (
	stdErrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithStackKeepsNil(t *testing.T) {
	assert.Nil(t, WithStack(nil))
	n, err := WithStack2(3, nil)
	assert.Equal(t, 3, n)
	assert.Nil(t, err)
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(io.EOF, "fail to read")
	assert.True(t, Is(err, io.EOF))
	assert.Contains(t, err.Error(), "fail to read")
}

func TestFromPanic(t *testing.T) {
	err := FromPanic(io.ErrUnexpectedEOF)
	assert.True(t, Is(err, io.ErrUnexpectedEOF))

	err = FromPanic("boom")
	assert.Contains(t, err.Error(), "panic: boom")
}

func TestJoin(t *testing.T) {
	first := stdErrors.New("first")
	second := stdErrors.New("second")
	err := Join(nil, first, second)
	assert.True(t, Is(err, first))
	assert.True(t, Is(err, second))
}
