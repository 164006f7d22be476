package errs_test

import (
	"testing"

	"github.com/changxiaoxie/ufs/errs"
	"github.com/stretchr/testify/assert"
)

func TestFSErrorWithMessage(t *testing.T) {
	wrapped := errs.ErrNotFound.WithMessage("foo.txt")
	assert.Equal(t, "no such file or directory: foo.txt", wrapped.Error())
	assert.ErrorIs(t, wrapped, errs.ErrNotFound)
}

func TestFSErrorDistinctSentinels(t *testing.T) {
	assert.NotErrorIs(t, errs.ErrExists.WithMessage("x"), errs.ErrNotFound)
}
