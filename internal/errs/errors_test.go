package errs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ketangupta550/docsync/internal/errs"
)

func TestNewIs(t *testing.T) {
	err := errs.New(errs.OrphanRevision, "parent 7 not present")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.OrphanRevision))
	assert.False(t, errs.Is(err, errs.NotInTree))
}

func TestWrapPreservesCause(t *testing.T) {
	root := assert.AnError
	err := errs.Wrap(errs.IndexOpFailed, "create table", root)
	assert.True(t, errs.Is(err, errs.IndexOpFailed))

	var asErr *errs.Error
	ok := false
	for e := err; e != nil; {
		if ae, matched := e.(*errs.Error); matched {
			asErr = ae
			ok = true
			break
		}
		type unwrapper interface{ Unwrap() error }
		u, matched := e.(unwrapper)
		if !matched {
			break
		}
		e = u.Unwrap()
	}
	require.True(t, ok)
	assert.Equal(t, root, asErr.Cause)
}
