package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ketangupta550/docsync/docstore"
	"github.com/ketangupta550/docsync/index"
	"github.com/ketangupta550/docsync/internal/errs"
)

func TestEnsureIndexedRejectsUnknownKind(t *testing.T) {
	m := openTestManager(t, docstore.NewMemStore())
	_, err := m.EnsureIndexed(context.Background(), []index.FieldSpec{{Path: "name"}}, "", index.Kind("bogus"), "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestEnsureIndexedRejectsTokenizeOnJSONIndex(t *testing.T) {
	m := openTestManager(t, docstore.NewMemStore())
	_, err := m.EnsureIndexed(context.Background(), []index.FieldSpec{{Path: "name"}}, "", index.KindJSON, "porter")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestEnsureIndexedRejectsEmptyFieldList(t *testing.T) {
	m := openTestManager(t, docstore.NewMemStore())
	_, err := m.EnsureIndexed(context.Background(), nil, "", index.KindJSON, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestEnsureIndexedRejectsDuplicateFields(t *testing.T) {
	m := openTestManager(t, docstore.NewMemStore())
	_, err := m.EnsureIndexed(context.Background(),
		[]index.FieldSpec{{Path: "name"}, {Path: "name"}}, "", index.KindJSON, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestEnsureIndexedRejectsInvalidFieldPath(t *testing.T) {
	m := openTestManager(t, docstore.NewMemStore())
	_, err := m.EnsureIndexed(context.Background(),
		[]index.FieldSpec{{Path: "bad path!"}}, "", index.KindJSON, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestEnsureIndexedRejectsInvalidName(t *testing.T) {
	m := openTestManager(t, docstore.NewMemStore())
	_, err := m.EnsureIndexed(context.Background(),
		[]index.FieldSpec{{Path: "name"}}, "9bad", index.KindJSON, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestEnsureIndexedCreatesTextIndexWhenSupported(t *testing.T) {
	m := openTestManager(t, docstore.NewMemStore())
	if !m.IsTextSearchEnabled() {
		t.Skip("sqlite build in this environment lacks FTS4 support")
	}
	name, err := m.EnsureIndexed(context.Background(),
		[]index.FieldSpec{{Path: "body"}}, "fulltext", index.KindText, "")
	require.NoError(t, err)
	assert.Equal(t, "fulltext", name)
}
