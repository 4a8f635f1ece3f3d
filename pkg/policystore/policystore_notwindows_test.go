//go:build !windows

package policystore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredDelete(t *testing.T) {
	dir := policyDir(t)
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.PersistPolicies(PolicyResponses{Responses: map[string][]byte{
		"a": response("a", "v", 1),
		"b": response("b", "v", 1),
	}}))

	s.removeAll = func(string) error { return errors.New("in use") }
	require.NoError(t, s.PersistPolicies(PolicyResponses{Responses: map[string][]byte{
		"a": response("a", "v", 1),
	}}))

	// moved out of the store
	assert.Equal(t, []string{EncodePolicyType("a")}, listDir(t, dir))
	trash := listDir(t, trashDir(dir))
	require.Len(t, trash, 1)
	assert.Equal(t, []string{EncodePolicyType("b")}, listDir(t, filepath.Join(trashDir(dir), trash[0])))

	// swept by the next New
	_, err = New(dir)
	require.NoError(t, err)
	_, err = os.Stat(trashDir(dir))
	require.ErrorIs(t, err, os.ErrNotExist)
}
