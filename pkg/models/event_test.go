package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDListUnmarshal(t *testing.T) {
	var l IDList
	require.NoError(t, json.Unmarshal([]byte(`[1,2,3]`), &l))
	require.Equal(t, IDList{1, 2, 3}, l)

	l = nil
	require.NoError(t, json.Unmarshal([]byte(`"4, 5,6"`), &l))
	require.Equal(t, IDList{4, 5, 6}, l)

	l = nil
	require.NoError(t, json.Unmarshal([]byte(`""`), &l))
	require.Empty(t, l)

	require.Error(t, json.Unmarshal([]byte(`"1,x"`), &l))
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("1,2, 3,")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, ids)

	ids, err = ParseIDs("")
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = ParseIDs("1,abc")
	require.Error(t, err)
}
