package checkpoint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func batch(base int64, step string) StepBatch {
	return StepBatch{BaseVersion: base, ClientID: "c1", Steps: []json.RawMessage{json.RawMessage(step)}}
}

func TestUninitializedState(t *testing.T) {
	s := &State{DocumentID: "d1"}
	require.False(t, s.Initialized())
	require.Zero(t, s.Version())

	steps, err := s.StepsSince(0)
	require.NoError(t, err)
	require.Empty(t, steps)
}

func TestAppendAdvancesByOnePerBatch(t *testing.T) {
	s := &State{DocumentID: "d1"}
	require.NoError(t, s.Append(batch(0, `"a"`)))
	require.NoError(t, s.Append(batch(1, `"b"`)))
	require.Equal(t, int64(2), s.Version())

	// stale base leaves state untouched
	require.ErrorIs(t, s.Append(batch(1, `"x"`)), ErrConflict)
	require.ErrorIs(t, s.Append(batch(3, `"x"`)), ErrConflict)
	require.Equal(t, int64(2), s.Version())

	all, err := s.StepsSince(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.JSONEq(t, `"a"`, string(all[0].Steps[0]))
	require.JSONEq(t, `"b"`, string(all[1].Steps[0]))

	tail, err := s.StepsSince(1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, int64(1), tail[0].BaseVersion)

	none, err := s.StepsSince(2)
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = s.StepsSince(3)
	require.ErrorIs(t, err, ErrStale)
}

func TestCompactResetsLog(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &State{DocumentID: "d1"}
	require.NoError(t, s.Append(batch(0, `"a"`)))

	require.ErrorIs(t, s.Compact(0, json.RawMessage(`{}`), at), ErrConflict)
	require.NoError(t, s.Compact(1, json.RawMessage(`{"doc":1}`), at))
	require.Equal(t, int64(2), s.Version())
	require.Equal(t, int64(2), s.SnapshotVersion)
	require.Empty(t, s.Steps)
	require.Equal(t, at, s.UpdatedAt)

	_, err := s.StepsSince(1)
	require.ErrorIs(t, err, ErrStale)

	snap := s.Snapshot()
	require.Equal(t, int64(2), snap.Version)
	require.JSONEq(t, `{"doc":1}`, string(snap.Content))
}

func TestCloneIsDeep(t *testing.T) {
	s := &State{DocumentID: "d1", Content: json.RawMessage(`{"a":1}`)}
	require.NoError(t, s.Append(batch(0, `"a"`)))

	c := s.Clone()
	c.Content[2] = 'b'
	c.Steps[0].Steps[0] = json.RawMessage(`"z"`)
	require.NoError(t, c.Append(batch(1, `"b"`)))

	require.JSONEq(t, `{"a":1}`, string(s.Content))
	require.JSONEq(t, `"a"`, string(s.Steps[0].Steps[0]))
	require.Equal(t, int64(1), s.Version())
}
