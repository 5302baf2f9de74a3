package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var got []string
	b.OnContentCommitted(func(_ context.Context, e ContentCommitted) {
		got = append(got, "first:"+e.DocumentID.String())
	})
	b.OnContentCommitted(func(_ context.Context, e ContentCommitted) {
		got = append(got, "second:"+e.DocumentID.String())
	})
	b.OnDocumentDeleted(func(_ context.Context, e DocumentDeleted) {
		got = append(got, "deleted:"+e.DocumentID.String())
	})

	b.PublishContentCommitted(context.Background(), ContentCommitted{DocumentID: "d1", Caller: "bob", Kind: CommitSteps, Version: 1})
	b.PublishDocumentDeleted(context.Background(), DocumentDeleted{DocumentID: "d1", Caller: "alice"})

	require.Equal(t, []string{"first:d1", "second:d1", "deleted:d1"}, got)
}

func TestNilBusIsNoop(t *testing.T) {
	var b *Bus
	require.NotPanics(t, func() {
		b.PublishContentCommitted(context.Background(), ContentCommitted{DocumentID: "d1"})
		b.PublishDocumentDeleted(context.Background(), DocumentDeleted{DocumentID: "d1"})
	})
}
