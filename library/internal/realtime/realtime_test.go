package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseFilter(t *testing.T) {
	t.Parallel()
	col, val, err := ParseFilter("library_id=eq.3f1c")
	require.NoError(t, err)
	require.Equal(t, "library_id", col)
	require.Equal(t, "3f1c", val)

	for _, bad := range []string{"", "library_id", "library_id=gt.1", "=eq.1"} {
		_, _, err := ParseFilter(bad)
		require.ErrorIs(t, err, ErrInvalidFilter, bad)
	}
}

func TestEventSpec_Matches(t *testing.T) {
	t.Parallel()
	change := Change{Event: EventInsert, Schema: SchemaPublic, Table: model.TableBooks, LibraryID: "lib-1", RecordID: "7"}
	tests := []struct {
		name string
		spec EventSpec
		want bool
	}{
		{"all events on table", EventSpec{Event: EventAll, Table: model.TableBooks, Filter: LibraryFilter("lib-1")}, true},
		{"other library", EventSpec{Event: EventAll, Table: model.TableBooks, Filter: LibraryFilter("lib-2")}, false},
		{"other table", EventSpec{Event: EventAll, Table: model.TableMembers}, false},
		{"other event", EventSpec{Event: EventDelete, Table: model.TableBooks}, false},
		{"by id", EventSpec{Table: model.TableBooks, Filter: "id=eq.7"}, true},
		{"bad filter", EventSpec{Table: model.TableBooks, Filter: "library_id"}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.spec.Matches(change))
		})
	}
}

func TestNoopHub_SubscribesWithoutPushing(t *testing.T) {
	t.Parallel()
	hub := NewNoopHub(zap.NewNop())
	calls := 0
	ch := hub.Channel("books-lib-1").
		On(EventSpec{Event: EventAll, Table: model.TableBooks, Filter: LibraryFilter("lib-1")}, func(Change) { calls++ }).
		Subscribe()
	require.Equal(t, StateSubscribed, ch.State())
	require.False(t, hub.Live())

	require.NoError(t, hub.Publish(context.Background(), Change{Event: EventInsert, Table: model.TableBooks, LibraryID: "lib-1"}))
	require.Zero(t, calls)

	require.NoError(t, hub.RemoveChannel(ch))
	require.Equal(t, StateClosed, ch.State())
}

func TestKafkaHub_PublishAndDispatch(t *testing.T) {
	t.Parallel()
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var c Change
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		require.Equal(t, model.TableIssues, c.Table)
		require.Equal(t, "lib-1", c.LibraryID)
		return nil
	})
	hub := newKafkaHub(producer, nil, zap.NewNop())

	var got []Change
	ch := hub.Channel("issues-lib-1").
		On(EventSpec{Event: EventAll, Table: model.TableIssues, Filter: LibraryFilter("lib-1")}, func(c Change) { got = append(got, c) }).
		Subscribe()

	change := Change{Event: EventUpdate, Table: model.TableIssues, LibraryID: "lib-1", RecordID: "1"}
	require.NoError(t, hub.Publish(context.Background(), change))

	require.Equal(t, 1, hub.Dispatch(change))
	require.Equal(t, 0, hub.Dispatch(Change{Event: EventUpdate, Table: model.TableIssues, LibraryID: "lib-2"}))
	require.Len(t, got, 1)

	require.NoError(t, hub.RemoveChannel(ch))
	require.Equal(t, 0, hub.Dispatch(change))
	require.NoError(t, hub.Close())
}

func TestConsumer_ClaimDispatches(t *testing.T) {
	t.Parallel()
	var got []Change
	consumer := NewConsumer(func(c Change) int {
		got = append(got, c)
		return 1
	}, zap.NewNop())
	require.NoError(t, consumer.Setup(nil))
	<-consumer.Ready()

	data, err := json.Marshal(Change{Event: EventDelete, Table: model.TableMembers, LibraryID: "lib-1"})
	require.NoError(t, err)

	msgs := make(chan *sarama.ConsumerMessage, 2)
	msgs <- &sarama.ConsumerMessage{Value: []byte("not json")}
	msgs <- &sarama.ConsumerMessage{Value: data}
	close(msgs)

	sess := &fakeSession{ctx: context.Background()}
	require.NoError(t, consumer.ConsumeClaim(sess, &fakeClaim{msgs: msgs}))
	require.Len(t, got, 1)
	require.Equal(t, EventDelete, got[0].Event)
	require.Equal(t, 2, sess.marked)
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked int
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(*sarama.ConsumerMessage, string) { s.marked++ }

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func TestLocalHub_PushesToMatchingChannels(t *testing.T) {
	t.Parallel()
	hub := NewLocalHub(zap.NewNop())
	require.True(t, hub.Live())

	var got []Change
	hub.Channel("members-lib-1").
		On(EventSpec{Event: EventInsert, Table: model.TableMembers, Filter: LibraryFilter("lib-1")}, func(c Change) { got = append(got, c) }).
		Subscribe()

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, Change{Event: EventInsert, Table: model.TableMembers, LibraryID: "lib-1"}))
	require.NoError(t, hub.Publish(ctx, Change{Event: EventDelete, Table: model.TableMembers, LibraryID: "lib-1"}))
	require.NoError(t, hub.Publish(ctx, Change{Event: EventInsert, Table: model.TableMembers, LibraryID: "lib-2"}))
	hub.Wait()
	require.Len(t, got, 1)
	require.Equal(t, SchemaPublic, got[0].Schema)
	require.False(t, got[0].CommitAt.IsZero())

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Publish(ctx, Change{Event: EventInsert, Table: model.TableMembers, LibraryID: "lib-1"}))
	require.Len(t, got, 1)
}

func TestLocalHub_PublishDoesNotWaitForHandlers(t *testing.T) {
	t.Parallel()
	hub := NewLocalHub(zap.NewNop())
	defer hub.Close()

	release := make(chan struct{})
	var got []string
	hub.Channel("books-lib-1").
		On(EventSpec{Event: EventAll, Table: model.TableBooks, Filter: LibraryFilter("lib-1")}, func(c Change) {
			<-release
			got = append(got, c.RecordID)
		}).
		Subscribe()

	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		// returns while the first handler is still blocked
		require.NoError(t, hub.Publish(ctx, Change{Event: EventInsert, Table: model.TableBooks, LibraryID: "lib-1", RecordID: id}))
	}
	close(release)
	hub.Wait()
	require.Equal(t, []string{"1", "2", "3"}, got)
}
