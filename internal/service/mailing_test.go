package service_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mpetrenko/concert-notifier/internal/dal"
	"github.com/mpetrenko/concert-notifier/internal/dal/testutil"
	"github.com/mpetrenko/concert-notifier/internal/service"
	"github.com/mpetrenko/concert-notifier/internal/service/mocks"
	"github.com/mpetrenko/concert-notifier/pkg/clock"
)

const scheduleText = "Расписание концертов Мияги 2025/2026:\n\n14.03.2026 — Москва, ВТБ Арена"

var now = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// passthroughStore wires the mocked store Update/View to a real in-memory map
// so tests can assert the reconciled state after a cycle.
func passthroughStore(ctrl *gomock.Controller, subs map[int64]dal.Subscriber) *mocks.MockSubscriberStore {
	store := mocks.NewMockSubscriberStore(ctrl)
	store.EXPECT().Update(gomock.Any()).DoAndReturn(func(fn func(map[int64]dal.Subscriber) error) error {
		return fn(subs)
	}).AnyTimes()
	store.EXPECT().View(gomock.Any()).DoAndReturn(func(fn func(map[int64]dal.Subscriber) error) error {
		return fn(subs)
	}).AnyTimes()
	return store
}

func TestMailing_Run_FetchFailureAbortsCycle(t *testing.T) {
	ctrl := gomock.NewController(t)

	errFetch := errors.New("status=502 Bad Gateway")
	provider := mocks.NewMockScheduleProvider(ctrl)
	provider.EXPECT().Schedule(gomock.Any()).Return("", errFetch)

	// neither the snapshot store nor the subscriber store may be touched
	store := mocks.NewMockSubscriberStore(ctrl)
	snapshots := mocks.NewMockSnapshotStore(ctrl)
	sender := mocks.NewMockMessageSender(ctrl)

	svc := service.NewMailing(store, snapshots, provider, sender, clock.NewMock(now), 10*time.Second, testLogger())

	err := svc.Run(context.Background())
	require.ErrorIs(t, err, errFetch)
}

func TestMailing_Run_DeletesPreviousAndUpdatesRefs(t *testing.T) {
	ctrl := gomock.NewController(t)

	subs := map[int64]dal.Subscriber{
		1: testutil.NewSubscriber(1).WithLastMessageID(100).Build(),
		2: testutil.NewSubscriber(2).Build(),
		3: testutil.NewSubscriber(3).WithMailingDisabled().WithLastMessageID(50).Build(),
	}

	provider := mocks.NewMockScheduleProvider(ctrl)
	provider.EXPECT().Schedule(gomock.Any()).Return(scheduleText, nil)

	snapshots := mocks.NewMockSnapshotStore(ctrl)
	snapshots.EXPECT().PutSnapshot(dal.Snapshot{Text: scheduleText, FetchedAt: now}).Return(nil)

	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().DeleteMessage(gomock.Any(), int64(1), 100).Return(nil)
	sender.EXPECT().SendMessage(gomock.Any(), int64(1), scheduleText).Return(101, nil)
	sender.EXPECT().SendMessage(gomock.Any(), int64(2), scheduleText).Return(102, nil)
	// subscriber 3 has mailing disabled: no delete, no send

	svc := service.NewMailing(passthroughStore(ctrl, subs), snapshots, provider, sender, clock.NewMock(now), 10*time.Second, testLogger())

	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, 101, subs[1].LastMessageID)
	assert.Equal(t, 102, subs[2].LastMessageID)
	assert.Equal(t, testutil.NewSubscriber(3).WithMailingDisabled().WithLastMessageID(50).Build(), subs[3])
}

func TestMailing_Run_PermanentFailurePrunesSubscriber(t *testing.T) {
	ctrl := gomock.NewController(t)

	subs := map[int64]dal.Subscriber{
		1: testutil.NewSubscriber(1).Build(),
		2: testutil.NewSubscriber(2).Build(),
	}

	provider := mocks.NewMockScheduleProvider(ctrl)
	provider.EXPECT().Schedule(gomock.Any()).Return(scheduleText, nil)

	snapshots := mocks.NewMockSnapshotStore(ctrl)
	snapshots.EXPECT().PutSnapshot(gomock.Any()).Return(nil)

	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().SendMessage(gomock.Any(), int64(1), scheduleText).Return(101, nil)
	sender.EXPECT().SendMessage(gomock.Any(), int64(2), scheduleText).
		Return(0, fmt.Errorf("%w: bot was blocked by the user", service.ErrRecipientUnreachable))

	svc := service.NewMailing(passthroughStore(ctrl, subs), snapshots, provider, sender, clock.NewMock(now), 10*time.Second, testLogger())

	require.NoError(t, svc.Run(context.Background()))

	assert.NotContains(t, subs, int64(2))
	assert.Equal(t, 101, subs[1].LastMessageID)
}

func TestMailing_Run_TransientFailureLeavesRecordUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)

	before := testutil.NewSubscriber(2).WithLastMessageID(200).WithProfile("b", "Б", "").Build()
	subs := map[int64]dal.Subscriber{
		1: testutil.NewSubscriber(1).Build(),
		2: before,
		3: testutil.NewSubscriber(3).Build(),
	}

	provider := mocks.NewMockScheduleProvider(ctrl)
	provider.EXPECT().Schedule(gomock.Any()).Return(scheduleText, nil)

	snapshots := mocks.NewMockSnapshotStore(ctrl)
	snapshots.EXPECT().PutSnapshot(gomock.Any()).Return(nil)

	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().SendMessage(gomock.Any(), int64(1), scheduleText).Return(101, nil)
	sender.EXPECT().DeleteMessage(gomock.Any(), int64(2), 200).Return(nil)
	sender.EXPECT().SendMessage(gomock.Any(), int64(2), scheduleText).Return(0, errors.New("telegram: internal server error"))
	sender.EXPECT().SendMessage(gomock.Any(), int64(3), scheduleText).Return(103, nil)

	svc := service.NewMailing(passthroughStore(ctrl, subs), snapshots, provider, sender, clock.NewMock(now), 10*time.Second, testLogger())

	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, 101, subs[1].LastMessageID)
	assert.Equal(t, before, subs[2])
	assert.Equal(t, 103, subs[3].LastMessageID)
}

func TestMailing_Run_DeleteFailureIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)

	subs := map[int64]dal.Subscriber{
		1: testutil.NewSubscriber(1).WithLastMessageID(100).Build(),
	}

	provider := mocks.NewMockScheduleProvider(ctrl)
	provider.EXPECT().Schedule(gomock.Any()).Return(scheduleText, nil)

	snapshots := mocks.NewMockSnapshotStore(ctrl)
	snapshots.EXPECT().PutSnapshot(gomock.Any()).Return(nil)

	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().DeleteMessage(gomock.Any(), int64(1), 100).Return(errors.New("message to delete not found"))
	sender.EXPECT().SendMessage(gomock.Any(), int64(1), scheduleText).Return(101, nil)

	svc := service.NewMailing(passthroughStore(ctrl, subs), snapshots, provider, sender, clock.NewMock(now), 10*time.Second, testLogger())

	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, 101, subs[1].LastMessageID)
}

func TestMailing_Run_SnapshotWriteFailureDoesNotAbort(t *testing.T) {
	ctrl := gomock.NewController(t)

	subs := map[int64]dal.Subscriber{
		1: testutil.NewSubscriber(1).Build(),
	}

	provider := mocks.NewMockScheduleProvider(ctrl)
	provider.EXPECT().Schedule(gomock.Any()).Return(scheduleText, nil)

	snapshots := mocks.NewMockSnapshotStore(ctrl)
	snapshots.EXPECT().PutSnapshot(gomock.Any()).Return(errors.New("disk full"))

	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().SendMessage(gomock.Any(), int64(1), scheduleText).Return(101, nil)

	svc := service.NewMailing(passthroughStore(ctrl, subs), snapshots, provider, sender, clock.NewMock(now), 10*time.Second, testLogger())

	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, 101, subs[1].LastMessageID)
}

func TestMailing_DeliverTo(t *testing.T) {
	ctrl := gomock.NewController(t)

	subs := map[int64]dal.Subscriber{
		1: testutil.NewSubscriber(1).Build(),
	}

	provider := mocks.NewMockScheduleProvider(ctrl)

	snapshots := mocks.NewMockSnapshotStore(ctrl)
	snapshots.EXPECT().GetSnapshot().Return(dal.Snapshot{Text: scheduleText, FetchedAt: now}, true, nil)

	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().SendMessage(gomock.Any(), int64(1), scheduleText).Return(42, nil)

	svc := service.NewMailing(passthroughStore(ctrl, subs), snapshots, provider, sender, clock.NewMock(now), 10*time.Second, testLogger())

	require.NoError(t, svc.DeliverTo(context.Background(), 1))
	assert.Equal(t, 42, subs[1].LastMessageID)
}

func TestMailing_DeliverTo_NoSnapshotIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)

	provider := mocks.NewMockScheduleProvider(ctrl)
	sender := mocks.NewMockMessageSender(ctrl)
	store := mocks.NewMockSubscriberStore(ctrl)

	snapshots := mocks.NewMockSnapshotStore(ctrl)
	snapshots.EXPECT().GetSnapshot().Return(dal.Snapshot{}, false, nil)

	svc := service.NewMailing(store, snapshots, provider, sender, clock.NewMock(now), 10*time.Second, testLogger())

	require.NoError(t, svc.DeliverTo(context.Background(), 1))
}

func TestMailing_DeliverTo_UnknownSubscriber(t *testing.T) {
	ctrl := gomock.NewController(t)

	provider := mocks.NewMockScheduleProvider(ctrl)
	sender := mocks.NewMockMessageSender(ctrl)

	snapshots := mocks.NewMockSnapshotStore(ctrl)
	snapshots.EXPECT().GetSnapshot().Return(dal.Snapshot{Text: scheduleText, FetchedAt: now}, true, nil)

	svc := service.NewMailing(passthroughStore(ctrl, map[int64]dal.Subscriber{}), snapshots, provider, sender, clock.NewMock(now), 10*time.Second, testLogger())

	err := svc.DeliverTo(context.Background(), 404)
	require.ErrorIs(t, err, service.ErrUnknownSubscriber)
}
