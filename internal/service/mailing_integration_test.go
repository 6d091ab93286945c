package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
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

// Runs a full cycle against the real file-backed store to pin down the
// persisted outcome, not just the in-memory reconciliation.
func TestMailing_Run_PersistsReconciledState(t *testing.T) {
	ctrl := gomock.NewController(t)

	path := filepath.Join(t.TempDir(), "subscribers.tsv")
	store, err := dal.NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Update(func(subs map[int64]dal.Subscriber) error {
		subs[1] = testutil.NewSubscriber(1).Build()
		subs[2] = testutil.NewSubscriber(2).WithLastMessageID(200).Build()
		subs[3] = testutil.NewSubscriber(3).Build()
		return nil
	}))

	provider := mocks.NewMockScheduleProvider(ctrl)
	provider.EXPECT().Schedule(gomock.Any()).Return(scheduleText, nil)

	snapshots := mocks.NewMockSnapshotStore(ctrl)
	snapshots.EXPECT().PutSnapshot(gomock.Any()).Return(nil)

	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().SendMessage(gomock.Any(), int64(1), scheduleText).Return(101, nil)
	sender.EXPECT().DeleteMessage(gomock.Any(), int64(2), 200).Return(nil)
	sender.EXPECT().SendMessage(gomock.Any(), int64(2), scheduleText).Return(0, errors.New("telegram: gateway timeout"))
	sender.EXPECT().SendMessage(gomock.Any(), int64(3), scheduleText).Return(103, nil)

	svc := service.NewMailing(store, snapshots, provider, sender,
		clock.NewMock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)), 10*time.Second, testLogger())

	require.NoError(t, svc.Run(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines, "1\t1\t101\t\t\t")
	assert.Contains(t, lines, "2\t1\t200\t\t\t") // transient failure: record untouched
	assert.Contains(t, lines, "3\t1\t103\t\t\t")
}
