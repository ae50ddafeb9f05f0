package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tgproxy/pkg/logx"
)

func record(channel string, i int) DeliveryRecord {
	return DeliveryRecord{
		At:        time.Unix(1700000000+int64(i), 0).UTC(),
		Channel:   channel,
		RequestID: fmt.Sprintf("%s-%d", channel, i),
		Outcome:   OutcomeSent,
		Attempts:  1,
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func TestStores(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "journal.db")
			st, err := Open(Config{Driver: driver, Path: path, Keep: 50, RecordText: true}, logx.Nop())
			require.NoError(t, err)

			ctx := context.Background()
			for i := 0; i < 3; i++ {
				require.NoError(t, st.AppendDelivery(ctx, record("a", i)))
			}
			failed := record("b", 0)
			failed.Outcome, failed.Kind, failed.Error = OutcomeFailed, "fatal", "Status: 400. Body: <NO BODY>"
			failed.Text = strings.Repeat("x", MaxTextLen+10)
			require.NoError(t, st.AppendDelivery(ctx, failed))

			got, err := st.RecentDeliveries(ctx, "a", 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "a-2", got[0].RequestID)
			assert.Equal(t, "a-1", got[1].RequestID)
			assert.True(t, got[0].At.Equal(record("a", 2).At))

			got, err = st.RecentDeliveries(ctx, "b", 10)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, OutcomeFailed, got[0].Outcome)
			assert.Equal(t, "fatal", got[0].Kind)
			assert.Equal(t, "Status: 400. Body: <NO BODY>", got[0].Error)
			assert.Len(t, []rune(got[0].Text), MaxTextLen+1)

			got, err = st.RecentDeliveries(ctx, "missing", 10)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, st.Close())

			// Records survive a reopen.
			st, err = Open(Config{Driver: driver, Path: path, Keep: 50}, logx.Nop())
			require.NoError(t, err)
			defer st.Close()
			got, err = st.RecentDeliveries(ctx, "a", 0)
			require.NoError(t, err)
			assert.Len(t, got, 3)
		})
	}
}

func TestStoresDropTextUnlessRecorded(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "journal.db")}, logx.Nop())
			require.NoError(t, err)
			defer st.Close()

			ctx := context.Background()
			r := record("a", 0)
			r.Text = "hello"
			require.NoError(t, st.AppendDelivery(ctx, r))

			got, err := st.RecentDeliveries(ctx, "a", 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "a-0", got[0].RequestID)
			assert.Empty(t, got[0].Text)
		})
	}
}

func TestFileStoreKeepsBoundedHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	st, err := Open(Config{Driver: "file", Path: path, Keep: 5}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 40; i++ {
		require.NoError(t, st.AppendDelivery(ctx, record("a", i)))
	}

	got, err := st.RecentDeliveries(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "a-39", got[0].RequestID)
	assert.Equal(t, "a-35", got[4].RequestID)

	b, err := os.ReadFile(path + ".deliveries.jsonl")
	require.NoError(t, err)
	lines := strings.Count(string(b), "\n")
	assert.LessOrEqual(t, lines, compactFactor*5+1)
}

func TestFileStoreClosed(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	assert.ErrorIs(t, st.AppendDelivery(context.Background(), record("a", 1)), ErrClosed)
	_, err = st.RecentDeliveries(context.Background(), "a", 1)
	assert.ErrorIs(t, err, ErrClosed)
}
