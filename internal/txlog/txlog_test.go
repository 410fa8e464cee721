package txlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event), "line is not valid JSON: %s", scanner.Text())
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestLog_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txlog.jsonl")

	log, err := Open(path)
	require.NoError(t, err)
	log.Deposit("alice", "arrow", 5)
	log.OrderCreated(1, "alice", "auction", "arrow", 5, 10)
	log.FeeCharged(1, "alice", 2)
	log.BidPlaced(1, "bob", 15)
	require.NoError(t, log.Close())

	events := readEvents(t, path)
	require.Len(t, events, 4)

	assert.Equal(t, "deposit", events[0]["event"])
	assert.Equal(t, "alice", events[0]["user"])
	assert.Equal(t, float64(5), events[0]["quantity"])
	assert.NotEmpty(t, events[0]["ts"])

	assert.Equal(t, "order_created", events[1]["event"])
	assert.Equal(t, "auction", events[1]["kind"])
	assert.Equal(t, "fee_charged", events[2]["event"])
	assert.Equal(t, float64(2), events[2]["amount"])
	assert.Equal(t, "bid_placed", events[3]["event"])
	assert.Equal(t, "bob", events[3]["bidder"])
}

func TestLog_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txlog.jsonl")

	log, err := Open(path)
	require.NoError(t, err)
	log.Withdraw("alice", "arrow", 2)
	require.NoError(t, log.Close())

	// A restart must not truncate the audit trail.
	log, err = Open(path)
	require.NoError(t, err)
	log.OrderExpired(7, "alice", "arrow", 3)
	require.NoError(t, log.Close())

	events := readEvents(t, path)
	require.Len(t, events, 2)
	assert.Equal(t, "withdraw", events[0]["event"])
	assert.Equal(t, "order_expired", events[1]["event"])
	assert.Equal(t, float64(7), events[1]["order"])
}
