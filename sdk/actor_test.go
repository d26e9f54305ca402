package sdk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/pio-go/sdk/testdata"
)

func TestActor_Unidentified(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, nil)
	actor := client.NewActor()

	_, ok := actor.UserID()
	assert.False(t, ok)

	res, err := actor.ActionItemAsync(ts.Context, ActionView, "i1", nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrUnidentifiedActor)
	assert.True(t, IsUsage(err))

	_, err = actor.RateItem(ts.Context, "i1", 3)
	assert.ErrorIs(t, err, ErrUnidentifiedActor)

	assert.Equal(t, 0, ts.Server.GetRequestCount())
}

func TestActor_ActsAsIdentifiedUser(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, nil)
	actor := client.NewActor()

	actor.Identify("u7")
	_, err := actor.ActionItem(ts.Context, ActionConversion, "i1", map[string]interface{}{"price": 12.5})
	require.NoError(t, err)
	_, err = actor.RateItem(ts.Context, "i2", 2)
	require.NoError(t, err)

	reqs := ts.Server.GetRequests()
	require.Len(t, reqs, 2)
	conversion := decodeRecorded(t, reqs[0])
	assert.Equal(t, "conversion", conversion["event"])
	assert.Equal(t, "u7", conversion["entityId"])
	assert.Equal(t, "i1", conversion["targetEntityId"])

	rate := decodeRecorded(t, reqs[1])
	assert.Equal(t, "u7", rate["entityId"])
	assert.Equal(t, float64(2), rate["properties"].(map[string]interface{})["rating"])
}

func TestActor_Forget(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, nil)
	actor := client.NewActor()

	actor.Identify("u1")
	actor.Forget()
	_, err := actor.ActionItemAsync(ts.Context, ActionLike, "i1", nil)
	assert.ErrorIs(t, err, ErrUnidentifiedActor)

	actor.Identify("")
	_, ok := actor.UserID()
	assert.False(t, ok)
}

func TestActor_RateOutOfRangeIsUsageError(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, nil)
	actor := client.NewActor()
	actor.Identify("u1")

	_, err := actor.RateItemAsync(ts.Context, "i1", 9)
	assert.True(t, IsUsage(err))
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Equal(t, 0, ts.Server.GetRequestCount())
}

func TestActor_ConcurrentIdentify(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, func(c *Config) { c.MaxConcurrentConnections = 4 })
	actor := client.NewActor()
	actor.Identify("u0")

	uids := testdata.UserIDs(10)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, uid := range uids {
			actor.Identify(uid)
		}
	}()

	helper := testdata.NewConcurrentTestHelper(t)
	helper.Run(10, func(id int) error {
		_, err := actor.ActionItem(ts.Context, ActionView, "i1", nil)
		return err
	})
	helper.Wait()
	wg.Wait()

	known := map[string]bool{"u0": true}
	for _, uid := range uids {
		known[uid] = true
	}
	for _, req := range ts.Server.GetRequests() {
		body := decodeRecorded(t, req)
		assert.True(t, known[body["entityId"].(string)])
	}
}
