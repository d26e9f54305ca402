package testdata

import (
	"fmt"
	"time"
)

// ReferenceTime is the fixed event time used across tests.
var ReferenceTime = time.Date(1794, time.July, 27, 0, 0, 0, 0, time.UTC)

// EventJSON is a stored event as returned by GET /events/{id}.json.
const EventJSON = `{
  "eventId": "ev-42",
  "event": "rate",
  "entityType": "user",
  "entityId": "u1",
  "targetEntityType": "item",
  "targetEntityId": "i1",
  "properties": {"rating": 4},
  "eventTime": "1794-07-27T00:00:00.000+00:00",
  "creationTime": "2014-09-01T10:11:12.345Z"
}`

// UserIDs returns n distinct user ids.
func UserIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i+1)
	}
	return ids
}
