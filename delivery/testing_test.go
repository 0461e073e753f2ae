package delivery

import (
	"testing"
	"time"

	"github.com/tonkeeper/analytics/event"
)

func newTestBatch(t *testing.T, names ...string) event.Batch {
	t.Helper()
	var batch event.Batch
	for _, name := range names {
		ev, err := event.New(name, event.Properties{"name": name}, "user-1", "session-test", time.Now())
		if err != nil {
			t.Fatalf("failed to build event: %v", err)
		}
		batch = append(batch, ev)
	}
	return batch
}
