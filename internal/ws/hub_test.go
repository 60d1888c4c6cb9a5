package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_ocr/internal/models"
)

type recorder struct {
	mu  sync.Mutex
	got []PayloadEvent
}

func (r *recorder) WriteJSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v.(PayloadEvent))
	return nil
}

func TestJobEventsReachJoinedConns(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Join(a, string(RoomJobs))
	t.Cleanup(func() { leaveAll(a); leaveAll(b) })

	BroadcastJobCreated("j1", "japan")
	BroadcastJobDone("j1", 3, 1200)
	BroadcastJobError("j2", errors.New("bad image"))

	require.Len(t, a.got, 3)
	assert.Empty(t, b.got)
	assert.Equal(t, EventJobCreated, a.got[0].Event)
	assert.Equal(t, JobPayload{JobID: "j1", Spans: 3, ElapsedMs: 1200}, a.got[1].Data)
	assert.Equal(t, "bad image", a.got[2].Data.(JobPayload).Error)
}

func TestModelEventsAreScopedByLanguage(t *testing.T) {
	ja, en := &recorder{}, &recorder{}
	Join(ja, ModelRoom("japan"))
	Join(en, ModelRoom("en"))
	t.Cleanup(func() { leaveAll(ja); leaveAll(en) })

	BroadcastModelEvent(models.Event{Stage: models.StageDownloadDone, Lang: "japan"})

	require.Len(t, ja.got, 1)
	assert.Empty(t, en.got)
	assert.Equal(t, EventModel, ja.got[0].Event)
}

func TestLeave(t *testing.T) {
	c := &recorder{}
	Join(c, "room.x")
	assert.True(t, HasSubscribers("room.x"))

	Leave(c, "room.x")
	assert.False(t, HasSubscribers("room.x"))

	Join(c, "")
	assert.False(t, HasSubscribers(""))
}

// overlapConn records how many WriteJSON calls ran at the same time.
type overlapConn struct {
	active  atomic.Int32
	overlap atomic.Int32
	writes  atomic.Int32
}

func (o *overlapConn) WriteJSON(any) error {
	if o.active.Add(1) > 1 {
		o.overlap.Add(1)
	}
	time.Sleep(time.Millisecond)
	o.active.Add(-1)
	o.writes.Add(1)
	return nil
}

func TestBroadcastSerializesWritesPerConn(t *testing.T) {
	c := &overlapConn{}
	Join(c, string(RoomJobs))
	Join(c, ModelRoom("japan"))
	t.Cleanup(func() { leaveAll(c) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			BroadcastJobCreated("j", "japan")
		}()
		go func() {
			defer wg.Done()
			BroadcastModelEvent(models.Event{Stage: models.StageCached, Lang: "japan"})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(16), c.writes.Load())
	assert.Zero(t, c.overlap.Load())
}
