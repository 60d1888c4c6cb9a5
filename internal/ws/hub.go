package ws

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/emandor/lemme_ocr/internal/models"
	"github.com/emandor/lemme_ocr/internal/telemetry"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
}

var (
	mu      sync.RWMutex
	rooms   = map[string]map[Conn]struct{}{}
	// writers serializes writes per connection; the websocket allows only
	// one concurrent writer.
	writers = map[Conn]*sync.Mutex{}
)

type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
)

type Room string

const (
	RoomJobs   Room = "ocr.jobs"
	RoomModels Room = "models"
)

// ModelRoom is the room receiving provisioning events for lang.
func ModelRoom(lang string) string { return string(RoomModels) + "." + lang }

type Event string

const (
	EventJobCreated Event = "ocr.event.created"
	EventJobDone    Event = "ocr.event.done"
	EventJobError   Event = "ocr.event.error"
	EventModel      Event = "models.event"
)

type PayloadEvent struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ClientMessage struct {
	Action Action `json:"action"`
	Room   string `json:"room"`
}

func HandleWS(c *websocket.Conn) {
	tlog := telemetry.L().With().Str("module", "ws").Logger()
	tlog.Info().Msg("ws_connected")
	defer func() {
		// cleanup on disconnect
		leaveAll(c)
		_ = c.Close()
	}()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			break
		}

		var cm ClientMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			continue
		}

		switch cm.Action {
		case ActionJoin:
			Join(c, cm.Room)
		case ActionLeave:
			Leave(c, cm.Room)
		}
	}
}

func Join(c Conn, room string) {
	if room == "" {
		return
	}
	mu.Lock()
	if rooms[room] == nil {
		rooms[room] = map[Conn]struct{}{}
	}
	rooms[room][c] = struct{}{}
	if writers[c] == nil {
		writers[c] = &sync.Mutex{}
	}
	mu.Unlock()
	log := telemetry.L().With().Str("module", "ws").Logger()
	log.Debug().Str("room", room).Msg("ws_join")
}

func Leave(c Conn, room string) {
	if room == "" {
		return
	}
	mu.Lock()
	delete(rooms[room], c)
	if len(rooms[room]) == 0 {
		delete(rooms, room)
	}
	mu.Unlock()
	log := telemetry.L().With().Str("module", "ws").Logger()
	log.Debug().Str("room", room).Msg("ws_leave")
}

func leaveAll(c Conn) {
	mu.Lock()
	for room, conns := range rooms {
		delete(conns, c)
		if len(conns) == 0 {
			delete(rooms, room)
		}
	}
	delete(writers, c)
	mu.Unlock()
}

func HasSubscribers(room string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return len(rooms[room]) > 0
}

type target struct {
	conn Conn
	wmu  *sync.Mutex
}

func broadcast(room string, pl PayloadEvent) {
	mu.RLock()
	targets := make([]target, 0, len(rooms[room]))
	for c := range rooms[room] {
		targets = append(targets, target{conn: c, wmu: writers[c]})
	}
	mu.RUnlock()

	for _, t := range targets {
		t.wmu.Lock()
		_ = t.conn.WriteJSON(pl)
		t.wmu.Unlock()
	}
}

type JobPayload struct {
	JobID     string `json:"job_id"`
	Lang      string `json:"lang,omitempty"`
	Spans     int    `json:"spans,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

func BroadcastJobCreated(jobID, lang string) {
	broadcast(string(RoomJobs), PayloadEvent{Event: EventJobCreated, Data: JobPayload{JobID: jobID, Lang: lang}})
}

func BroadcastJobDone(jobID string, spans int, elapsedMs int64) {
	broadcast(string(RoomJobs), PayloadEvent{Event: EventJobDone, Data: JobPayload{JobID: jobID, Spans: spans, ElapsedMs: elapsedMs}})
}

func BroadcastJobError(jobID string, err error) {
	broadcast(string(RoomJobs), PayloadEvent{Event: EventJobError, Data: JobPayload{JobID: jobID, Error: err.Error()}})
}

// BroadcastModelEvent forwards provisioning progress; it fits
// models.Observer.
func BroadcastModelEvent(e models.Event) {
	broadcast(ModelRoom(e.Lang), PayloadEvent{Event: EventModel, Data: e})
}
