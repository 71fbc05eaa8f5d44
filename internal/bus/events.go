package bus

// Wire event names. These are a compatibility contract with existing
// clients and must not change.
const (
	EventRoomCreated       = "room_created"
	EventJoinedRoom        = "joined_room"
	EventParticipantJoined = "participant_joined"
	EventRemoteCodeChange  = "remote_code_change"
	EventRunQueued         = "run_queued"
	EventRunResult         = "run_result"
	EventRunError          = "run_error"
	EventError             = "error"
)

type RunResultPayload struct {
	JobID  string `json:"jobId"`
	Output string `json:"output"`
	Time   int64  `json:"time"`
	Status string `json:"status"`
}

type RunErrorPayload struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

type ParticipantJoinedPayload struct {
	UserID string `json:"userId"`
}
