package constants

const (
	RoomStatusWaiting   = "waiting"
	RoomStatusActive    = "active"
	RoomStatusCompleted = "completed"
	RoomStatusCancelled = "cancelled"
)

const (
	SessionStatusPending    = "pending"
	SessionStatusGenerating = "generating"
	SessionStatusActive     = "active"
	SessionStatusComplete   = "complete"
)

const (
	ViolationFocusLoss = "focus_loss"
)

const (
	MinTotalQuestions = 5
	JoinCodeLength    = 6
)

const (
	MinStudyMinutes = 1
	MaxStudyMinutes = 60
)
