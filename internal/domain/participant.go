package domain

// Participant is one remote peer as the UI sees it.
// IsMuted and IsVideoOff are placeholders seeded true; remote media state is not signaled.
type Participant struct {
	ID          SessionID `json:"id"`
	DisplayName string    `json:"display_name"`
	IsMuted     bool      `json:"is_muted"`
	IsVideoOff  bool      `json:"is_video_off"`
}
