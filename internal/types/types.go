package types

// EventType classifies outward notifications broadcast to viewers.
type EventType string

const (
	EventKey          EventType = "key"
	EventClick        EventType = "click"
	EventMove         EventType = "move"
	EventScroll       EventType = "scroll"
	EventAutoClick    EventType = "auto_click"
	EventSystem       EventType = "system"
	EventClipboard    EventType = "clipboard"
	EventFileTransfer EventType = "file_transfer"
	EventAudio        EventType = "audio"
)

// Envelope is the outer shape of every inbound text message. The Type
// discriminator selects the handling path (control, command, ping); the
// remaining fields are populated depending on Action.
type Envelope struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Button  string `json:"button"`
	Dy      int    `json:"dy"`
	Key     string `json:"key"`
	Text    string `json:"text"`
	Quality int    `json:"quality"`
	FPS     int    `json:"fps"`
	Monitor int    `json:"monitor"`
}

// ScreenSize is sent once immediately after a viewer connects.
type ScreenSize struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Pong answers an inbound ping for latency measurement.
type Pong struct {
	Type string `json:"type"`
}

// FileTransferAck reports the outcome of an inbound binary upload.
type FileTransferAck struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Size    int    `json:"size,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event is the side-channel notification describing an applied command.
// Timestamp uses the wall-clock "HH:MM:SS" form viewers display verbatim.
type Event struct {
	Timestamp string         `json:"timestamp"`
	Type      EventType      `json:"type"`
	Details   map[string]any `json:"details"`
}
