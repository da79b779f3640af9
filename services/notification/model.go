package notification

// Notification is the payload accepted by the platform's dispatch endpoint.
// Delivery (push, SMS, email) is owned by that endpoint; this service only
// hands the message over.
type Notification struct {
	UserID   string         `json:"user_id"`
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Channels []string       `json:"channels"`
}

const (
	TypeArrearsResolved = "arrears_resolved"
)

var DefaultChannels = []string{"push", "email"}
