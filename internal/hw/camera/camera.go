package camera

import (
	"errors"

	"github.com/cjeanneret/SkyGo/internal/link/frame"
)

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how it's controlled
// (GPIO, serial link to the camera controller, etc.).
type Camera interface {
	// Capture handles a picture request. A nil response means the answer
	// arrives later over the link.
	Capture(req frame.Message) (*frame.Message, error)
}

// ErrBadRequest is returned for a message that is not a picture request.
var ErrBadRequest = errors.New("not a picture request")

// NewRequest builds the picture request sent for a scheduled capture.
func NewRequest(captureID string) frame.Message {
	return frame.NewMessage(frame.KindPictureRequest, captureID)
}

// Sender writes a message to the link peer.
type Sender interface {
	Send(frame.Message) error
}

// Link forwards picture requests to the camera controller on the other end
// of the link. The response is decoded from inbound traffic.
type Link struct {
	link Sender
}

// NewLink returns a Camera backed by the link.
func NewLink(s Sender) *Link {
	return &Link{link: s}
}

func (l *Link) Capture(req frame.Message) (*frame.Message, error) {
	if req.Kind != frame.KindPictureRequest {
		return nil, ErrBadRequest
	}
	if err := l.link.Send(req); err != nil {
		return nil, err
	}
	return nil, nil
}
