package castprotocol

import (
	"fmt"
	"sync/atomic"

	"github.com/vishen/go-chromecast/cast"
)

const (
	// DefaultMediaReceiverAppID is the Default Media Receiver application.
	DefaultMediaReceiverAppID = "CC1AD845"

	defaultSender = "sender-0"
	defaultRecv   = "receiver-0"

	namespaceRecv  = "urn:x-cast:com.google.cast.receiver"
	namespaceMedia = "urn:x-cast:com.google.cast.media"
)

// Request ID counter for Chromecast messages. Starts high so our IDs never
// collide with the ones go-chromecast hands out on the same connection.
var requestIDCounter int32 = 1 << 20

func nextRequestID() int {
	return int(atomic.AddInt32(&requestIDCounter, 1))
}

// payloadSender is the part of cast.Conn used for custom commands.
type payloadSender interface {
	Send(requestID int, payload cast.Payload, sourceID, destinationID, namespace string) error
}

// LaunchPayload asks the platform receiver to start an application.
type LaunchPayload struct {
	Type      string `json:"type"`
	RequestId int    `json:"requestId"`
	AppId     string `json:"appId"`
}

// SetRequestId implements cast.Payload interface
func (p *LaunchPayload) SetRequestId(id int) {
	p.RequestId = id
}

// LoadPayload is a LOAD command carrying our own MediaItem, so the
// metadata the receiver displays can be set.
type LoadPayload struct {
	Type        string    `json:"type"`
	RequestId   int       `json:"requestId"`
	Media       MediaItem `json:"media"`
	CurrentTime int       `json:"currentTime"`
	Autoplay    bool      `json:"autoplay"`
}

// SetRequestId implements cast.Payload interface
func (p *LoadPayload) SetRequestId(id int) {
	p.RequestId = id
}

var (
	_ cast.Payload = (*LaunchPayload)(nil)
	_ cast.Payload = (*LoadPayload)(nil)
)

func sendLaunch(conn payloadSender, appID string) error {
	payload := &LaunchPayload{Type: "LAUNCH", AppId: appID}
	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, defaultRecv, namespaceRecv); err != nil {
		return fmt.Errorf("send launch: %w", err)
	}
	return nil
}

func sendLoad(conn payloadSender, transportId string, media MediaItem, autoplay bool) error {
	payload := &LoadPayload{
		Type:     "LOAD",
		Media:    media,
		Autoplay: autoplay,
	}
	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, transportId, namespaceMedia); err != nil {
		return fmt.Errorf("send load: %w", err)
	}
	return nil
}
