package castprotocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vishen/go-chromecast/cast"
)

type sentPayload struct {
	payload     cast.Payload
	destination string
	namespace   string
}

type fakeConn struct {
	mu   sync.Mutex
	sent []sentPayload
	err  error
}

func (f *fakeConn) Send(requestID int, payload cast.Payload, sourceID, destinationID, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentPayload{payload: payload, destination: destinationID, namespace: namespace})
	return nil
}

func (f *fakeConn) payloads() []sentPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPayload(nil), f.sent...)
}

type fakeApp struct {
	mu      sync.Mutex
	app     *cast.Application
	media   *cast.Media
	vol     *cast.Volume
	updates int
	// launchAfter makes App() report the running receiver once Update has
	// been called this many times.
	launchAfter int
	launched    *cast.Application
	paused      int
	unpaused    int
	stopped     int
	closedWith  []bool
}

func (f *fakeApp) Start(addr string, port int) error { return nil }

func (f *fakeApp) Update() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.launched != nil && f.launchAfter > 0 && f.updates >= f.launchAfter {
		f.app = f.launched
	}
	return nil
}

func (f *fakeApp) App() *cast.Application {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.app
}

func (f *fakeApp) Status() (*cast.Application, *cast.Media, *cast.Volume) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.app, f.media, f.vol
}

func (f *fakeApp) Pause() error   { f.paused++; return nil }
func (f *fakeApp) Unpause() error { f.unpaused++; return nil }
func (f *fakeApp) Stop() error    { f.stopped++; return nil }

func (f *fakeApp) Close(stopMedia bool) error {
	f.closedWith = append(f.closedWith, stopMedia)
	return nil
}

func newTestClient(app *fakeApp, conn *fakeConn) *CastClient {
	return &CastClient{
		app:           app,
		conn:          conn,
		host:          "192.168.1.20",
		port:          8009,
		connected:     true,
		LaunchTimeout: 2 * time.Second,
	}
}

func TestLaunchSkipsWhenReceiverAlreadyRunning(t *testing.T) {
	app := &fakeApp{app: &cast.Application{AppId: DefaultMediaReceiverAppID, TransportId: "web-1"}}
	conn := &fakeConn{}
	c := newTestClient(app, conn)

	if err := c.Launch(context.Background(), DefaultMediaReceiverAppID); err != nil {
		t.Fatalf("Launch() err = %v", err)
	}
	if got := len(conn.payloads()); got != 0 {
		t.Fatalf("expected no LAUNCH to be sent, got %d payloads", got)
	}
	if c.transportId != "web-1" {
		t.Fatalf("transportId = %q, want %q", c.transportId, "web-1")
	}
}

func TestLaunchSendsLaunchAndWaitsForTransport(t *testing.T) {
	app := &fakeApp{
		app:         &cast.Application{AppId: "E8C28D3C", TransportId: "backdrop"},
		launched:    &cast.Application{AppId: DefaultMediaReceiverAppID, TransportId: "web-7", DisplayName: "Default Media Receiver"},
		launchAfter: 2,
	}
	conn := &fakeConn{}
	c := newTestClient(app, conn)

	if err := c.Launch(context.Background(), DefaultMediaReceiverAppID); err != nil {
		t.Fatalf("Launch() err = %v", err)
	}

	sent := conn.payloads()
	if len(sent) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(sent))
	}
	launch, ok := sent[0].payload.(*LaunchPayload)
	if !ok {
		t.Fatalf("payload type = %T, want *LaunchPayload", sent[0].payload)
	}
	if launch.Type != "LAUNCH" || launch.AppId != DefaultMediaReceiverAppID || launch.RequestId == 0 {
		t.Fatalf("unexpected launch payload: %+v", launch)
	}
	if sent[0].destination != defaultRecv || sent[0].namespace != namespaceRecv {
		t.Fatalf("launch sent to %s on %s", sent[0].destination, sent[0].namespace)
	}
	if c.transportId != "web-7" {
		t.Fatalf("transportId = %q, want %q", c.transportId, "web-7")
	}
	if c.DisplayName() != "Default Media Receiver" {
		t.Fatalf("DisplayName() = %q", c.DisplayName())
	}
}

func TestLaunchTimesOut(t *testing.T) {
	app := &fakeApp{}
	c := newTestClient(app, &fakeConn{})
	c.LaunchTimeout = 100 * time.Millisecond

	err := c.Launch(context.Background(), DefaultMediaReceiverAppID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Launch() err = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestLaunchRequiresConnection(t *testing.T) {
	c := newTestClient(&fakeApp{}, &fakeConn{})
	c.connected = false

	if err := c.Launch(context.Background(), DefaultMediaReceiverAppID); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Launch() err = %v, want %v", err, ErrNotConnected)
	}
}

func TestLoadWithoutTransport(t *testing.T) {
	c := newTestClient(&fakeApp{}, &fakeConn{})

	err := c.Load(context.Background(), NewMediaItem("http://x/video.mp4", "video/mp4", "", "", ""), true)
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("Load() err = %v, want %v", err, ErrNoTransport)
	}
}

func TestLoadSendsMediaToTransport(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(&fakeApp{}, conn)
	c.transportId = "web-7"

	media := NewMediaItem("http://x/video.mp4", "video/mp4", "", "Chromecast Stream", "http://x/cover.jpg")
	if err := c.Load(context.Background(), media, true); err != nil {
		t.Fatalf("Load() err = %v", err)
	}

	sent := conn.payloads()
	if len(sent) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(sent))
	}
	load, ok := sent[0].payload.(*LoadPayload)
	if !ok {
		t.Fatalf("payload type = %T, want *LoadPayload", sent[0].payload)
	}
	if sent[0].destination != "web-7" || sent[0].namespace != namespaceMedia {
		t.Fatalf("load sent to %s on %s", sent[0].destination, sent[0].namespace)
	}
	if load.Type != "LOAD" || !load.Autoplay {
		t.Fatalf("unexpected load payload: %+v", load)
	}
	if load.Media.ContentId != "http://x/video.mp4" || load.Media.ContentType != "video/mp4" || load.Media.StreamType != StreamTypeBuffered {
		t.Fatalf("unexpected media: %+v", load.Media)
	}
}

func TestLoadSendError(t *testing.T) {
	boom := errors.New("broken pipe")
	c := newTestClient(&fakeApp{}, &fakeConn{err: boom})
	c.transportId = "web-7"

	if err := c.Load(context.Background(), MediaItem{}, true); !errors.Is(err, boom) {
		t.Fatalf("Load() err = %v, want %v", err, boom)
	}
}

func TestTransportCommands(t *testing.T) {
	app := &fakeApp{media: &cast.Media{PlayerState: StatePlaying}}
	c := newTestClient(app, &fakeConn{})

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() err = %v", err)
	}
	if err := c.Play(); err != nil {
		t.Fatalf("Play() err = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() err = %v", err)
	}
	if app.paused != 1 || app.unpaused != 1 || app.stopped != 1 {
		t.Fatalf("paused=%d unpaused=%d stopped=%d", app.paused, app.unpaused, app.stopped)
	}
}

func TestGetStatus(t *testing.T) {
	app := &fakeApp{
		app: &cast.Application{DisplayName: "Default Media Receiver"},
		media: &cast.Media{
			PlayerState: StateBuffering,
			CurrentTime: 12.5,
			Media: cast.MediaItem{
				ContentId:   "http://x/video.mp4",
				ContentType: "video/mp4",
				Duration:    120,
			},
		},
	}
	c := newTestClient(app, &fakeConn{})

	status, err := c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() err = %v", err)
	}
	if status.PlayerState != StateBuffering || status.Duration != 120 || status.ContentType != "video/mp4" || status.AppName != "Default Media Receiver" {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.media = nil
	status, err = c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() err = %v", err)
	}
	if status.PlayerState != StateIdle {
		t.Fatalf("PlayerState = %q, want %q", status.PlayerState, StateIdle)
	}
}

func TestCloseMarksDisconnected(t *testing.T) {
	app := &fakeApp{}
	c := newTestClient(app, &fakeConn{})
	c.transportId = "web-7"

	if err := c.Close(false); err != nil {
		t.Fatalf("Close() err = %v", err)
	}
	if c.IsConnected() {
		t.Fatalf("client still connected after Close")
	}
	if len(app.closedWith) != 1 || app.closedWith[0] {
		t.Fatalf("app.Close calls = %v, want [false]", app.closedWith)
	}
	if _, err := c.GetStatus(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("GetStatus() after close err = %v, want %v", err, ErrNotConnected)
	}
}
