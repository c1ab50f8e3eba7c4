package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/models"
	"github.com/sheetviz/backend/internal/scene"
	"github.com/sheetviz/backend/internal/state"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing    = "ping"
	MsgTypePointer = "pointer"
	MsgTypeResize  = "resize"
	MsgTypeAxes    = "axes"
	MsgTypeChart   = "chart"

	// Server -> Client messages
	MsgTypeSnapshot = "snapshot"
	MsgTypeEvent    = "event"
	MsgTypeReady    = "ready"
	MsgTypeError    = "error"
	MsgTypePong     = "pong"
)

const (
	writeWait   = 10 * time.Second
	eventBuffer = 64
)

// WSMessage is the JSON envelope used in both directions
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// PointerPayload carries a pointer position in viewport pixels
type PointerPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ResizePayload carries a new viewport size
type ResizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AxesPayload selects the columns plotted by the scene
type AxesPayload struct {
	XAxis string `json:"xAxis"`
	YAxis string `json:"yAxis"`
}

// ChartPayload switches the scene to another chart
type ChartPayload struct {
	ChartID string `json:"chartId"`
}

// ReadyPayload is sent after a scene has been mounted
type ReadyPayload struct {
	Surface scene.Surface `json:"surface"`
	ChartID string        `json:"chartId"`
	XAxis   string        `json:"xAxis"`
	YAxis   string        `json:"yAxis"`
	Columns int           `json:"columns"`
}

// WSErrorResponse is the payload of an error message
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SceneOptions configures scene sessions
type SceneOptions struct {
	DefaultWidth  int
	DefaultHeight int
	MaxWidth      int
	MaxHeight     int
	FrameInterval time.Duration
	Factory       scene.ContextFactory
}

// StreamHandlerImpl implements the StreamHandler interface
type StreamHandlerImpl struct {
	state    *state.Store
	opts     SceneOptions
	log      logger.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates the websocket handler
func NewStreamHandler(st *state.Store, opts SceneOptions, log logger.Logger) StreamHandler {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Factory == nil {
		opts.Factory = scene.SoftwareFactory
	}
	if opts.DefaultWidth <= 0 {
		opts.DefaultWidth = 800
	}
	if opts.DefaultHeight <= 0 {
		opts.DefaultHeight = 400
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = scene.MaxSurfaceSize
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = scene.MaxSurfaceSize
	}
	return &StreamHandlerImpl{
		state: st,
		opts:  opts,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// conn serialises writes to one websocket connection.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(msgType string, id string, payload interface{}) error {
	msg := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = raw
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (c *conn) sendError(message, code string) error {
	return c.send(MsgTypeError, "", WSErrorResponse{Message: message, Code: code})
}

func (c *conn) sendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// HandleStateStream sends a snapshot followed by every state change
func (h *StreamHandlerImpl) HandleStateStream(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	out := &conn{ws: ws}

	events, unsubscribe := h.state.Subscribe(eventBuffer)
	defer unsubscribe()

	h.log.Debug("ws", "state client connected", nil)
	if err := out.send(MsgTypeSnapshot, "", h.state.Snapshot()); err != nil {
		return nil
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == MsgTypePing {
				out.send(MsgTypePong, msg.ID, nil)
			}
		}
	}()

	for {
		select {
		case <-closed:
			h.log.Debug("ws", "state client disconnected", nil)
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := out.send(MsgTypeEvent, string(e.Kind), e); err != nil {
				return nil
			}
		}
	}
}

// HandleScene streams an animated 3D column scene for a chart. Frames are
// sent as binary PNG messages; when the client falls behind only the latest
// frame is kept.
func (h *StreamHandlerImpl) HandleScene(c echo.Context) error {
	id := c.Param("id")
	rec, ok := h.state.Chart(id)
	if !ok {
		return NewNotFoundError("chart", id)
	}
	w, err := intQuery(c, "width", h.opts.DefaultWidth)
	if err != nil {
		return err
	}
	hgt, err := intQuery(c, "height", h.opts.DefaultHeight)
	if err != nil {
		return err
	}
	w, hgt = h.clamp(w, hgt)

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	s := newSceneSession(&conn{ws: ws}, h, w, hgt)
	s.run(rec)
	return nil
}

func (h *StreamHandlerImpl) clamp(w, hgt int) (int, int) {
	if w <= 0 {
		w = h.opts.DefaultWidth
	}
	if hgt <= 0 {
		hgt = h.opts.DefaultHeight
	}
	if w > h.opts.MaxWidth {
		w = h.opts.MaxWidth
	}
	if hgt > h.opts.MaxHeight {
		hgt = h.opts.MaxHeight
	}
	return w, hgt
}

// sceneSession owns the host loop and viewer of one scene connection.
type sceneSession struct {
	out     *conn
	handler *StreamHandlerImpl
	host    *scene.LoopHost
	viewer  *scene.Viewer
	frames  chan image.Image
}

func newSceneSession(out *conn, h *StreamHandlerImpl, w, hgt int) *sceneSession {
	s := &sceneSession{
		out:     out,
		handler: h,
		host:    scene.NewLoopHost(w, hgt, h.opts.FrameInterval),
		frames:  make(chan image.Image, 1),
	}
	s.viewer = scene.NewViewer(s.host, h.opts.Factory, s.offer)
	return s
}

// offer keeps the newest frame. It runs on the host loop and never blocks.
func (s *sceneSession) offer(img image.Image) {
	select {
	case s.frames <- img:
		return
	default:
	}
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- img:
	default:
	}
}

// sceneChange asks run to remount the viewer.
type sceneChange struct {
	chartID string
	in      scene.Inputs
}

func (s *sceneSession) run(rec *models.ChartRecord) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.host.Run(ctx)
	defer func() {
		s.viewer.Close()
		s.host.Stop()
		<-s.host.Done()
	}()

	changes := make(chan sceneChange, 1)
	closed := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go s.read(rec, changes, closed, done)

	if err := s.mount(sceneChange{chartID: rec.ID, in: inputsOf(rec)}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case ch := <-changes:
			if err := s.mount(ch); err != nil {
				return
			}
		case img := <-s.frames:
			data, err := encodeFrame(img)
			if err != nil {
				s.handler.log.Warn("ws", "frame encode failed", map[string]interface{}{"error": err})
				continue
			}
			if err := s.out.sendBinary(data); err != nil {
				return
			}
		}
	}
}

// mount replaces the viewer's inputs. A failed mount is reported to the
// client and ends the session.
func (s *sceneSession) mount(ch sceneChange) error {
	if err := s.viewer.SetInputs(ch.in); err != nil {
		apiErr := FromDomainError(err)
		s.out.sendError(apiErr.Message+": "+err.Error(), apiErr.Code)
		s.handler.log.Error("ws", "scene mount failed", map[string]interface{}{
			"chart": logger.ShortID(ch.chartID),
			"error": err,
		})
		return err
	}

	ready := ReadyPayload{ChartID: ch.chartID, XAxis: ch.in.XAxis, YAxis: ch.in.YAxis}
	if handle := s.viewer.Handle(); handle != nil {
		ready.Surface = handle.Surface()
		ready.Columns = len(handle.Scene().Columns)
	}
	return s.out.send(MsgTypeReady, ch.chartID, ready)
}

// read decodes client messages until the connection closes. Pointer and
// resize events go straight to the host loop; input changes are handed to
// run so mounting happens on one goroutine.
func (s *sceneSession) read(rec *models.ChartRecord, changes chan<- sceneChange, closed, done chan struct{}) {
	defer close(closed)
	current := rec

	submit := func(ch sceneChange) bool {
		select {
		case changes <- ch:
			return true
		case <-done:
			return false
		}
	}

	for {
		var msg WSMessage
		if err := s.out.ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case MsgTypePing:
			s.out.send(MsgTypePong, msg.ID, nil)
		case MsgTypePointer:
			var p PointerPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				s.out.sendError("Invalid pointer payload: "+err.Error(), "INVALID_PAYLOAD")
				continue
			}
			s.host.Dispatch(scene.Event{Kind: scene.EventPointer, X: p.X, Y: p.Y})
		case MsgTypeResize:
			var p ResizePayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Width <= 0 || p.Height <= 0 {
				s.out.sendError("Invalid resize payload", "INVALID_PAYLOAD")
				continue
			}
			w, h := s.handler.clamp(p.Width, p.Height)
			s.host.Dispatch(scene.Event{Kind: scene.EventResize, Width: w, Height: h})
		case MsgTypeAxes:
			var p AxesPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || p.XAxis == "" || p.YAxis == "" {
				s.out.sendError("Invalid axes payload", "INVALID_PAYLOAD")
				continue
			}
			in := scene.Inputs{Data: current.Data, XAxis: p.XAxis, YAxis: p.YAxis}
			if !submit(sceneChange{chartID: current.ID, in: in}) {
				return
			}
		case MsgTypeChart:
			var p ChartPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				s.out.sendError("Invalid chart payload: "+err.Error(), "INVALID_PAYLOAD")
				continue
			}
			next, ok := s.handler.state.Chart(p.ChartID)
			if !ok {
				s.out.sendError("chart not found: "+p.ChartID, "NOT_FOUND")
				continue
			}
			current = next
			if !submit(sceneChange{chartID: next.ID, in: inputsOf(next)}) {
				return
			}
		default:
			s.out.sendError("Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}
}

func inputsOf(rec *models.ChartRecord) scene.Inputs {
	return scene.Inputs{Data: rec.Data, XAxis: rec.XAxis, YAxis: rec.YAxis}
}

func encodeFrame(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
