package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetviz/backend/internal/models"
)

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

// readText returns the next JSON message, skipping binary frames.
func readText(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	for {
		kind, data, err := ws.ReadMessage()
		require.NoError(t, err)
		if kind != websocket.TextMessage {
			continue
		}
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}
}

func readBinary(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	for {
		kind, data, err := ws.ReadMessage()
		require.NoError(t, err)
		if kind == websocket.BinaryMessage {
			return data
		}
	}
}

func sendWS(t *testing.T, ws *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(WSMessage{Type: msgType, Payload: raw}))
}

func TestStateStream_SnapshotThenEvents(t *testing.T) {
	s := newTestServer(t, 0, 0)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ws := dialWS(t, srv, "/api/ws/state")

	msg := readText(t, ws)
	require.Equal(t, MsgTypeSnapshot, msg.Type)
	assert.Contains(t, string(msg.Payload), `"isGenerating":false`)

	require.NoError(t, s.state.BeginGeneration())

	msg = readText(t, ws)
	assert.Equal(t, MsgTypeEvent, msg.Type)
	assert.Equal(t, "chart:generating", msg.ID)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1"}))
	msg = readText(t, ws)
	assert.Equal(t, MsgTypePong, msg.Type)
	assert.Equal(t, "p1", msg.ID)
}

func TestSceneStream_FramesAndInputs(t *testing.T) {
	s := newTestServer(t, 0, 0)
	require.NoError(t, s.state.BeginGeneration())
	s.state.FinishGeneration(&models.ChartRecord{
		ID:    "c3d",
		Type:  models.ChartTypeColumn3D,
		Title: "Columns",
		XAxis: "Region",
		YAxis: "Sales",
		Data:  sampleRows(),
	})

	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ws := dialWS(t, srv, "/api/charts/c3d/scene?width=64&height=48")

	msg := readText(t, ws)
	require.Equal(t, MsgTypeReady, msg.Type)
	var ready ReadyPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &ready))
	assert.Equal(t, 64, ready.Surface.Width)
	assert.Equal(t, 48, ready.Surface.Height)
	assert.Equal(t, 3, ready.Columns)

	frame := readBinary(t, ws)
	assert.True(t, bytes.HasPrefix(frame, []byte("\x89PNG")))

	sendWS(t, ws, MsgTypePointer, PointerPayload{X: 10, Y: 10})
	sendWS(t, ws, MsgTypeResize, ResizePayload{Width: 80, Height: 60})

	// Plotting a text column yields no columns but still mounts.
	sendWS(t, ws, MsgTypeAxes, AxesPayload{XAxis: "Sales", YAxis: "Region"})
	msg = readText(t, ws)
	require.Equal(t, MsgTypeReady, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Payload, &ready))
	assert.Equal(t, "Region", ready.YAxis)
	assert.Equal(t, 0, ready.Columns)

	sendWS(t, ws, MsgTypeChart, ChartPayload{ChartID: "missing"})
	msg = readText(t, ws)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "NOT_FOUND")
}

func TestSceneStream_UnknownChart(t *testing.T) {
	s := newTestServer(t, 0, 0)
	rec := s.get("/api/charts/nope/scene")
	assert.Equal(t, 404, rec.Code)
}
