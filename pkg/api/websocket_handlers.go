package api

import (
	"encoding/json"
	"errors"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/open-teleop/airscan/domain/video"
	"github.com/open-teleop/airscan/domain/viewer"
	"github.com/open-teleop/airscan/pkg/keyboard"
	customlog "github.com/open-teleop/airscan/pkg/log"
)

// logClose reports why a websocket read ended, keeping normal closures quiet.
func logClose(logger customlog.Logger, name string, err error) {
	switch {
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
		logger.Warnf("%s WS read error: %v", name, err)
	case errors.Is(err, websocket.ErrCloseSent), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		logger.Debugf("%s WS connection closed normally.", name)
	default:
		logger.Debugf("%s WS connection closed: %v", name, err)
	}
}

// drain reads and discards client messages until the connection closes,
// which is how send-only handlers notice a departed client.
func drain(conn *websocket.Conn, logger customlog.Logger, name string) <-chan struct{} {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				logClose(logger, name, err)
				return
			}
		}
	}()
	return gone
}

// CloudWebSocketHandler streams viewer updates as JSON, starting with the
// current cloud.
func CloudWebSocketHandler(conn *websocket.Conn, hub *viewer.Hub, logger customlog.Logger) {
	logger.Infof("Cloud WebSocket connected: %s", conn.RemoteAddr())
	updates, unsubscribe := hub.Subscribe()
	defer unsubscribe()
	gone := drain(conn, logger, "Cloud")

	for {
		select {
		case <-gone:
			logger.Infof("Cloud WebSocket disconnected: %s", conn.RemoteAddr())
			return
		case u := <-updates:
			if err := conn.WriteJSON(u); err != nil {
				logger.Debugf("Cloud WS write failed: %v", err)
				return
			}
		}
	}
}

// CameraWebSocketHandler streams camera frames as binary PNG messages.
func CameraWebSocketHandler(conn *websocket.Conn, videoService *video.VideoService, logger customlog.Logger) {
	logger.Infof("Camera WebSocket connected: %s", conn.RemoteAddr())
	frames, stop := videoService.StartStream()
	defer stop()
	gone := drain(conn, logger, "Camera")

	for {
		select {
		case <-gone:
			logger.Infof("Camera WebSocket disconnected: %s", conn.RemoteAddr())
			return
		case f := <-frames:
			if err := conn.WriteMessage(websocket.BinaryMessage, f.PNG); err != nil {
				logger.Debugf("Camera WS write failed: %v", err)
				return
			}
		}
	}
}

// ControlWebSocketHandler turns JSON key messages into keyboard events.
func ControlWebSocketHandler(conn *websocket.Conn, feed *keyboard.Feed, logger customlog.Logger) {
	logger.Infof("Control WebSocket connected: %s", conn.RemoteAddr())
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			logClose(logger, "Control", err)
			break
		}
		if mt != websocket.TextMessage {
			logger.Infof("Ignoring non-text Control WS message type: %d", mt)
			continue
		}

		var cm ControlMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			logger.Warnf("Failed to unmarshal control message: %v. Message: %s", err, string(msg))
			continue
		}
		ev, err := cm.Event()
		if err != nil {
			logger.Warnf("Rejected control message: %v", err)
			continue
		}
		if !feed.Send(ev) {
			logger.Infof("Control feed closed, dropping connection")
			break
		}
		logger.Debugf("Key %s pressed=%v via WS", ev.Key, ev.Pressed)
	}
	logger.Infof("Control WebSocket disconnected: %s", conn.RemoteAddr())
}
