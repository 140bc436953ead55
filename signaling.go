package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/CodedInternet/goecat/comms"
	"github.com/gorilla/websocket"
)

const WS_WRITE_WAIT = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebRTCSignalHandler answers the first message as an offer and treats every
// following message as a trickled ICE candidate.
func WebRTCSignalHandler(w http.ResponseWriter, r *http.Request) {
	log := ENV.Log.WithField("component", "signal")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	msgs := make(chan string, 16)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case msg := <-msgs:
				conn.SetWriteDeadline(time.Now().Add(WS_WRITE_WAIT))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			}
		}
	}()

	var client *comms.WebRTCClient
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Debug("signal connection closed")
			break
		}

		if client == nil {
			client, err = ENV.Conductor.ReceiveOffer(string(msg), msgs)
			if err != nil {
				log.WithError(err).Warn("unable to answer offer")
				return
			}
			log.Info("webrtc client connected")
			continue
		}

		if err := client.AddIceCandidate(string(msg)); err != nil {
			log.WithError(err).Warn("bad ice candidate")
		}
	}
}

// TelemetryHandler streams rig status at the telemetry frame rate until the
// client goes away.
func TelemetryHandler(w http.ResponseWriter, r *http.Request) {
	log := ENV.Log.WithField("component", "telemetry")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	// the read side only detects the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	frames, cancel := ENV.Rig.Subscribe()
	defer cancel()

	for {
		select {
		case <-gone:
			return
		case frame := <-frames:
			status := ENV.Rig.Status()
			status.Telemetry = frame

			conn.SetWriteDeadline(time.Now().Add(WS_WRITE_WAIT))
			if err := conn.WriteJSON(comms.NewStatePayload(status)); err != nil {
				log.WithError(err).Debug("telemetry client dropped")
				return
			}
		}
	}
}

// InputHandler accepts operator commands, one json Cmd per message. Errors
// are returned as text on the same connection.
func InputHandler(w http.ResponseWriter, r *http.Request) {
	log := ENV.Log.WithField("component", "input")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var cmd comms.Cmd
		if err := json.Unmarshal(msg, &cmd); err != nil {
			conn.WriteMessage(websocket.TextMessage, []byte("Error: invalid json"))
			continue
		}

		if err := ENV.Conductor.ProcessCommand(cmd); err != nil {
			conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Error: %v", err)))
		}
	}

	// release all inputs once the operator is gone
	ENV.Conductor.ProcessCommand(comms.Cmd{Cmd: "neutral"})
}
