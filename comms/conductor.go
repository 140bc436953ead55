package comms

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/CodedInternet/goecat/onboard"
	"github.com/CodedInternet/goecat/onboard/engine"
	"github.com/CodedInternet/goecat/onboard/input"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ERR_UNKNOWN_CMD = errors.New("unknown command")
	ERR_NO_JOY      = errors.New("joy command without joy data")
)

// Cmd is a single operator command as received from any client.
type Cmd struct {
	Cmd   string
	Name  string
	Value float64
	// haptic axis values
	Values []float64 `json:",omitempty"`
	Joy    *input.Joy `json:",omitempty"`
}

// Device is the rig as seen by the operator transports.
type Device interface {
	onboard.Device
	Subscribe() (<-chan *engine.Telemetry, func())
}

type ConductorInterface interface {
	ProcessCommand(cmd Cmd) error
}

// Conductor routes operator commands to the rig and streams its telemetry
// to the connected clients.
type Conductor struct {
	Device     Device
	Supervisor *Supervisor
	Log        logrus.FieldLogger

	mu      sync.Mutex
	clients []*WebRTCClient
}

func (c *Conductor) log() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger().WithField("component", "conductor")
	}
	return c.Log
}

func (c *Conductor) ProcessCommand(cmd Cmd) (err error) {
	switch cmd.Cmd {
	case "transition":
		t, ok := lifecycle.ParseTransition(cmd.Name)
		if !ok {
			return fmt.Errorf("unknown transition %q", cmd.Name)
		}
		return c.Device.Trigger(t)

	case "button":
		if c.Supervisor == nil {
			return ERR_UNKNOWN_CMD
		}
		return c.Supervisor.Press(GuiButton(cmd.Name))

	case "estop":
		c.Device.SetEmergency(cmd.Value != 0)

	case "inhibit":
		c.Device.SetInhibit(cmd.Value != 0)

	case "joy":
		if cmd.Joy == nil {
			return ERR_NO_JOY
		}
		c.Device.ApplyInput(func(s *input.State) {
			s.ApplyJoy(*cmd.Joy)
		})

	case "haptic":
		if len(cmd.Values) < input.HAPTIC_AXES {
			return fmt.Errorf("haptic command needs %d values, got %d", input.HAPTIC_AXES, len(cmd.Values))
		}
		c.Device.ApplyInput(func(s *input.State) {
			err = s.ApplyHaptic(cmd.Values)
		})

	case "axis":
		a, err := input.ParseAxis(cmd.Name)
		if err != nil {
			return err
		}
		c.Device.ApplyInput(func(s *input.State) {
			s.Axes[a] = mgl64.Clamp(cmd.Value, -1, 1)
		})

	case "press":
		b, err := input.ParseButton(cmd.Name)
		if err != nil {
			return err
		}
		c.Device.ApplyInput(func(s *input.State) {
			s.Press(b, cmd.Value != 0)
		})

	case "neutral":
		c.Device.ApplyInput(func(s *input.State) {
			*s = input.State{}
		})

	default:
		return errors.Wrap(ERR_UNKNOWN_CMD, cmd.Cmd)
	}

	return
}

func (c *Conductor) addClient(client *WebRTCClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = append(c.clients, client)
}

func (c *Conductor) removeClient(client *WebRTCClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cl := range c.clients {
		if cl == client {
			c.clients = append(c.clients[:i], c.clients[i+1:]...)
			return
		}
	}
}

// UpdateClients pushes every telemetry frame to the open data channels
// until done is closed.
func (c *Conductor) UpdateClients(done <-chan struct{}) {
	frames, cancel := c.Device.Subscribe()
	defer cancel()

	for {
		var frame *engine.Telemetry
		select {
		case <-done:
			return
		case frame = <-frames:
		}

		status := c.Device.Status()
		status.Telemetry = frame
		msg, err := json.Marshal(NewStatePayload(status))
		if err != nil {
			c.log().WithError(err).Error("unable to encode telemetry")
			continue
		}

		c.mu.Lock()
		clients := append([]*WebRTCClient(nil), c.clients...)
		c.mu.Unlock()

		for _, client := range clients {
			if err := client.SendText(msg); err != nil {
				c.log().WithError(err).Debug("dropping telemetry frame")
			}
		}
	}
}
