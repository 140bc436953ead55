package comms

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v2"
)

var (
	ERR_CHANNEL_CLOSED = errors.New("data channel is not open")
	ERR_NOT_AN_OFFER   = errors.New("SDP is not an offer")
)

var ICE_SERVERS = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// WebRTCClient is one operator connected over data channels: "data"
// carries telemetry out, "command" carries commands in.
type WebRTCClient struct {
	pc        *webrtc.PeerConnection
	conductor ConductorInterface

	mu     sync.Mutex
	tx, rx *webrtc.DataChannel
	closed chan struct{}
	once   sync.Once
}

func NewWebRTCClient(
	sdp webrtc.SessionDescription,
	conductor ConductorInterface,
	signals chan<- string) (client *WebRTCClient, err error) {

	client = &WebRTCClient{
		conductor: conductor,
		closed:    make(chan struct{}),
	}

	s := webrtc.SettingEngine{}
	s.SetTrickle(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(s))

	client.pc, err = api.NewPeerConnection(webrtc.Configuration{ICEServers: ICE_SERVERS})
	if err != nil {
		return nil, err
	}

	client.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		msg, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		client.signal(signals, string(msg))
	})

	client.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			client.markClosed()
		}
	})

	client.pc.OnDataChannel(func(channel *webrtc.DataChannel) {
		client.mu.Lock()
		defer client.mu.Unlock()

		switch label := channel.Label(); label {
		case "data":
			client.tx = channel

		case "command":
			client.rx = channel
			client.rx.OnMessage(client.receiveMessage)

		default:
			channel.Close()
		}
	})

	if err = client.pc.SetRemoteDescription(sdp); err != nil {
		client.pc.Close()
		return nil, err
	}

	answer, err := client.pc.CreateAnswer(nil)
	if err != nil {
		client.pc.Close()
		return nil, err
	}
	if err = client.pc.SetLocalDescription(answer); err != nil {
		client.pc.Close()
		return nil, err
	}
	answerJson, err := json.Marshal(answer)
	if err != nil {
		client.pc.Close()
		return nil, err
	}
	go client.signal(signals, string(answerJson))

	return
}

func (client *WebRTCClient) AddIceCandidate(msg string) error {
	var ic webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(msg), &ic); err != nil {
		return errors.New("unable to deserialize ice msg")
	}
	return client.pc.AddICECandidate(ic)
}

// SendText writes msg to the telemetry channel if it is open.
func (client *WebRTCClient) SendText(msg []byte) error {
	client.mu.Lock()
	tx := client.tx
	client.mu.Unlock()

	if tx == nil || tx.ReadyState() != webrtc.DataChannelStateOpen {
		return ERR_CHANNEL_CLOSED
	}
	return tx.SendText(string(msg))
}

// Closed is closed once the peer connection has failed or been closed.
func (client *WebRTCClient) Closed() <-chan struct{} {
	return client.closed
}

func (client *WebRTCClient) Close() error {
	client.markClosed()
	return client.pc.Close()
}

// signal writes msg to signals, giving up once the client is closed.
func (client *WebRTCClient) signal(signals chan<- string, msg string) {
	select {
	case signals <- msg:
	case <-client.closed:
	}
}

func (client *WebRTCClient) markClosed() {
	client.once.Do(func() { close(client.closed) })
}

func (client *WebRTCClient) reply(text string) {
	client.mu.Lock()
	rx := client.rx
	client.mu.Unlock()
	if rx != nil {
		rx.SendText(text)
	}
}

func (client *WebRTCClient) receiveMessage(msg webrtc.DataChannelMessage) {
	var cmd Cmd
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		client.reply("Error: invalid json")
		return
	}

	if err := client.conductor.ProcessCommand(cmd); err != nil {
		client.reply(fmt.Sprintf("Error: %v", err))
	}
}

// ReceiveOffer answers an offer from a new client. Answers and ICE
// candidates are written to signals.
func (c *Conductor) ReceiveOffer(msg string, signals chan<- string) (client *WebRTCClient, err error) {
	var sdp webrtc.SessionDescription
	if err = json.Unmarshal([]byte(msg), &sdp); err != nil {
		return
	}

	if sdp.Type != webrtc.SDPTypeOffer {
		return nil, ERR_NOT_AN_OFFER
	}

	client, err = NewWebRTCClient(sdp, c, signals)
	if err != nil {
		return nil, err
	}
	c.addClient(client)

	go func() {
		<-client.Closed()
		c.removeClient(client)
		c.log().Info("webrtc client disconnected")
	}()

	return client, nil
}
