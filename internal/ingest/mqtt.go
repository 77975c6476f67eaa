package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"edge-viewer-go/internal/types"
)

// StreamMQTT subscribes to topic and returns the frames published there.
// Messages are JSON with the same fields as the ZMQ stream; the image
// must be a string. Frames are dropped while the consumer is behind.
func StreamMQTT(ctx context.Context, broker, topic, clientID string, logEvery int, recorder RawRecorder) (<-chan types.FrameMessage, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	out := make(chan types.FrameMessage, 16)
	var (
		mu     sync.RWMutex
		closed bool
	)

	handler := func(_ mqtt.Client, m mqtt.Message) {
		payload := m.Payload()
		if recorder != nil {
			if err := recorder.Record(payload); err != nil {
				logEveryN(logEvery, "raw log write failed: %v", err)
			}
		}
		frame, ok := decodeJSONMessage(payload, logEvery)
		if !ok {
			return
		}
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			return
		}
		select {
		case out <- frame:
		default:
			logEveryN(logEvery, "mqtt consumer behind, dropped frame %d", frame.FrameID)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		log.Printf("mqtt connected to %s, subscribing to %s", broker, topic)
		token := c.Subscribe(topic, 1, handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("mqtt subscribe failed: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

func decodeJSONMessage(msg []byte, logEvery int) (types.FrameMessage, bool) {
	var payload map[string]any
	if err := json.Unmarshal(msg, &payload); err != nil {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest JSON decode error: %v", err)
		return types.FrameMessage{}, false
	}
	if _, ok := payload["pixels"]; ok {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest JSON messages cannot carry raw pixels")
		return types.FrameMessage{}, false
	}
	return frameFromMap(payload, logEvery)
}
