package mqtt

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/packpilot/internal/events"
	"github.com/nerrad567/packpilot/internal/infrastructure/config"
)

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "packpilot/system/status"},
		{"events", topics.Events("emulator-5554"), "packpilot/events/emulator-5554"},
		{"events sanitised", topics.Events("127.0.0.1:16384"), "packpilot/events/127.0.0.1_16384"},
		{"result", topics.Result("2"), "packpilot/result/2"},
		{"stop", topics.Stop(), "packpilot/command/stop"},
		{"stop device", topics.StopDevice("a/b"), "packpilot/command/stop/a_b"},
		{"all stops", topics.AllStops(), "packpilot/command/stop/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDeviceFromStop(t *testing.T) {
	topics := Topics{}
	if got := topics.DeviceFromStop(topics.Stop()); got != "" {
		t.Errorf("DeviceFromStop(global) = %q, want empty", got)
	}
	if got := topics.DeviceFromStop(topics.StopDevice("emulator-5556")); got != "emulator-5556" {
		t.Errorf("DeviceFromStop(device) = %q, want emulator-5556", got)
	}
	if got := topics.DeviceFromStop("packpilot/events/1"); got != "" {
		t.Errorf("DeviceFromStop(unrelated) = %q, want empty", got)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal([]byte(statusPayload("pp", "offline", "graceful_shutdown")), &msg); err != nil {
		t.Fatalf("statusPayload is not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.ClientID != "pp" || msg.Reason != "graceful_shutdown" {
		t.Errorf("statusPayload = %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339", msg.Timestamp)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "broker", Port: 8883, TLS: true, ClientID: "pp"},
		Auth:   config.MQTTAuthConfig{Username: "u", Password: "p"},
		QoS:    1,
	}
	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker:8883" {
		t.Errorf("Servers = %v, want ssl://broker:8883", opts.Servers)
	}
	if opts.Username != "u" || opts.ClientID != "pp" {
		t.Errorf("Username/ClientID = %q/%q", opts.Username, opts.ClientID)
	}
	if opts.WillTopic != "packpilot/system/status" || !opts.WillRetained {
		t.Errorf("will = %q retained=%v", opts.WillTopic, opts.WillRetained)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set for TLS broker")
	}
}

func TestClient_ValidationWithoutConnection(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription), logger: noopLogger{}}

	if err := c.Publish("", nil, 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(empty) = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("x", nil, 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish(qos 3) = %v, want ErrInvalidQoS", err)
	}
	if err := c.Publish("x", make([]byte, maxPayloadSize+1), 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish(huge) = %v, want ErrPublishFailed", err)
	}
	if err := c.Publish("x", []byte("{}"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish(disconnected) = %v, want ErrNotConnected", err)
	}
	if err := c.PublishJSON("x", make(chan int), 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) = %v, want ErrPublishFailed", err)
	}
	if err := c.Subscribe("x", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("x", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) = %v, want ErrNotConnected", err)
	}
	if c.HasSubscription("x") {
		t.Error("failed Subscribe left a tracked subscription")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Info(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func TestDispatch_RecoversAndLogs(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{subscriptions: make(map[string]subscription), logger: logger}

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)

	if len(logger.errs) != 1 || len(logger.warns) != 1 {
		t.Errorf("errs=%v warns=%v, want one of each", logger.errs, logger.warns)
	}
}

type publishCall struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (f *fakePublisher) PublishJSON(topic string, v any, _ byte, retained bool) error {
	b, _ := json.Marshal(v)
	f.calls = append(f.calls, publishCall{topic: topic, payload: b, retained: retained})
	return f.err
}

func TestEventSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewEventSink(pub, 1)

	sink.Handle(events.Event{Type: events.StepStarted, Device: "1", Step: "opening"})
	sink.Handle(events.Event{
		Type:    events.TaskFinished,
		Device:  "1",
		State:   "success",
		Attempt: 2,
		Payload: map[string]string{"nickname": "Ash", "friend_id": "ABC123"},
	})

	if len(pub.calls) != 3 {
		t.Fatalf("published %d messages, want 3", len(pub.calls))
	}
	if pub.calls[0].topic != "packpilot/events/1" || pub.calls[0].retained {
		t.Errorf("event publish = %+v", pub.calls[0])
	}
	last := pub.calls[2]
	if last.topic != "packpilot/result/1" || !last.retained {
		t.Errorf("result publish = %+v", last)
	}
	if !strings.Contains(string(last.payload), `"friend_id":"ABC123"`) {
		t.Errorf("result payload = %s, want friend_id", last.payload)
	}
}

func TestEventSink_LogsFailures(t *testing.T) {
	logger := &recordingLogger{}
	sink := NewEventSink(&fakePublisher{err: ErrNotConnected}, 0)
	sink.SetLogger(logger)

	sink.Handle(events.Event{Type: events.TaskFinished, Device: "1"})

	if len(logger.warns) != 2 {
		t.Errorf("warnings = %v, want 2", logger.warns)
	}
}

// TestConnect_Broker needs a reachable broker; set PACKPILOT_TEST_MQTT_HOST
// to run it.
func TestConnect_Broker(t *testing.T) {
	host := os.Getenv("PACKPILOT_TEST_MQTT_HOST")
	if host == "" {
		t.Skip("PACKPILOT_TEST_MQTT_HOST not set")
	}

	client, err := Connect(config.MQTTConfig{
		Broker:    config.MQTTBrokerConfig{Host: host, Port: 1883, ClientID: "packpilot-test"},
		QoS:       1,
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 5},
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	stopped := make(chan string, 1)
	if err := client.OnStop(func(device string) { stopped <- device }); err != nil {
		t.Fatalf("OnStop() error = %v", err)
	}
	if err := client.Publish(Topics{}.StopDevice("7"), []byte("{}"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-stopped:
		if got != "7" {
			t.Errorf("stop device = %q, want 7", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stop command not received")
	}
}
