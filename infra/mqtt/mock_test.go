package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type publishCall struct {
	topic   string
	qos     byte
	payload []byte
}

type mockClient struct {
	mu           sync.Mutex
	opts         *paho.ClientOptions
	connectErrs  []error
	publishErrs  []error
	publishHang  bool
	subscribeErr error
	connects     int
	disconnects  int
	published    []publishCall
	subTopic     string
	subscribes   int
	handler      paho.MessageHandler
}

func (m *mockClient) IsConnected() bool      { return true }
func (m *mockClient) IsConnectionOpen() bool { return true }

func (m *mockClient) Connect() paho.Token {
	m.mu.Lock()
	m.connects++
	var err error
	if len(m.connectErrs) > 0 {
		err, m.connectErrs = m.connectErrs[0], m.connectErrs[1:]
	}
	m.mu.Unlock()
	if err != nil {
		return doneToken(err)
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		go m.opts.OnConnect(m)
	}
	return doneToken(nil)
}

func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.disconnects++
	m.mu.Unlock()
}

func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := payload.([]byte)
	m.published = append(m.published, publishCall{topic: topic, qos: qos, payload: data})
	if m.publishHang {
		return &hangToken{done: make(chan struct{})}
	}
	var err error
	if len(m.publishErrs) > 0 {
		err, m.publishErrs = m.publishErrs[0], m.publishErrs[1:]
	}
	return doneToken(err)
}

func (m *mockClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subTopic = topic
	m.subscribes++
	if m.subscribeErr != nil {
		return doneToken(m.subscribeErr)
	}
	m.handler = cb
	return doneToken(nil)
}

func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return doneToken(errors.New("not supported"))
}
func (m *mockClient) Unsubscribe(...string) paho.Token       { return doneToken(nil) }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

// deliver pushes a message through the registered handler the way the paho
// router does.
func (m *mockClient) deliver(topic string, payload []byte) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(m, &mockMessage{topic: topic, payload: payload})
	}
}

func (m *mockClient) counts() (connects, disconnects int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.disconnects
}

func (m *mockClient) publishes() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishCall(nil), m.published...)
}

type mockToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *mockToken {
	ch := make(chan struct{})
	close(ch)
	return &mockToken{err: err, done: ch}
}

func (t *mockToken) Wait() bool                     { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }
func (t *mockToken) Done() <-chan struct{}          { return t.done }
func (t *mockToken) Error() error                   { return t.err }

type hangToken struct{ done chan struct{} }

func (t *hangToken) Wait() bool                     { <-t.done; return true }
func (t *hangToken) WaitTimeout(time.Duration) bool { return false }
func (t *hangToken) Done() <-chan struct{}          { return t.done }
func (t *hangToken) Error() error                   { return nil }

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

// useMock installs mc as the client factory for the duration of the test.
func useMock(t *testing.T, mc *mockClient) {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient {
		mc.mu.Lock()
		mc.opts = o
		mc.mu.Unlock()
		return mc
	}
	t.Cleanup(func() { newMQTTClient = orig })
}
