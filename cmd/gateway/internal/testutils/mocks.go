package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/feed"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-watchlist/pkg/models"
)

var ErrClosed = errors.New("mock session closed")

// MockSession simulates a connected viewer
type MockSession struct {
	IDVal    string
	RawBytes []string // Stores every pushed payload
	Closed   bool
	SendErr  error // returned instead of recording when set
	Mu       sync.Mutex
}

func NewMockSession(id string) *MockSession {
	return &MockSession{IDVal: id}
}

func (m *MockSession) ID() string { return m.IDVal }

func (m *MockSession) SendBytes(b []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	if m.Closed {
		return ErrClosed
	}
	m.RawBytes = append(m.RawBytes, string(b))
	return nil
}

func (m *MockSession) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockSession) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.RawBytes)
}

// Snapshots decodes every payload received so far.
func (m *MockSession) Snapshots(t *testing.T) []models.Snapshot {
	t.Helper()
	m.Mu.Lock()
	defer m.Mu.Unlock()

	out := make([]models.Snapshot, 0, len(m.RawBytes))
	for _, raw := range m.RawBytes {
		var s models.Snapshot
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			t.Fatalf("session %s received invalid JSON %q: %v", m.IDVal, raw, err)
		}
		out = append(out, s)
	}
	return out
}

// Last decodes the most recent payload, failing the test if there is none.
func (m *MockSession) Last(t *testing.T) models.Snapshot {
	t.Helper()
	snaps := m.Snapshots(t)
	if len(snaps) == 0 {
		t.Fatalf("session %s received nothing", m.IDVal)
	}
	return snaps[len(snaps)-1]
}

// MockSymbolStore is an in-memory SymbolStore with failure injection
type MockSymbolStore struct {
	Symbols   map[string]bool
	AddErr    error
	RemoveErr error
	ListErr   error
	ListCalls int
	Mu        sync.Mutex
}

var _ repository.SymbolStore = (*MockSymbolStore)(nil)

func NewMockSymbolStore(symbols ...string) *MockSymbolStore {
	m := &MockSymbolStore{Symbols: make(map[string]bool)}
	for _, s := range symbols {
		m.Symbols[s] = true
	}
	return m
}

func (m *MockSymbolStore) AddSymbols(ctx context.Context, symbols []string) ([]repository.AddOutcome, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.AddErr != nil {
		return nil, m.AddErr
	}
	out := make([]repository.AddOutcome, len(symbols))
	for i, s := range symbols {
		out[i] = repository.AddOutcome{Symbol: s, Added: !m.Symbols[s]}
		m.Symbols[s] = true
	}
	return out, nil
}

func (m *MockSymbolStore) RemoveSymbol(ctx context.Context, symbol string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	if !m.Symbols[symbol] {
		return repository.ErrNotFound
	}
	delete(m.Symbols, symbol)
	return nil
}

func (m *MockSymbolStore) ListSymbols(ctx context.Context) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]string, 0, len(m.Symbols))
	for s := range m.Symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockSymbolStore) SetListErr(err error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ListErr = err
}

func (m *MockSymbolStore) Close() error { return nil }

// MockBroadcaster counts out-of-band broadcasts requested by the API
type MockBroadcaster struct {
	Calls   int
	Err     error
	CtxErrs []error // ctx.Err() seen by each call
	Mu      sync.Mutex
}

func (m *MockBroadcaster) BroadcastNow(ctx context.Context) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	m.CtxErrs = append(m.CtxErrs, ctx.Err())
	return m.Err
}

func (m *MockBroadcaster) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Calls
}

// MockSink records snapshot payloads handed to sinks
type MockSink struct {
	Payloads []string
	Err      error
	Mu       sync.Mutex
}

func (m *MockSink) Publish(ctx context.Context, payload []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Payloads = append(m.Payloads, string(payload))
	return m.Err
}

func (m *MockSink) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Payloads)
}

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Closed     bool
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

type MockKafkaConn struct {
	CreatedTopics []kafka.TopicConfig
	CreateErr     error
	Closed        bool
	Mu            sync.Mutex
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092, ID: 1}, nil
}

func (m *MockKafkaConn) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.CreatedTopics = append(m.CreatedTopics, topics...)
	return nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	Dialed  []string
	Err     error
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (feed.KafkaConn, error) {
	m.Dialed = append(m.Dialed, address)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}

// MockRand replays Values in order, wrapping around; Default is used when empty.
type MockRand struct {
	Values  []float64
	Default float64
	idx     int
	Mu      sync.Mutex
}

func (m *MockRand) Float64() float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Values) == 0 {
		return m.Default
	}
	v := m.Values[m.idx%len(m.Values)]
	m.idx++
	return v
}

type MockClock struct {
	CurrentTime time.Time
	Mu          sync.Mutex
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}
