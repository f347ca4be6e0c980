package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

// MockSceneJSON is a complete, valid scene returned by the mock by default.
const MockSceneJSON = `{"chapter":"PROLOGUE","layer":"CANON","speaker":"나 (베르)","portrait":"neutral",` +
	`"text":"낯선 천장이 보였다. 베르는 이곳이 자신의 이야기가 아니라는 것을 알았다.",` +
	`"choices":[` +
	`{"id":"A","tag":"📜","label":"창밖을 본다","delta":{"canonity":1,"corruption":0,"sanity":0,"trust":0,"fate":0}},` +
	`{"id":"B","tag":"⚠️","label":"문을 연다","delta":{"canonity":0,"corruption":1,"sanity":0,"trust":0,"fate":0}},` +
	`{"id":"C","tag":"🩸","label":"거울을 깬다","delta":{"canonity":-1,"corruption":2,"sanity":-1,"trust":0,"fate":1}},` +
	`{"id":"D","tag":"❓","label":"다시 잠든다","delta":{"canonity":0,"corruption":0,"sanity":1,"trust":0,"fate":1}}],` +
	`"flags":["woke_up"],"ending":null}`

// MockGenerator is a mock implementation of SceneGenerator for testing
type MockGenerator struct {
	GenerateSceneFunc func(ctx context.Context, messages []turn.Message) (string, error)

	// Track calls for testing
	GenerateSceneCalls []GenerateSceneCall

	mu sync.Mutex // protects all fields above
}

type GenerateSceneCall struct {
	Messages []turn.Message
}

var _ SceneGenerator = (*MockGenerator)(nil)

// NewMockGenerator creates a new mock generator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		GenerateSceneCalls: make([]GenerateSceneCall, 0),
	}
}

func (m *MockGenerator) Provider() string  { return "mock" }
func (m *MockGenerator) ModelName() string { return "mock-model" }

// GenerateScene records the call and returns MockSceneJSON unless
// GenerateSceneFunc is set.
func (m *MockGenerator) GenerateScene(ctx context.Context, messages []turn.Message) (string, error) {
	m.mu.Lock()
	m.GenerateSceneCalls = append(m.GenerateSceneCalls, GenerateSceneCall{Messages: messages})
	fn := m.GenerateSceneFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	return MockSceneJSON, nil
}

// Calls returns a copy of the recorded calls
func (m *MockGenerator) Calls() []GenerateSceneCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]GenerateSceneCall, len(m.GenerateSceneCalls))
	copy(calls, m.GenerateSceneCalls)
	return calls
}

// Reset clears all call tracking
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GenerateSceneCalls = make([]GenerateSceneCall, 0)
	m.GenerateSceneFunc = nil
}
