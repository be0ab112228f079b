package envmodules

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// testLogger routes engine logs to the test output.
type testLogger struct {
	t *testing.T
}

func newTestLogger(t *testing.T) *testLogger {
	return &testLogger{t: t}
}

func (l *testLogger) Info(msg string, args ...any)  { l.t.Log(fmt.Sprintf("[INFO] %s", msg), args) }
func (l *testLogger) Error(msg string, args ...any) { l.t.Log(fmt.Sprintf("[ERROR] %s", msg), args) }
func (l *testLogger) Warn(msg string, args ...any)  { l.t.Log(fmt.Sprintf("[WARN] %s", msg), args) }
func (l *testLogger) Debug(msg string, args ...any) { l.t.Log(fmt.Sprintf("[DEBUG] %s", msg), args) }

// MockLogger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Debug("resolving", "module", "gcc-12.2-x86_64")
	logger.Info("loaded", "module", "gcc-12.2-x86_64")
	logger.Warn("skipped", "dependency", "cuda")
	logger.Error("failed", "error", "boom")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG msg=resolving module=gcc-12.2-x86_64")
	assert.Contains(t, out, "level=INFO msg=loaded")
	assert.Contains(t, out, "level=WARN msg=skipped dependency=cuda")
	assert.Contains(t, out, "level=ERROR msg=failed error=boom")
}

func TestSlogLogger_NilFallsBackToDefault(t *testing.T) {
	logger := NewSlogLogger(nil)
	assert.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Debug("quiet") })
}

func TestMockLoggerReceivesGraphWarnings(t *testing.T) {
	logger := new(MockLogger)
	logger.On("Debug", mock.Anything, mock.Anything).Return()
	logger.On("Info", mock.Anything, mock.Anything).Return()
	logger.On("Error", mock.Anything, mock.Anything).Return()
	logger.On("Warn", "Skipping optional dependency", mock.Anything).Return().Once()

	catalog := NewCatalog()
	mustRegister(t, catalog, NewModuleDescriptor("app", "1.0", "",
		WithModuleType(ModuleTypeMeta),
		WithOptionalDependency("missing"),
	))

	graph, err := NewDependencyGraph(catalog, WithGraphLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	_, err = graph.LoadByName("app-1.0", true)
	assert.NoError(t, err)
	logger.AssertExpectations(t)
}
