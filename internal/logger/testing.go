package logger

import (
	"log/slog"
	"os"
)

// TestLevelEnv sets the level used by NewTestLogger, e.g. PRIMAL_TEST_LOG=debug.
const TestLevelEnv = "PRIMAL_TEST_LOG"

// NewTestLogger returns a quiet text logger for tests. Only warnings and
// errors reach stdout unless TestLevelEnv asks for more.
func NewTestLogger() *slog.Logger {
	return NewLogger(Config{
		Level:  ParseLevel(os.Getenv(TestLevelEnv), slog.LevelWarn),
		Format: "text",
		Output: os.Stdout,
	})
}
