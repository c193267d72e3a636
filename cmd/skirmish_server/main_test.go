package main

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/dumfing/skirmish/internal/logging"
)

func TestMain(m *testing.M) {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(io.Discard, "error", nil)
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	os.Exit(m.Run())
}
