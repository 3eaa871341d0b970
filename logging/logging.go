package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// Level is shared by every logger from New.
var Level = new(slog.LevelVar)

func New() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: Level}))
}
