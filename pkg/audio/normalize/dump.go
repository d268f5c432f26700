package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/automuter/pkg/storage"
)

// StoreDump returns a DumpFunc that writes failed inputs to fs under
// "decode-errors/<utc timestamp>_<id>.<format>". Write failures are logged
// and otherwise ignored.
func StoreDump(fs storage.FileStore, logger *slog.Logger) DumpFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, data []byte, format string, cause error) {
		if format == "" {
			format = "bin"
		}
		name := fmt.Sprintf("decode-errors/%s_%s.%s",
			time.Now().UTC().Format("20060102T150405.000"),
			uuid.NewString()[:8],
			format)
		if err := storage.WriteFile(ctx, fs, name, data); err != nil {
			logger.Warn("decode dump failed", "path", name, "error", err)
			return
		}
		logger.Info("dumped undecodable audio", "path", name, "bytes", len(data), "cause", cause)
	}
}
