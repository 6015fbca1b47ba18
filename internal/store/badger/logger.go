package badger

import (
	"fmt"
	"log/slog"
	"strings"
)

// slogAdapter routes badger's printf-style logging into slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(clean(format, args))
}

func (a *slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(clean(format, args))
}

// Infof is logged at debug; badger is chatty during compaction.
func (a *slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(clean(format, args))
}

func (a *slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(clean(format, args))
}

func clean(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
