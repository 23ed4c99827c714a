package app

import (
	"fmt"
	"strings"

	coremon "github.com/kilianp07/flexplan/core/monitoring"
	"github.com/kilianp07/flexplan/infra/logger"
)

// cronLogger adapts the service logger to cron.Logger. Errors, recovered
// panics included, are sent to monitoring.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("cron %s%s", msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorf("cron %s%s: %v", msg, pairs(keysAndValues), err)
	coremon.CaptureException(err, map[string]string{"module": "cron"})
}

func pairs(kv []interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
