package outbox

import (
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

func TableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}

// retryDelay doubles from one second per failed attempt and is capped at
// limit. The shift is bounded so large attempt counts cannot overflow.
func retryDelay(attempts int, limit time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	shift := attempts - 1
	if shift > 30 {
		return limit
	}
	d := time.Second << shift
	if d > limit {
		return limit
	}
	return d
}

// jitter is uniform in [0, limit].
func jitter(r *rand.Rand, limit time.Duration) time.Duration {
	if r == nil || limit <= 0 {
		return 0
	}
	return time.Duration(r.Int63n(int64(limit) + 1)) //nolint:gosec
}

// clip shortens the error text to at most n bytes without splitting a rune.
func clip(err error, n int) string {
	if err == nil || n <= 0 {
		return ""
	}
	s := err.Error()
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for s != "" && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func silentLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
