package testutil

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
)

// NewLogger returns a logger writing through the testing.T. Set DEBUG=1 for
// debug level logs and DETAILED_ERRORS=1 for error stack details.
func NewLogger(t *testing.T) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug, _ := strconv.ParseBool(os.Getenv("DEBUG")); debug {
		level = zerolog.DebugLevel
	}

	if detailedErrors, _ := strconv.ParseBool(os.Getenv("DETAILED_ERRORS")); detailedErrors {
		zerolog.ErrorMarshalFunc = errors.ErrorMarshalFunc
	}

	cw := zerolog.ConsoleWriter{
		Out:                 zerolog.TestWriter{T: t, Frame: 6},
		TimeFormat:          time.RFC3339Nano,
		FormatErrFieldValue: errors.FormatErrFieldValue,
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.New(cw).With().Timestamp().Stack().Caller().Logger().Level(level).Output(cw)
}

type helperT interface {
	Helper()
}
