// Package logging contains the structured logger used across remycc and the
// access log wrapper for the tools' HTTP endpoints.
package logging

import (
	golog "log"
	"net/http"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/gorilla/handlers"
)

// Logger emits JSON structured logs on the standard error. Per-ACK controller
// state is logged at debug level, so production runs should raise the level
// with SetLevel.
var Logger = log.Logger{
	Handler: json.New(os.Stderr),
	Level:   log.InfoLevel,
}

// SetLevel changes the level of Logger. Valid names are the apex/log level
// names: debug, info, warn, error, fatal.
func SetLevel(name string) error {
	level, err := log.ParseLevel(name)
	if err != nil {
		return err
	}
	Logger.Level = level
	return nil
}

// Flow returns an entry tagged with the flow identifier.
func Flow(id string) *log.Entry {
	return Logger.WithField("flow", id)
}

// MakeAccessLogHandler wraps |handler| with another handler that logs
// access to each resource on the standard output, in the common log format.
func MakeAccessLogHandler(handler http.Handler) http.Handler {
	return handlers.LoggingHandler(golog.Writer(), handler)
}
