// Package logging configures logrus for the service.
package logging

import (
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// ServiceFormatter stamps every entry with the service name and the unix
// time in milliseconds before handing it to the wrapped formatter.
type ServiceFormatter struct {
	Service string
	log.Formatter
}

func (f *ServiceFormatter) Format(e *log.Entry) ([]byte, error) {
	data := make(log.Fields, len(e.Data)+2)
	for k, v := range e.Data {
		data[k] = v
	}
	data["epochTimeMillis"] = e.Time.UnixNano() / int64(time.Millisecond)
	data["service"] = f.Service
	clone := *e
	clone.Data = data
	return f.Formatter.Format(&clone)
}

// Setup points the standard logrus logger at out with the given level and
// format. format is "json" or "text"; production always logs JSON.
func Setup(service, level, format, env string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	var inner log.Formatter = &log.TextFormatter{FullTimestamp: true}
	if format == "json" || env == "production" {
		inner = &log.JSONFormatter{DisableTimestamp: true}
	}
	log.SetOutput(out)
	log.SetFormatter(&ServiceFormatter{Service: service, Formatter: inner})
	log.SetLevel(ParseLevel(level))
}

// ParseLevel maps a configured level name onto logrus, defaulting to info
// for empty or unknown names.
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
