// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// Setup sets the level and the text or json formatter of the standard
// logger and sends its output to w.
func Setup(w io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	switch format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	log.SetLevel(lvl)
	log.SetOutput(w)
	return nil
}
