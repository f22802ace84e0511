// Package logging centralizes the structured logger every component in
// the storage core pulls a scoped entry from, the way
// zhukovaskychina-xmysql-server/logger wraps logrus for its innodb layer.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var root = newRoot()

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the verbosity of every component logger.
func SetLevel(level logrus.Level) {
	root.SetLevel(level)
}

// For returns a logger scoped to a single component, e.g. "bufferpool" or
// "lockmanager", mirroring the "[BufferPool] ..." prefix convention the
// teacher used with fmt.Printf.
func For(component string) *logrus.Entry {
	return root.WithField("component", component)
}
