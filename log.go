package selkie

import "github.com/sirupsen/logrus"

var log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "selkie")

// SetLogger replaces the package logger. Call it before starting a
// selector.
func SetLogger(entry *logrus.Entry) {
	if entry != nil {
		log = entry
	}
}
