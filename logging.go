// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"os"

	"github.com/sirupsen/logrus"
)

// defaultLogger mirrors the teacher's pipe.go default: a warn-level
// logrus.Logger writing text-formatted entries to stderr. The Worker and
// every Recorder log through it; Install takes no logger of its own.
var defaultLogger = &logrus.Logger{
	Out:       os.Stderr,
	Formatter: new(logrus.TextFormatter),
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.WarnLevel,
}
