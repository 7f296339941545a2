// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"github.com/sirupsen/logrus"
)

var (
	logger logrus.Ext1FieldLogger = logrus.New()
)

func SetLogger(loggerInstance logrus.Ext1FieldLogger) {

	logger = loggerInstance
}
