// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// GetLevel parses a --log-level flag value into a logrus level.
func GetLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.DebugLevel, fmt.Errorf("invalid log level: %v", level)
	}
}

// GetFormatter parses a --log-format flag value into a logrus formatter.
func GetFormatter(format, timestampFormat string) logrus.Formatter {
	switch format {
	case "text":
		return &prettyFormatter{}
	case "json-pretty":
		return &logrus.JSONFormatter{PrettyPrint: true, TimestampFormat: timestampFormat}
	default:
		return &logrus.JSONFormatter{TimestampFormat: timestampFormat}
	}
}

// prettyFormatter is a simpler, easier-to-read text formatter than logrus's
// default, returned by GetFormatter for "text". runtime.NewRuntime does not
// call GetFormatter: `--log-format text` keeps logrus's default text
// formatter.
type prettyFormatter struct{}

func (p *prettyFormatter) Format(e *logrus.Entry) ([]byte, error) {
	b := new(bytes.Buffer)
	fmt.Fprintf(b, "[%s] %s\n", strings.ToUpper(e.Level.String()), e.Message)
	for k, v := range e.Data {
		var sv string
		if s, ok := v.(string); ok {
			sv = s
		} else if bs, err := json.Marshal(v); err == nil {
			sv = string(bs)
		} else {
			sv = fmt.Sprintf("%v", v)
		}
		fmt.Fprintf(b, "  %s = %s\n", k, sv)
	}
	return b.Bytes(), nil
}
