// Copyright (c) 2017-2018 Alexander Eichhorn
//
// Licensed under the Apache License, Version 2.0 (the "License"): you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package xmp

import (
	"log"
	"strconv"
	"strings"
)

type LogLevelType int

const (
	LogLevelInvalid LogLevelType = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarning
	LogLevelError
)

// Logger lets callers route toolkit diagnostics (duplicate-property merge
// warnings, handler details) into their own logging stack.
type Logger interface {
	Error(v ...interface{})
	Errorf(s string, v ...interface{})
	Warn(v ...interface{})
	Warnf(s string, v ...interface{})
	Info(v ...interface{})
	Infof(s string, v ...interface{})
	Debug(v ...interface{})
	Debugf(s string, v ...interface{})
}

func (l LogLevelType) Prefix() string {
	switch l {
	case LogLevelDebug:
		return "Debug:"
	case LogLevelInfo:
		return "Info:"
	case LogLevelWarning:
		return "Warn:"
	case LogLevelError:
		return "Error:"
	default:
		return strconv.Itoa(int(l))
	}
}

type stdLogger struct{}

var (
	logLevel LogLevelType = LogLevelWarning
	Log      Logger       = stdLogger{}
)

func LogLevel() LogLevelType {
	return logLevel
}

func SetLogLevel(l LogLevelType) {
	logLevel = l
}

func SetLogger(v Logger) {
	Log = v
}

func output(lvl LogLevelType, v ...interface{}) {
	m := append(make([]interface{}, 0, len(v)+1), lvl.Prefix())
	m = append(m, v...)
	log.Println(m...)
}

func outputf(lvl LogLevelType, s string, v ...interface{}) {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	m := append(make([]interface{}, 0, len(v)+1), lvl.Prefix())
	m = append(m, v...)
	log.Printf("%s "+s, m...)
}

func (stdLogger) Error(v ...interface{}) {
	if logLevel > LogLevelError {
		return
	}
	output(LogLevelError, v...)
}

func (stdLogger) Errorf(s string, v ...interface{}) {
	if logLevel > LogLevelError {
		return
	}
	outputf(LogLevelError, s, v...)
}

func (stdLogger) Warn(v ...interface{}) {
	if logLevel > LogLevelWarning {
		return
	}
	output(LogLevelWarning, v...)
}

func (stdLogger) Warnf(s string, v ...interface{}) {
	if logLevel > LogLevelWarning {
		return
	}
	outputf(LogLevelWarning, s, v...)
}

func (stdLogger) Info(v ...interface{}) {
	if logLevel > LogLevelInfo {
		return
	}
	output(LogLevelInfo, v...)
}

func (stdLogger) Infof(s string, v ...interface{}) {
	if logLevel > LogLevelInfo {
		return
	}
	outputf(LogLevelInfo, s, v...)
}

func (stdLogger) Debug(v ...interface{}) {
	if logLevel > LogLevelDebug {
		return
	}
	output(LogLevelDebug, v...)
}

func (stdLogger) Debugf(s string, v ...interface{}) {
	if logLevel > LogLevelDebug {
		return
	}
	outputf(LogLevelDebug, s, v...)
}
