// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

// Package logutil provides the small leveled logger every hcnet package
// logs through, via a package-scoped instance named log.
package logutil

import (
	"log"
	"os"
	"strings"
)

// Logger is a leveled logger scoped to one package. Debug output is
// silent unless the package name appears in the HCNET_DEBUG
// environment variable (comma-separated, or "all").
type Logger struct {
	pkg   string
	debug bool
	std   *log.Logger
}

// New returns a Logger scoped to pkg, reading HCNET_DEBUG once.
func New(pkg string) *Logger {
	return &Logger{
		pkg:   pkg,
		debug: debugEnabled(pkg),
		std:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

func debugEnabled(pkg string) bool {
	v := os.Getenv("HCNET_DEBUG")
	if v == "" {
		return false
	}
	if v == "all" {
		return true
	}
	for _, part := range strings.Split(v, ",") {
		if strings.TrimSpace(part) == pkg {
			return true
		}
	}
	return false
}

func (l *Logger) Infoln(args ...any) {
	l.std.Println(append([]any{"INFO", "(" + l.pkg + ")"}, args...)...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf("INFO ("+l.pkg+") "+format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf("WARN ("+l.pkg+") "+format, args...)
}

func (l *Logger) Debugln(args ...any) {
	if !l.debug {
		return
	}
	l.std.Println(append([]any{"DEBUG", "(" + l.pkg + ")"}, args...)...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if !l.debug {
		return
	}
	l.std.Printf("DEBUG ("+l.pkg+") "+format, args...)
}

// IsDebug reports whether debug logging is enabled for this logger.
func (l *Logger) IsDebug() bool {
	return l.debug
}
