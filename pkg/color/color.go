// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package color

import (
	"fmt"
	"io"

	formatter "github.com/onsi/ginkgo/v2/formatter"
)

// Where colored output goes. Replaced in tests.
var (
	Stdout io.Writer = formatter.ColorableStdOut
	Stderr io.Writer = formatter.ColorableStdErr
)

// Outputs to stdout.
//
// e.g.,
//
//	Outf("{{green}}{{bold}}hi there %q{{/}}", "aa")
//	Outf("{{magenta}}{{bold}}hi therea{{/}} {{cyan}}{{underline}}b{{/}}")
//
// ref.
// https://github.com/onsi/ginkgo/blob/v2.0.0/formatter/formatter.go#L52-L73
func Outf(format string, args ...interface{}) {
	fmt.Fprint(Stdout, formatter.F(format, args...))
}

// Outputs to stderr.
func Errf(format string, args ...interface{}) {
	fmt.Fprint(Stderr, formatter.F(format, args...))
}

func Greenf(format string, args ...interface{}) {
	Outf(wrap("green", format), args...)
}

// Redf outputs to stderr.
func Redf(format string, args ...interface{}) {
	Errf(wrap("red", format), args...)
}

// wrap colors [format] without interpreting its verbs.
func wrap(color string, format string) string {
	return "{{" + color + "}}" + format + "{{/}}"
}
