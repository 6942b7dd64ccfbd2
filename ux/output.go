// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ux

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Output is where progress lines are printed.
var Output io.Writer = os.Stdout

// Print writes a progress line for the operator and logs it.
func Print(log *zap.Logger, msg string, args ...interface{}) {
	s := fmt.Sprintf(msg, args...)
	fmt.Fprintln(Output, s)
	log.Info(s)
}
