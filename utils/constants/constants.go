// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package constants

const (
	IPv4Lookback = "127.0.0.1"
	// AllychainAccountTag prefixes the sovereign account of an allychain.
	AllychainAccountTag = "ally"
)
