package local

import (
	"fmt"
	"strings"
)

// NodeOptions of a relay chain validator.
type NodeOptions struct {
	Bin      string
	Name     string
	WSPort   uint16
	RPCPort  uint16
	Port     uint16
	NodeKey  string
	Spec     string
	BasePath string
	Flags    []string
}

// CollatorOptions of a full allychain collator.
type CollatorOptions struct {
	Bin         string
	AllychainID string
	Name        string
	WSPort      uint16
	RPCPort     uint16
	Port        uint16
	NodeKey     string
	// Allychain spec path or chain name. Optional.
	Chain    string
	BasePath string
	// Flags before a `--` go to the collator,
	// flags after it to its embedded relay chain node.
	Flags []string
	// Set when the binary knows its own allychain id.
	SkipIDArg bool
	// Set when the allychain has a single collator.
	OnlyOneAllychainNode bool
	// Raw relay chain spec given to the embedded relay chain node.
	RelaySpec string
}

// SimpleCollatorOptions of a collator supporting one implicit chain.
type SimpleCollatorOptions struct {
	Bin         string
	AllychainID string
	Port        uint16
	RelaySpec   string
}

func (o NodeOptions) args() []string {
	args := []string{
		"--chain=" + o.Spec,
		fmt.Sprintf("--ws-port=%d", o.WSPort),
	}
	if o.RPCPort != 0 {
		args = append(args, fmt.Sprintf("--rpc-port=%d", o.RPCPort))
	}
	args = append(args,
		fmt.Sprintf("--port=%d", o.Port),
		"--node-key="+o.NodeKey,
	)
	if o.Name != "" {
		args = append(args, "--"+strings.ToLower(o.Name))
	}
	args = append(args, basePathArg(o.BasePath))
	return append(args, o.Flags...)
}

func (o CollatorOptions) args() []string {
	args := []string{
		fmt.Sprintf("--ws-port=%d", o.WSPort),
		fmt.Sprintf("--port=%d", o.Port),
		"--node-key=" + o.NodeKey,
	}
	if o.RPCPort != 0 {
		args = append(args, fmt.Sprintf("--rpc-port=%d", o.RPCPort))
	}
	args = append(args, basePathArg(o.BasePath))
	if o.Chain != "" {
		args = append(args, "--chain="+o.Chain)
	}
	if o.Name != "" {
		args = append(args, "--"+strings.ToLower(o.Name))
	}
	if !o.SkipIDArg {
		args = append(args, "--allychain-id="+o.AllychainID)
	}
	args = append(args, "--collator")
	if o.OnlyOneAllychainNode {
		args = append(args, "--force-authoring")
	}
	collatorFlags, relayFlags := splitFlags(o.Flags)
	args = append(args, collatorFlags...)
	args = append(args, "--", "--chain="+o.RelaySpec)
	return append(args, relayFlags...)
}

func (o SimpleCollatorOptions) args() []string {
	return []string{
		"--tmp",
		fmt.Sprintf("--port=%d", o.Port),
		"--chain=" + o.RelaySpec,
		"--execution=wasm",
		"--allychain-id=" + o.AllychainID,
	}
}

// splitFlags splits [flags] on the first `--`.
func splitFlags(flags []string) ([]string, []string) {
	for i, flag := range flags {
		if flag == "--" {
			return flags[:i], flags[i+1:]
		}
	}
	return flags, nil
}

func basePathArg(basePath string) string {
	if basePath == "" {
		return "--tmp"
	}
	return "--base-path=" + basePath
}
