package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrMissingConfig          = errors.New("missing config")
	ErrMissingRelaychain      = errors.New("missing `relaychain` object")
	ErrMissingRelaychainBin   = errors.New("missing `relaychain.bin`")
	ErrMissingRelaychainChain = errors.New("missing `relaychain.chain`")
	ErrNoRelaychainNodes      = errors.New("no relaychain nodes defined")
	ErrRelaychainFlags        = errors.New("relay chain flags should be an array")
	ErrEmptyRelaychainNode    = errors.New("empty relaychain node")
	ErrMissingAllychains      = errors.New("missing `allychains` object")
	ErrNotEnoughRelayNodes    = errors.New("must have more relaychain nodes than allychains")
	ErrMissingAllychainNodes  = errors.New("missing allychain nodes")
	ErrAllychainFlags         = errors.New("allychain flags should be an array")
	ErrEmptyAllychainNode     = errors.New("empty allychain node")
	ErrEmptySimpleAllychain   = errors.New("empty simple allychain")
)

// Config that defines a relay chain, the allychains attached to it
// and the HRMP channels opened between them at genesis.
type Config struct {
	Relaychain *RelayChainConfig `json:"relaychain"`
	// Must not be nil, may have length 0.
	Allychains []*AllychainConfig `json:"allychains"`
	// Defaulted to an empty list by Validate.
	SimpleAllychains []*SimpleAllychainConfig `json:"simpleAllychains"`
	HrmpChannels     []HrmpChannelConfig      `json:"hrmpChannels,omitempty"`
	// Either a JSON string naming a type definition file
	// or an inline type definition object.
	Types json.RawMessage `json:"types,omitempty"`
	// Wait for finalization instead of block inclusion
	// when submitting transactions.
	Finalization bool `json:"finalization"`
	// Reuse existing raw chain specs instead of rebuilding them.
	ReuseChainSpec bool `json:"reuseChainSpec"`
}

type RelayChainConfig struct {
	Bin   string        `json:"bin"`
	Chain string        `json:"chain"`
	Nodes []*NodeConfig `json:"nodes"`
	// Overrides applied on top of the generated genesis section.
	Genesis map[string]interface{} `json:"genesis,omitempty"`
}

// NodeConfig describes one relay chain validator or allychain collator.
type NodeConfig struct {
	Name     string `json:"name,omitempty"`
	BasePath string `json:"basePath,omitempty"`
	WSPort   uint16 `json:"wsPort"`
	RPCPort  uint16 `json:"rpcPort,omitempty"`
	Port     uint16 `json:"port"`
	// Hex encoded 32 byte secret seed. Generated when empty.
	NodeKey string `json:"nodeKey,omitempty"`
	Flags   Flags  `json:"flags,omitempty"`
}

type AllychainConfig struct {
	Bin string `json:"bin"`
	// When empty the id is read back from the chain spec
	// generated by [Bin].
	ID      json.Number   `json:"id,omitempty"`
	Balance json.Number   `json:"balance,omitempty"`
	Chain   string        `json:"chain,omitempty"`
	Nodes   []*NodeConfig `json:"nodes"`

	// Set once by identifier resolution.
	ResolvedID string `json:"-"`
}

// SimpleAllychainConfig is a single node allychain that supports exactly
// one implicit chain, e.g. the adder collator.
type SimpleAllychainConfig struct {
	Bin     string      `json:"bin"`
	ID      json.Number `json:"id"`
	Port    json.Number `json:"port"`
	Balance json.Number `json:"balance,omitempty"`

	ResolvedID string `json:"-"`
}

type HrmpChannelConfig struct {
	Sender         uint32 `json:"sender"`
	Recipient      uint32 `json:"recipient"`
	MaxCapacity    uint32 `json:"maxCapacity"`
	MaxMessageSize uint32 `json:"maxMessageSize"`
}

// Flags are extra arguments given to a node process.
// A value that is not an array decodes without error
// and is reported by Validate.
type Flags struct {
	args    []string
	invalid bool
}

func NewFlags(args ...string) Flags {
	return Flags{args: args}
}

// Args returns the flags in order.
func (f Flags) Args() []string {
	return f.args
}

// IsSequence is false when the decoded value was not an array.
func (f Flags) IsSequence() bool {
	return !f.invalid
}

func (f *Flags) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = Flags{}
		return nil
	}
	var args []string
	if err := json.Unmarshal(b, &args); err != nil {
		*f = Flags{invalid: true}
		return nil
	}
	*f = Flags{args: args}
	return nil
}

func (f Flags) MarshalJSON() ([]byte, error) {
	if f.args == nil {
		return []byte("null"), nil
	}
	return json.Marshal(f.args)
}

// Validate checks that the config has all the expected properties.
// Returns a distinct error for the first rule that is violated.
// If the config is valid and has no simple allychains,
// SimpleAllychains is set to an empty list.
func (c *Config) Validate() error {
	switch {
	case c == nil:
		return ErrMissingConfig
	case c.Relaychain == nil:
		return ErrMissingRelaychain
	case c.Relaychain.Bin == "":
		return ErrMissingRelaychainBin
	case c.Relaychain.Chain == "":
		return ErrMissingRelaychainChain
	case len(c.Relaychain.Nodes) == 0:
		return ErrNoRelaychainNodes
	}
	for i, node := range c.Relaychain.Nodes {
		if node == nil {
			return fmt.Errorf("%w at index %d", ErrEmptyRelaychainNode, i)
		}
		if !node.Flags.IsSequence() {
			return ErrRelaychainFlags
		}
	}
	if c.Allychains == nil {
		return ErrMissingAllychains
	}
	if len(c.Allychains) >= len(c.Relaychain.Nodes) {
		return fmt.Errorf("%w (%d allychains, %d relaychain nodes)",
			ErrNotEnoughRelayNodes, len(c.Allychains), len(c.Relaychain.Nodes))
	}
	for _, allychain := range c.Allychains {
		if allychain == nil || allychain.Nodes == nil {
			return ErrMissingAllychainNodes
		}
	}
	for _, allychain := range c.Allychains {
		for i, node := range allychain.Nodes {
			if node == nil {
				return fmt.Errorf("%w at index %d of allychain %q", ErrEmptyAllychainNode, i, allychain.Bin)
			}
			if !node.Flags.IsSequence() {
				return ErrAllychainFlags
			}
		}
	}
	for i, allychain := range c.SimpleAllychains {
		if allychain == nil {
			return fmt.Errorf("%w at index %d", ErrEmptySimpleAllychain, i)
		}
	}
	if c.SimpleAllychains == nil {
		c.SimpleAllychains = []*SimpleAllychainConfig{}
	}
	return nil
}

// Check validates [config] and logs a diagnostic for the violated rule.
// A false return means the launch must be aborted before any resource is created.
func Check(log *zap.Logger, config *Config) bool {
	if err := config.Validate(); err != nil {
		log.Error("⚠ invalid launch config", zap.Error(err))
		return false
	}
	return true
}
