package chainspec

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/axia-network/axia-launch/network"
	"github.com/axia-network/axia-launch/utils"
	"github.com/spf13/afero"
)

var (
	ErrNoAllychainID        = errors.New("generated spec has no allychain id")
	ErrNoGenesisRuntime     = errors.New("spec has no `genesis.runtime` section")
	ErrNoAllychainsGenesis  = errors.New("spec runtime has no allychains configuration")
	ErrNoHrmpGenesis        = errors.New("spec runtime has no hrmp configuration")
	ErrUnknownGenesisKey    = errors.New("genesis override key not found in spec")
	errUnexpectedGenesisDoc = errors.New("unexpected spec layout")
)

// Runtime pallets that carry the genesis allychains, in lookup order.
var allychainsPallets = []string{"paras", "allychainsParas", "parachainsParas"}

// Runtime pallets that carry the preopened HRMP channels, in lookup order.
var hrmpPallets = []string{"hrmp", "allychainsHrmp", "parachainsHrmp"}

// ChangeGenesisConfig overlays [overrides] onto the `genesis` section of the spec at [path].
// Objects are merged key by key. Every key must already exist in the spec.
func ChangeGenesisConfig(fs afero.Fs, path string, overrides map[string]interface{}) error {
	doc, err := utils.ReadJSON(fs, path)
	if err != nil {
		return err
	}
	genesis, ok := doc["genesis"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: missing `genesis` in %q", errUnexpectedGenesisDoc, path)
	}
	if err := overlay(genesis, overrides, "genesis"); err != nil {
		return err
	}
	return utils.WriteJSON(fs, path, doc)
}

func overlay(dst, src map[string]interface{}, at string) error {
	for k, v := range src {
		cur, ok := dst[k]
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownGenesisKey, at, k)
		}
		srcObj, srcIsObj := v.(map[string]interface{})
		dstObj, dstIsObj := cur.(map[string]interface{})
		if srcIsObj && dstIsObj {
			if err := overlay(dstObj, srcObj, at+"."+k); err != nil {
				return err
			}
			continue
		}
		dst[k] = v
	}
	return nil
}

// AddGenesisAllychain appends allychain [id] with its genesis [head] and
// [wasm] code to the genesis allychains of the relay spec at [path].
func AddGenesisAllychain(fs afero.Fs, path string, id string, head string, wasm string, allychain bool) error {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid allychain id %q: %w", id, err)
	}
	doc, err := utils.ReadJSON(fs, path)
	if err != nil {
		return err
	}
	runtime, err := genesisRuntime(doc)
	if err != nil {
		return err
	}
	pallet, ok := findPallet(runtime, allychainsPallets)
	if !ok {
		return ErrNoAllychainsGenesis
	}
	paras, _ := pallet["paras"].([]interface{})
	pallet["paras"] = append(paras, []interface{}{
		n,
		map[string]interface{}{
			"genesis_head":    head,
			"validation_code": wasm,
			"allychain":       allychain,
		},
	})
	return utils.WriteJSON(fs, path, doc)
}

// AddGenesisHrmpChannel preopens [channel] in the relay spec at [path].
func AddGenesisHrmpChannel(fs afero.Fs, path string, channel network.HrmpChannelConfig) error {
	doc, err := utils.ReadJSON(fs, path)
	if err != nil {
		return err
	}
	runtime, err := genesisRuntime(doc)
	if err != nil {
		return err
	}
	pallet, ok := findPallet(runtime, hrmpPallets)
	if !ok {
		return ErrNoHrmpGenesis
	}
	channels, _ := pallet["preopenHrmpChannels"].([]interface{})
	pallet["preopenHrmpChannels"] = append(channels, []interface{}{
		channel.Sender,
		channel.Recipient,
		channel.MaxCapacity,
		channel.MaxMessageSize,
	})
	return utils.WriteJSON(fs, path, doc)
}

// AddBootNodes replaces the boot node list of the spec at [path].
func AddBootNodes(fs afero.Fs, path string, addrs []string) error {
	doc, err := utils.ReadJSON(fs, path)
	if err != nil {
		return err
	}
	if addrs == nil {
		addrs = []string{}
	}
	doc["bootNodes"] = addrs
	return utils.WriteJSON(fs, path, doc)
}

// genesisRuntime returns `genesis.runtime.runtime_genesis_config` when present
// and `genesis.runtime` otherwise.
func genesisRuntime(doc map[string]interface{}) (map[string]interface{}, error) {
	genesis, ok := doc["genesis"].(map[string]interface{})
	if !ok {
		return nil, ErrNoGenesisRuntime
	}
	runtime, ok := genesis["runtime"].(map[string]interface{})
	if !ok {
		return nil, ErrNoGenesisRuntime
	}
	if config, ok := runtime["runtime_genesis_config"].(map[string]interface{}); ok {
		return config, nil
	}
	return runtime, nil
}

func findPallet(runtime map[string]interface{}, names []string) (map[string]interface{}, bool) {
	for _, name := range names {
		if pallet, ok := runtime[name].(map[string]interface{}); ok {
			return pallet, true
		}
	}
	return nil, false
}
