package utils

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/axia-network/axia-launch/network"
	"github.com/axia-network/axia-launch/utils/constants"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

const (
	// NodeKeySize is the size in bytes of a node's secret seed.
	NodeKeySize = 32

	bootNodeAddrFormat = "/ip4/%s/tcp/%d/p2p/%s"
)

var ErrInvalidNodeKey = errors.New("invalid node key")

// NodeIdentity is the libp2p identity a node derives from its secret seed.
type NodeIdentity struct {
	PrivKey crypto.PrivKey
	PeerID  peer.ID
}

// NewNodeKey returns a random hex encoded node key without prefix.
func NewNodeKey() (string, error) {
	seed := make([]byte, NodeKeySize)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("couldn't generate node key: %w", err)
	}
	return hex.EncodeToString(seed), nil
}

// DeriveIdentity derives the Ed25519 key pair and peer ID of a node from
// its hex encoded secret seed. The seed may carry a 0x prefix.
// The same seed always yields the same identity.
func DeriveIdentity(nodeKey string) (*NodeIdentity, error) {
	seed, err := hex.DecodeString(strip0x(nodeKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNodeKey, err)
	}
	if len(seed) != NodeKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes but got %d", ErrInvalidNodeKey, NodeKeySize, len(seed))
	}
	// ed25519 key generation reads exactly the seed from the reader.
	privKey, _, err := crypto.GenerateEd25519Key(bytes.NewReader(seed))
	if err != nil {
		return nil, err
	}
	peerID, err := peer.IDFromPrivateKey(privKey)
	if err != nil {
		return nil, err
	}
	return &NodeIdentity{
		PrivKey: privKey,
		PeerID:  peerID,
	}, nil
}

// BootNodeAddr returns the loopback multiaddress other nodes dial
// to reach the node with [nodeKey] listening on [port].
func BootNodeAddr(port uint16, nodeKey string) (string, error) {
	identity, err := DeriveIdentity(nodeKey)
	if err != nil {
		return "", err
	}
	addr := fmt.Sprintf(bootNodeAddrFormat, constants.IPv4Lookback, port, identity.PeerID.Pretty())
	if _, err := ma.NewMultiaddr(addr); err != nil {
		return "", fmt.Errorf("invalid boot node address %q: %w", addr, err)
	}
	return addr, nil
}

// EnsureNodeKey assigns a fresh node key to [node] if it has none.
func EnsureNodeKey(node *network.NodeConfig) error {
	if node.NodeKey != "" {
		return nil
	}
	nodeKey, err := NewNodeKey()
	if err != nil {
		return err
	}
	node.NodeKey = nodeKey
	return nil
}

// DeriveBootNodes returns the boot node address of each node, in order.
// Nodes without a node key get a new one first, so that the key a node
// is launched with matches the address other nodes dial.
func DeriveBootNodes(nodes []*network.NodeConfig) ([]string, error) {
	bootNodes := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if err := EnsureNodeKey(node); err != nil {
			return nil, err
		}
		addr, err := BootNodeAddr(node.Port, node.NodeKey)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", node.Name, err)
		}
		bootNodes = append(bootNodes, addr)
	}
	return bootNodes, nil
}

func strip0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
