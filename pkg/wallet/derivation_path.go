package wallet

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
)

const (
	// Purpose is the BIP48 multisig purpose.
	Purpose uint32 = 48
	// Account is the only account index in use.
	Account uint32 = 0
)

// TypeIndex is the first non-hardened step below the root path.
type TypeIndex uint32

const (
	// Receive addresses.
	Receive TypeIndex = 0
	// Change addresses.
	Change TypeIndex = 1
	// Identity is reserved for the per-wallet identity keypair and is never
	// exposed as a funds address.
	Identity TypeIndex = 10
)

// DerivationPath is the internal representation of a hierarchical
// deterministic wallet path
type DerivationPath []uint32

// RootPath returns m/48'/coinSlip'/0'/scriptTypeIndex' for the given chain.
func RootPath(spec chain.Spec) (DerivationPath, error) {
	scriptTypeIndex, err := spec.ScriptTypeIndex()
	if err != nil {
		return nil, err
	}
	return DerivationPath{
		hdkeychain.HardenedKeyStart + Purpose,
		hdkeychain.HardenedKeyStart + spec.CoinSlip,
		hdkeychain.HardenedKeyStart + Account,
		hdkeychain.HardenedKeyStart + scriptTypeIndex,
	}, nil
}

// NewMultisigPath returns the full path of a leaf key.
func NewMultisigPath(
	spec chain.Spec, typeIndex TypeIndex, addressIndex uint32,
) (DerivationPath, error) {
	if err := checkLeafIndexes(uint32(typeIndex), addressIndex); err != nil {
		return nil, err
	}
	root, err := RootPath(spec)
	if err != nil {
		return nil, err
	}
	return append(root, uint32(typeIndex), addressIndex), nil
}

// ParseDerivationPath converts a derivation path string to the
// internal binary representation
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	var path DerivationPath

	elems := strings.Split(strPath, "/")
	switch {
	case strPath == "":
		return nil, ErrNullDerivationPath

	case containsEmptyString(elems):
		return nil, ErrMalformedDerivationPath
	case len(elems) < 2:
		return nil, ErrMalformedDerivationPath

	case len(elems) > 1:
		if strings.TrimSpace(elems[0]) == "m" {
			elems = elems[1:]
		}

	default:
		return nil, ErrInvalidDerivationPath
	}

	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		var value uint32

		if strings.HasSuffix(elem, "'") {
			value = hdkeychain.HardenedKeyStart
			elem = strings.TrimSpace(strings.TrimSuffix(elem, "'"))
		}

		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("invalid elem '%s' in path", elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("elem %v must be in range [0, %d]", bigval, max)
			}
			return nil, fmt.Errorf("elem %v must be in hardened range [0, %d]", bigval, max)
		}
		value += uint32(bigval.Uint64())

		path = append(path, value)
	}

	return path, nil
}

// String converts a binary derivation path to its canonical representation
func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	result := "m"
	for _, component := range path {
		var hardened bool
		if component >= hdkeychain.HardenedKeyStart {
			component -= hdkeychain.HardenedKeyStart
			hardened = true
		}
		result = fmt.Sprintf("%s/%d", result, component)
		if hardened {
			result += "'"
		}
	}
	return result
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if s == "" {
			return true
		}
	}
	return false
}

func checkLeafIndexes(indexes ...uint32) error {
	for _, i := range indexes {
		if i >= hdkeychain.HardenedKeyStart {
			return ErrHardenedIndex
		}
	}
	return nil
}
