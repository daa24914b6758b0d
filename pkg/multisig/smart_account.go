package multisig

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ssp-wallet/ssp-core/pkg/chain"
	"github.com/ssp-wallet/ssp-core/pkg/schnorr"
	"github.com/ssp-wallet/ssp-core/pkg/wallet"
)

// Minimal proxy (EIP-1167) creation code wrapping the account implementation.
var (
	proxyPrefix = common.FromHex("0x3d602d80600a3d3981f3363d3d373d3d3d363d73")
	proxySuffix = common.FromHex("0x5af43d82803e903d91602b57fd5bf3")
)

var saltArguments abi.Arguments

func init() {
	addressTy, _ := abi.NewType("address", "", nil)
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	saltArguments = abi.Arguments{{Type: addressTy}, {Type: bytes32Ty}}
}

// SmartAccount is the counterfactual address of a multisig smart account.
type SmartAccount struct {
	Address string
	// Signer is the address of the parties' combined Schnorr public key.
	Signer string
	// CombinedPublicKey is hex encoded and compressed.
	CombinedPublicKey string
}

// BuildEvmSmartAccountOpts is the struct given to BuildEvmSmartAccount method
type BuildEvmSmartAccountOpts struct {
	XpubA        string
	XpubB        string
	TypeIndex    wallet.TypeIndex
	AddressIndex uint32
	Spec         chain.Spec
}

func (o BuildEvmSmartAccountOpts) validate() error {
	if len(o.XpubA) <= 0 || len(o.XpubB) <= 0 {
		return ErrNullXpub
	}
	if !o.Spec.IsEVM() {
		return ErrNotEVMChain
	}
	aa := o.Spec.AccountAbstraction
	if aa == nil ||
		!common.IsHexAddress(aa.FactoryAddress) ||
		!common.IsHexAddress(aa.AccountImplementation) {
		return ErrMissingAccountAbstraction
	}
	return nil
}

// BuildEvmSmartAccount derives both parties' leaf public keys, combines them
// into the Schnorr signer and returns the CREATE2 address the chain's factory
// deploys the signer's account to.
func BuildEvmSmartAccount(opts BuildEvmSmartAccountOpts) (*SmartAccount, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	pubkeys, err := deriveLeafPublicKeys(
		opts.XpubA, opts.XpubB, opts.TypeIndex, opts.AddressIndex,
	)
	if err != nil {
		return nil, err
	}
	combined, err := schnorr.CombinePublicKeys(pubkeys)
	if err != nil {
		return nil, err
	}
	signer := schnorr.Address(combined)

	address, err := SmartAccountAddress(signer, opts.Spec.AccountAbstraction)
	if err != nil {
		return nil, err
	}
	return &SmartAccount{
		Address:           address.Hex(),
		Signer:            signer.Hex(),
		CombinedPublicKey: common.Bytes2Hex(combined.SerializeCompressed()),
	}, nil
}

// SmartAccountAddress predicts the address of the account owned by signer:
// CREATE2(factory, keccak256(abi.encode(signer, keccak256(salt))),
// keccak256(proxy(implementation))).
func SmartAccountAddress(
	signer common.Address, aa *chain.AccountAbstraction,
) (common.Address, error) {
	if aa == nil {
		return common.Address{}, ErrMissingAccountAbstraction
	}

	var saltHash [32]byte
	copy(saltHash[:], crypto.Keccak256([]byte(aa.Salt)))
	encoded, err := saltArguments.Pack(signer, saltHash)
	if err != nil {
		return common.Address{}, err
	}
	var salt [32]byte
	copy(salt[:], crypto.Keccak256(encoded))

	implementation := common.HexToAddress(aa.AccountImplementation)
	initCode := make([]byte, 0, len(proxyPrefix)+common.AddressLength+len(proxySuffix))
	initCode = append(initCode, proxyPrefix...)
	initCode = append(initCode, implementation.Bytes()...)
	initCode = append(initCode, proxySuffix...)

	factory := common.HexToAddress(aa.FactoryAddress)
	return crypto.CreateAddress2(factory, salt, crypto.Keccak256(initCode)), nil
}

// GenerateMultisigAddressOpts is the struct given to GenerateMultisigAddress
type GenerateMultisigAddressOpts struct {
	XpubWallet   string
	XpubKey      string
	TypeIndex    wallet.TypeIndex
	AddressIndex uint32
	Spec         chain.Spec
}

// GenerateMultisigAddress builds the shared address of the chain, a script
// multisig on UTXO chains or a smart account on EVM ones. The EVM address is
// returned in the descriptor's Address field.
func GenerateMultisigAddress(opts GenerateMultisigAddressOpts) (*Descriptor, error) {
	if opts.Spec.IsEVM() {
		account, err := BuildEvmSmartAccount(BuildEvmSmartAccountOpts{
			XpubA:        opts.XpubWallet,
			XpubB:        opts.XpubKey,
			TypeIndex:    opts.TypeIndex,
			AddressIndex: opts.AddressIndex,
			Spec:         opts.Spec,
		})
		if err != nil {
			return nil, err
		}
		return &Descriptor{Address: account.Address}, nil
	}

	return BuildUtxoMultisig(BuildUtxoMultisigOpts{
		XpubA:        opts.XpubWallet,
		XpubB:        opts.XpubKey,
		TypeIndex:    opts.TypeIndex,
		AddressIndex: opts.AddressIndex,
		Spec:         opts.Spec,
	})
}
