package chain

const (
	xpubVersion  uint32 = 0x0488b21e
	xprvVersion  uint32 = 0x0488ade4
	tpubVersion  uint32 = 0x043587cf
	tprvVersion  uint32 = 0x04358394
	dgubVersion  uint32 = 0x02facafd
	dgpvVersion  uint32 = 0x02fac398
	evmCoinSlip  uint32 = 60
	evmDecimals  int32  = 18
	utxoDecimals int32  = 8

	saplingBranchID uint32 = 0x76b809bb
	nu6BranchID     uint32 = 0xc8e71055

	entryPointV06 = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
	accountSalt   = "aasalt"
)

// accountFactory and accountImplementation are the multisig smart account
// deployment shared by every supported EVM network.
var (
	accountFactory        = "0xA76f98D25C9775F67DCf8B9EF9618d454D287467"
	accountImplementation = "0x6f2e09b1Aa2C1C5A9cE0A0D1A37D2D6f83D49bEe"
)

var ordered = []Chain{
	Flux, FluxTestnet, Ravencoin, Litecoin, Bitcoin, Dogecoin, Zcash,
	BtcTestnet, BtcSignet,
	Ethereum, Sepolia, Polygon, Amoy, Base, BSC, Avax,
}

var registry = map[Chain]Spec{
	Flux: {
		Chain:         Flux,
		Name:          "Flux",
		Type:          UTXO,
		Bip32Public:   xpubVersion,
		Bip32Private:  xprvVersion,
		CoinSlip:      19167,
		ScriptType:    P2SH,
		MessagePrefix: "\x18Zelcash Signed Message:\n",
		PubKeyHash:    []byte{0x1c, 0xb8},
		ScriptHash:    []byte{0x1c, 0xbd},
		WIF:           0x80,
		Decimals:      utxoDecimals,
		TxFormat:      TxFormatZcash,

		ConsensusBranchID: saplingBranchID,
	},
	FluxTestnet: {
		Chain:         FluxTestnet,
		Name:          "Flux Testnet",
		Type:          UTXO,
		Bip32Public:   tpubVersion,
		Bip32Private:  tprvVersion,
		CoinSlip:      1,
		ScriptType:    P2SH,
		MessagePrefix: "\x18Zelcash Signed Message:\n",
		PubKeyHash:    []byte{0x1d, 0x25},
		ScriptHash:    []byte{0x1c, 0xba},
		WIF:           0xef,
		Decimals:      utxoDecimals,
		TxFormat:      TxFormatZcash,

		ConsensusBranchID: saplingBranchID,
	},
	Ravencoin: {
		Chain:         Ravencoin,
		Name:          "Ravencoin",
		Type:          UTXO,
		Bip32Public:   xpubVersion,
		Bip32Private:  xprvVersion,
		CoinSlip:      175,
		ScriptType:    P2SH,
		MessagePrefix: "\x16Raven Signed Message:\n",
		PubKeyHash:    []byte{0x3c},
		ScriptHash:    []byte{0x7a},
		WIF:           0x80,
		Decimals:      utxoDecimals,
		TxFormat:      TxFormatBitcoin,
	},
	Litecoin: {
		Chain:         Litecoin,
		Name:          "Litecoin",
		Type:          UTXO,
		Bip32Public:   xpubVersion,
		Bip32Private:  xprvVersion,
		CoinSlip:      2,
		ScriptType:    P2WSH,
		MessagePrefix: "\x19Litecoin Signed Message:\n",
		PubKeyHash:    []byte{0x30},
		ScriptHash:    []byte{0x32},
		WIF:           0xb0,
		Bech32HRP:     "ltc",
		Decimals:      utxoDecimals,
		TxFormat:      TxFormatBitcoin,
	},
	Bitcoin: {
		Chain:         Bitcoin,
		Name:          "Bitcoin",
		Type:          UTXO,
		Bip32Public:   xpubVersion,
		Bip32Private:  xprvVersion,
		CoinSlip:      0,
		ScriptType:    P2WSH,
		MessagePrefix: "\x18Bitcoin Signed Message:\n",
		PubKeyHash:    []byte{0x00},
		ScriptHash:    []byte{0x05},
		WIF:           0x80,
		Bech32HRP:     "bc",
		Decimals:      utxoDecimals,
		TxFormat:      TxFormatBitcoin,
	},
	Dogecoin: {
		Chain:         Dogecoin,
		Name:          "Dogecoin",
		Type:          UTXO,
		Bip32Public:   dgubVersion,
		Bip32Private:  dgpvVersion,
		CoinSlip:      3,
		ScriptType:    P2SH,
		MessagePrefix: "\x19Dogecoin Signed Message:\n",
		PubKeyHash:    []byte{0x1e},
		ScriptHash:    []byte{0x16},
		WIF:           0x9e,
		Decimals:      utxoDecimals,
		TxFormat:      TxFormatBitcoin,
	},
	Zcash: {
		Chain:         Zcash,
		Name:          "Zcash",
		Type:          UTXO,
		Bip32Public:   xpubVersion,
		Bip32Private:  xprvVersion,
		CoinSlip:      133,
		ScriptType:    P2SH,
		MessagePrefix: "\x18Zcash Signed Message:\n",
		PubKeyHash:    []byte{0x1c, 0xb8},
		ScriptHash:    []byte{0x1c, 0xbd},
		WIF:           0x80,
		Decimals:      utxoDecimals,
		TxFormat:      TxFormatZcash,

		ConsensusBranchID: nu6BranchID,
	},
	BtcTestnet: {
		Chain:         BtcTestnet,
		Name:          "Testnet Bitcoin",
		Type:          UTXO,
		Bip32Public:   tpubVersion,
		Bip32Private:  tprvVersion,
		CoinSlip:      1,
		ScriptType:    P2WSH,
		MessagePrefix: "\x18Bitcoin Signed Message:\n",
		PubKeyHash:    []byte{0x6f},
		ScriptHash:    []byte{0xc4},
		WIF:           0xef,
		Bech32HRP:     "tb",
		Decimals:      utxoDecimals,
		TxFormat:      TxFormatBitcoin,
	},
	BtcSignet: {
		Chain:         BtcSignet,
		Name:          "Signet Bitcoin",
		Type:          UTXO,
		Bip32Public:   tpubVersion,
		Bip32Private:  tprvVersion,
		CoinSlip:      1,
		ScriptType:    P2WSH,
		MessagePrefix: "\x18Bitcoin Signed Message:\n",
		PubKeyHash:    []byte{0x6f},
		ScriptHash:    []byte{0xc4},
		WIF:           0xef,
		Bech32HRP:     "tb",
		Decimals:      utxoDecimals,
		TxFormat:      TxFormatBitcoin,
	},
	Ethereum: evmSpec(Ethereum, "Ethereum", 1),
	Sepolia:  evmSpec(Sepolia, "Sepolia", 11155111),
	Polygon:  evmSpec(Polygon, "Polygon", 137),
	Amoy:     evmSpec(Amoy, "Polygon Amoy", 80002),
	Base:     evmSpec(Base, "Base", 8453),
	BSC:      evmSpec(BSC, "BNB Smart Chain", 56),
	Avax:     evmSpec(Avax, "Avalanche C-Chain", 43114),
}

func evmSpec(c Chain, name string, chainID uint64) Spec {
	return Spec{
		Chain:         c,
		Name:          name,
		Type:          EVM,
		Bip32Public:   xpubVersion,
		Bip32Private:  xprvVersion,
		CoinSlip:      evmCoinSlip,
		ScriptType:    P2SH,
		MessagePrefix: "\x19Ethereum Signed Message:\n",
		Decimals:      evmDecimals,
		TxFormat:      TxFormatEVM,
		ChainID:       chainID,
		AccountAbstraction: &AccountAbstraction{
			FactoryAddress:        accountFactory,
			EntryPointAddress:     entryPointV06,
			AccountImplementation: accountImplementation,
			Salt:                  accountSalt,
		},
	}
}
