package domain

// Static token tables for Ethereum mainnet. Addresses are lower-cased hex.

// AddressToCoinGeckoID maps well-known token contract addresses to CoinGecko IDs.
var AddressToCoinGeckoID = map[string]string{
	"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": "weth",
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": "usd-coin",
	"0xdac17f958d2ee523a2206206994597c13d831ec7": "tether",
	"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": "wrapped-bitcoin",
	"0x6b175474e89094c44da98b954eedeac495271d0f": "dai",
	"0x1f9840a85d5af5bf1d1762f925bdaddc4201f984": "uniswap",
	"0x514910771af9ca656af840dff83e8264ecf986ca": "chainlink",
	"0x7fc66500c84a76ad7e9c93437bfc5ac33e2ddae9": "aave",
	"0xd533a949740bb3306d119cc777fa900ba034cd52": "curve-dao-token",
	"0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2": "maker",
}

// SymbolToCoinGeckoID maps lower-cased token symbols to CoinGecko IDs.
var SymbolToCoinGeckoID = map[string]string{
	"eth":  "ethereum",
	"weth": "weth",
	"btc":  "bitcoin",
	"wbtc": "wrapped-bitcoin",
	"usdc": "usd-coin",
	"usdt": "tether",
	"dai":  "dai",
	"uni":  "uniswap",
	"link": "chainlink",
	"aave": "aave",
	"crv":  "curve-dao-token",
	"mkr":  "maker",
}

// Stablecoins is the set of fiat-pegged token addresses. A stable leg is the
// more trustworthy USD-volume basis for a swap.
var Stablecoins = map[string]bool{
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": true, // USDC
	"0xdac17f958d2ee523a2206206994597c13d831ec7": true, // USDT
	"0x6b175474e89094c44da98b954eedeac495271d0f": true, // DAI
	"0x0000000000085d4780b73119b644ae5ecd22b376": true, // TUSD
	"0x8e870d67f660d95d5be530380d0ec0bd388289e1": true, // USDP
}

// DefaultTokenDecimals is assumed when a token is not in TokenDecimals.
const DefaultTokenDecimals = 18

// TokenDecimals maps token addresses to their ERC-20 decimal places.
var TokenDecimals = map[string]int{
	"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": 18, // WETH
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": 6,  // USDC
	"0xdac17f958d2ee523a2206206994597c13d831ec7": 6,  // USDT
	"0x6b175474e89094c44da98b954eedeac495271d0f": 18, // DAI
	"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": 8,  // WBTC
	"0x1f9840a85d5af5bf1d1762f925bdaddc4201f984": 18, // UNI
	"0x514910771af9ca656af840dff83e8264ecf986ca": 18, // LINK
	"0x7fc66500c84a76ad7e9c93437bfc5ac33e2ddae9": 18, // AAVE
	"0xd533a949740bb3306d119cc777fa900ba034cd52": 18, // CRV
	"0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2": 18, // MKR
}
