package config

// DefaultValues is the default configuration of the transaction verifier
const DefaultValues = `
FastMode = false

[Log]
Level = "info"
Encoding = "console"

[L1]
URL = "http://localhost:8545"
CallGasLimit = 300000
GasPriceDiv = 100

[L2]
URL = "http://localhost:3050"
CallGasLimit = 300000
GasPriceDiv = 100

[Account]
FundAmount = 1000000000000000000

[Receipt]
Timeout = "120s"
PollInterval = "500ms"

[Deposit]
GasPerPubdataByte = 800
L2GasLimit = 10000000
Amount = 1000000000000000

[Withdrawal]
FinalizePollInterval = "5s"
FinalizeTimeout = "30m"

[Oracle]
MaxConcurrentReads = 8
`
