package redis

const keyPrefix = "StrategyBot:SwapArb:"

// ConfigKey holds the JSON strategy config of a bot.
func ConfigKey(botID string) string { return keyPrefix + botID }

// ConfigChannel carries a message whenever a bot's config is written.
func ConfigChannel(botID string) string { return keyPrefix + botID + ":config_updates" }

// StateChannel carries the timestamp of every saved state snapshot.
func StateChannel(botID string) string { return keyPrefix + botID + ":state_updates" }

func positionsKey(botID string) string { return keyPrefix + botID + ":positions" }
func spreadKey(botID string) string    { return keyPrefix + botID + ":spread" }
func swapKey(botID string) string      { return keyPrefix + botID + ":swap" }
func statesKey(botID string) string    { return keyPrefix + botID + ":states" }
func leaseKey(botID string) string     { return "lock:" + keyPrefix + botID }
func tickerKey(venue, symbol string) string {
	return "ticker:" + venue + ":" + symbol
}

func ordersStream(botID string) string { return keyPrefix + botID + ":orders" }
