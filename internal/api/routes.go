package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/icanhaztokex"

	ExchangeRoute = "/v1/exchange"
)
