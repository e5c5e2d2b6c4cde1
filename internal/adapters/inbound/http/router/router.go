package router

import (
	"net/http"

	"depositwatch/internal/adapters/inbound/http/controllers"
)

type Dependencies struct {
	HealthController           *controllers.HealthController
	SwaggerController          *controllers.SwaggerController
	DepositAddressesController *controllers.DepositAddressesController
	DepositsController         *controllers.DepositsController
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func New(deps Dependencies) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", deps.HealthController.GetHealth)
	mux.HandleFunc("GET /swagger", deps.SwaggerController.RedirectToIndex)
	mux.HandleFunc("GET /swagger/openapi.yaml", deps.SwaggerController.GetOpenAPISpec)
	mux.HandleFunc("GET /swagger/", deps.SwaggerController.ServeUI)
	mux.HandleFunc("POST /v1/deposit-addresses", deps.DepositAddressesController.CreateDepositAddress)
	mux.HandleFunc("GET /v1/users/{user_id}/deposit-addresses/{chain}", deps.DepositAddressesController.GetDepositAddress)
	mux.HandleFunc("GET /v1/users/{user_id}/deposits", deps.DepositsController.ListUserDeposits)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	return mux
}
