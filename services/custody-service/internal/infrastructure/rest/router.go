package rest

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quangdang46/DeFi-Wallet/shared/logging"
	"github.com/quangdang46/DeFi-Wallet/shared/metrics"
	"github.com/quangdang46/DeFi-Wallet/shared/recovery"
	"github.com/quangdang46/DeFi-Wallet/shared/timeout"
)

// RouterConfig carries the cross-cutting pieces of the HTTP stack
type RouterConfig struct {
	JWTSecret []byte
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Panics    *recovery.PanicHandler

	// RequestTimeout bounds /v1 request contexts; zero leaves them unbounded
	RequestTimeout time.Duration
}

// NewRouter builds the API. /health and /metrics are public; /v1 requires a bearer token.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	panics := cfg.Panics
	if panics == nil {
		panics = recovery.NewPanicHandler(logger)
	}

	r := mux.NewRouter()
	r.Use(logging.RequestMiddleware(logger), panics.HTTPMiddleware, cfg.Metrics.HTTPMiddleware)
	r.NotFoundHandler = http.HandlerFunc(notFound)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer)).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(AuthMiddleware(cfg.JWTSecret, logger))
	if cfg.RequestTimeout > 0 {
		v1.Use(timeout.Middleware(cfg.RequestTimeout))
	}

	v1.HandleFunc("/wallets", h.createWallet).Methods(http.MethodPost)
	v1.HandleFunc("/wallets", h.listWallets).Methods(http.MethodGet)
	v1.HandleFunc("/wallets/import", h.importWallet).Methods(http.MethodPost)
	v1.HandleFunc("/wallets/{id}/keystore", h.exportKeystore).Methods(http.MethodPost)
	v1.HandleFunc("/wallets/{id}/transactions", h.walletTransactions).Methods(http.MethodGet)

	v1.HandleFunc("/chains", h.listChains).Methods(http.MethodGet)
	v1.HandleFunc("/chains/health", h.chainHealth).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chainId:[0-9]+}/balances/{address}", h.balances).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chainId:[0-9]+}/tokens", h.listTokens).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chainId:[0-9]+}/tokens", h.addToken).Methods(http.MethodPost)
	v1.HandleFunc("/chains/{chainId:[0-9]+}/tokens/{address}/validate", h.validateToken).Methods(http.MethodGet)

	v1.HandleFunc("/transactions", h.listTransactions).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/send", h.sendTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/contract", h.sendContractTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{hash}", h.getTransaction).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{hash}/refresh", h.refreshTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{hash}/confirm", h.confirmTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{hash}/fail", h.failTransaction).Methods(http.MethodPost)

	return r
}
