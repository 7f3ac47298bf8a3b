// Package httpapi exposes the REST surface of the game server: wallet
// authentication, payment intents and submission, economy operations and
// the leaderboard.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	app "github.com/roastrush/game-server/internal/app"
	"github.com/roastrush/game-server/internal/app/metrics"
	"github.com/roastrush/game-server/internal/app/services/auth"
	"github.com/roastrush/game-server/internal/app/services/economy"
	"github.com/roastrush/game-server/internal/app/services/oracle"
	"github.com/roastrush/game-server/internal/app/services/payments"
	"github.com/roastrush/game-server/internal/app/storage"
	"github.com/roastrush/game-server/pkg/logger"
)

// TaskRewards is the fixed one-time task catalog exposed over HTTP.
var TaskRewards = map[string]int64{
	"daily_login":    50,
	"share_social":   100,
	"first_purchase": 200,
	"invite_friend":  150,
}

type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns the router exposing the REST API.
func NewHandler(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/nonce", h.authNonce).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/auth/login", h.authLogin).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/leaderboard/{scope}", h.leaderboard).Methods(http.MethodGet, http.MethodOptions)

	authed := r.NewRoute().Subrouter()
	authed.Use(h.authMiddleware())
	authed.HandleFunc("/create-payment-intent", h.createPaymentIntent).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/submit-payment", h.submitPayment).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/purchase-powerup", h.purchasePowerUp).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/submit-level", h.submitLevel).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/claim-task", h.claimTask).Methods(http.MethodPost, http.MethodOptions)

	return metrics.InstrumentHandler(r)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "game-server",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// --- Auth -------------------------------------------------------------------

func (h *handler) authNonce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	res, err := h.app.Auth.IssueNonce(r.Context(), req.Identity, bearerToken(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if res.Refreshed {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token":  res.Token,
			"record": res.Record,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"nonce": res.Nonce,
	})
}

func (h *handler) authLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity  string `json:"identity"`
		Signature string `json:"signature"`
		Nonce     string `json:"nonce"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Identity == "" || req.Signature == "" || req.Nonce == "" {
		writeError(w, http.StatusBadRequest, "identity, signature and nonce are required")
		return
	}

	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "signature must be base64")
		return
	}

	res, err := h.app.Auth.VerifyLogin(r.Context(), req.Identity, signature, req.Nonce)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":  res.Token,
		"record": res.Record,
	})
}

// --- Payments ---------------------------------------------------------------

func (h *handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PackageID *int `json:"package_id"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.PackageID == nil {
		writeError(w, http.StatusBadRequest, "package_id is required")
		return
	}

	intent, err := h.app.Payments.BuildIntent(r.Context(), *req.PackageID, requestIdentity(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (h *handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SignedTransaction string `json:"signed_transaction"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.SignedTransaction == "" {
		writeError(w, http.StatusBadRequest, "signed_transaction is required")
		return
	}

	receipt, err := h.app.Payments.VerifyAndBroadcast(r.Context(), req.SignedTransaction)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	outcome, err := h.app.Economy.CreditPayment(r.Context(), receipt)
	if err != nil {
		// The payment is on chain but the credit did not commit; the
		// reconcile poller will keep flagging it.
		h.log.WithError(err).WithField("txid", receipt.TxID).Error("credit after broadcast failed")
		h.writeDomainError(w, err)
		return
	}
	if !outcome.Committed {
		h.writeOutcomeRejection(w, outcome.Status)
		return
	}
	h.app.Payments.MarkCredited(receipt.TxID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"txid":        receipt.TxID,
		"package_id":  receipt.PackageID,
		"paid_amount": receipt.PaidAmount,
		"balance":     outcome.Record.Balance,
	})
}

// --- Economy ----------------------------------------------------------------

func (h *handler) purchasePowerUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PowerUpID string `json:"power_up_id"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.PowerUpID == "" {
		writeError(w, http.StatusBadRequest, "power_up_id is required")
		return
	}

	outcome, err := h.app.Economy.PurchasePowerUp(r.Context(), requestIdentity(r), req.PowerUpID, h.app.Season)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !outcome.Committed {
		h.writeOutcomeRejection(w, outcome.Status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": outcome.Status,
		"record": outcome.Record,
	})
}

func (h *handler) submitLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LevelID *int  `json:"level_id"`
		Score   int64 `json:"score"`
		Stars   int   `json:"stars"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.LevelID == nil {
		writeError(w, http.StatusBadRequest, "level_id is required")
		return
	}

	outcome, err := h.app.Economy.SubmitLevel(r.Context(), requestIdentity(r), *req.LevelID, req.Score, req.Stars, h.app.Season, time.Now().UTC())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !outcome.Committed {
		h.writeOutcomeRejection(w, outcome.Status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": outcome.Status,
		"record": outcome.Record,
	})
}

func (h *handler) claimTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID string `json:"task_id"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	reward, ok := TaskRewards[req.TaskID]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown task")
		return
	}

	outcome, err := h.app.Economy.ClaimTask(r.Context(), requestIdentity(r), req.TaskID, reward, h.app.Season)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !outcome.Committed && outcome.Status != economy.StatusAlreadyClaimed {
		h.writeOutcomeRejection(w, outcome.Status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": outcome.Status,
		"record": outcome.Record,
	})
}

// --- Leaderboard ------------------------------------------------------------

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	scope := mux.Vars(r)["scope"]

	// The requester is flagged in the snapshot when a valid token is
	// presented; the endpoint itself is public.
	var requester string
	if token := bearerToken(r); token != "" {
		if identity, err := h.app.Auth.VerifyToken(token); err == nil {
			requester = identity
		}
	}

	entries, err := h.app.Leaderboard.Top(r.Context(), scope, requester)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope":   scope,
		"entries": entries,
	})
}

// --- Helpers ----------------------------------------------------------------

func (h *handler) writeOutcomeRejection(w http.ResponseWriter, status string) {
	code := http.StatusConflict
	switch status {
	case economy.StatusRateLimited:
		code = http.StatusTooManyRequests
	case economy.StatusNoAccount:
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (h *handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNonceNotFound),
		errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, payments.ErrUnknownPackage),
		errors.Is(err, payments.ErrMalformedTransaction),
		errors.Is(err, economy.ErrUnknownPowerUp):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payments.ErrUnderpaid):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, oracle.ErrUnavailable):
		h.log.WithError(err).Error("price oracle unavailable")
		writeError(w, http.StatusServiceUnavailable, "price unavailable")
	case errors.Is(err, payments.ErrBroadcastFailed):
		h.log.WithError(err).Error("broadcast failed")
		writeError(w, http.StatusBadGateway, "broadcast failed")
	case errors.Is(err, storage.ErrRetryExhausted):
		h.log.WithError(err).Error("ledger contention")
		writeError(w, http.StatusServiceUnavailable, "try again")
	default:
		h.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
