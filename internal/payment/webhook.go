package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

const maxWebhookBody = 64 << 10

// Webhook receives gateway payment notifications.
type Webhook struct {
	Svc       *Service
	Secret    string
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

type notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// Handle verifies, deduplicates and applies a notification.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	result := "error"
	defer func() { obs.Inc(obs.PaymentWebhookTotal, result) }()

	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	if !VerifySignature(h.Secret, body, r.Header.Get(SignatureHeader)) {
		result = "invalid_signature"
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", "malformed notification", nil)
		return
	}
	if n.Type != "" && n.Type != "payment" {
		result = "ignored"
		common.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	paymentID := strings.TrimSpace(n.Data.ID.String())
	if paymentID == "" {
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", "missing payment id", nil)
		return
	}
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := "payment:webhook:" + common.Digest(string(body))
		fresh, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay guard unavailable", nil)
			return
		}
		if !fresh {
			result = "duplicate"
			common.JSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	ord, err := h.Svc.Sync(r.Context(), paymentID)
	switch {
	case err == nil:
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, order.ErrNotFound):
		result = "unknown"
		common.JSON(w, http.StatusOK, map[string]string{"status": "unknown"})
		return
	case errors.Is(err, order.ErrInvalidTransition):
		result = "stale"
		h.Logger.Info().Err(err).Str("payment_id", paymentID).Msg("webhook status ignored")
		common.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	default:
		h.forget(r, body)
		h.Logger.Error().Err(err).Str("payment_id", paymentID).Msg("payment webhook sync failed")
		common.JSONError(w, http.StatusBadGateway, "SYNC_FAILED", "unable to sync payment", nil)
		return
	}
	result = "applied"
	common.JSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"orderId":       ord.ID,
		"paymentStatus": ord.PaymentStatus,
	})
}

// forget drops the replay marker so the gateway retry is processed.
func (h Webhook) forget(r *http.Request, body []byte) {
	if h.Replay == nil || h.ReplayTTL <= 0 {
		return
	}
	_ = h.Replay.Del(r.Context(), "payment:webhook:"+common.Digest(string(body))).Err()
}

// VerifySignature checks the hex HMAC-SHA256 of body against provided.
func VerifySignature(secret string, body []byte, provided string) bool {
	key := strings.TrimSpace(secret)
	provided = strings.ToLower(strings.TrimSpace(provided))
	if key == "" || provided == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}
