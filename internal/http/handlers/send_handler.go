// Send HTTP handler.
//
// POST /send dispatches one email on behalf of the requester, subject to the
// per-user daily quota.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// send exists for (requester, key), the handler returns that result without
// calling the provider again and sets `Idempotency-Replayed: true`. The key is
// reserved before dispatch; a concurrent request with the same key gets 409
// until the first one finishes. A failed dispatch releases the key.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/http/middleware"
	"github.com/tbourn/go-mail-dispatch/internal/services"
)

// idempotencyScopeSend namespaces stored keys for POST /send.
const idempotencyScopeSend = "send"

//
// DTOs
//

// SendRequest is the JSON payload for POST /send.
//
// Required fields are checked by the dispatch service so that validation
// order is the same for every transport.
type SendRequest struct {
	// FromName is the sender display name.
	FromName string `json:"fromName" example:"Nova Team"`
	// SenderEmail is the local part of the sender address; the domain is fixed by the server.
	SenderEmail string `json:"senderEmail" example:"hello"`
	// Recipient is the destination address.
	Recipient string `json:"recipient" example:"bob@example.com"`
	// Subject line.
	Subject string `json:"subject" example:"Welcome aboard"`
	// Content is the HTML body, sent as is.
	Content string `json:"content" example:"<h1>Hello</h1>"`
	// UserEmail identifies the requester when no identity token is configured.
	UserEmail string `json:"userEmail,omitempty" example:"alice@example.com"`
}

// SendResponse is returned for an accepted and delivered email.
type SendResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Email sent successfully"`
	// EmailID is the provider message id.
	EmailID    string `json:"emailId" example:"4ef9a417-02e9-4d39-ad75-9611e0fcc33c"`
	RecordID   string `json:"recordId" example:"0b6f7c1e-58c4-4a6f-9b43-2c1c2b0f5d1a"`
	DailyCount int    `json:"dailyCount" example:"3"`
	DailyLimit int    `json:"dailyLimit" example:"10"`
}

//
// Handlers
//

// Send godoc
// @ID          sendEmail
// @Summary     Send an email
// @Description Sends one HTML email from "<fromName> <<senderEmail>@<sender domain>>" to the recipient,
// @Description with reply-to set to the requester. Each user may send a limited number of emails per day.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Mail
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  false "Bearer <Google ID token>"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendRequest  true  "Email to send"
//
// @Success     200  {object}  handlers.SendResponse  "Email sent"
// @Failure     400  {object}  handlers.ErrorResponse "Missing or malformed fields"
// @Failure     401  {object}  handlers.ErrorResponse "No requester identity"
// @Failure     409  {object}  handlers.ErrorResponse "Same Idempotency-Key still in flight"
// @Failure     429  {object}  handlers.ErrorResponse "Daily limit reached"
// @Failure     500  {object}  handlers.ErrorResponse "Storage or provider failure"
// @Router      /send [post]
func (h *Handlers) Send(c *gin.Context) {
	ctx := c.Request.Context()

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, localize(c, msgInvalidBody))
		return
	}

	id, _ := h.requester(c, req.UserEmail)
	dreq := services.DispatchRequest{
		FromName:         req.FromName,
		SenderLocalPart:  req.SenderEmail,
		Recipient:        req.Recipient,
		Subject:          req.Subject,
		Content:          req.Content,
		RequesterEmail:   id.Email,
		RequesterName:    id.Name,
		RequesterPicture: id.Picture,
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	useKey := idemKey != "" && h.opts.Replays != nil && id.Email != ""

	// Idempotency (replay path).
	if useKey {
		if rec, found := h.opts.Replays.Replay(ctx, id.Email, idempotencyScopeSend, idemKey); found {
			h.replay(c, id.Email, rec)
			return
		}
		reserved, err := h.opts.Replays.Reserve(ctx, id.Email, idempotencyScopeSend, idemKey)
		switch {
		case err != nil:
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency key not reserved")
			useKey = false
		case !reserved:
			// The holder may have completed between the two lookups.
			if rec, found := h.opts.Replays.Replay(ctx, id.Email, idempotencyScopeSend, idemKey); found {
				h.replay(c, id.Email, rec)
				return
			}
			fail(c, http.StatusConflict, ErrCodeIdempotencyInUse, localize(c, msgRequestInFlight))
			return
		}
	}

	res, err := h.dispatch.Dispatch(ctx, dreq)
	if err != nil {
		if useKey {
			if rerr := h.opts.Replays.Release(context.WithoutCancel(ctx), id.Email, idempotencyScopeSend, idemKey); rerr != nil {
				middleware.LoggerFrom(c).Warn().Err(rerr).Msg("idempotency reservation not released")
			}
		}
		h.failDispatch(c, err)
		return
	}

	// Idempotency (store path), best effort.
	if useKey {
		if err := h.opts.Replays.Complete(context.WithoutCancel(ctx), id.Email, idempotencyScopeSend, idemKey, res.RecordID); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("record_id", res.RecordID).Msg("idempotency key not stored")
		}
	}

	ok(c, http.StatusOK, SendResponse{
		Success:    true,
		Message:    localize(c, msgSent),
		EmailID:    res.ProviderMessageID,
		RecordID:   res.RecordID,
		DailyCount: res.DailyCount,
		DailyLimit: res.DailyLimit,
	})
}

// replay answers with a previously stored send record.
func (h *Handlers) replay(c *gin.Context, email string, rec *domain.SendRecord) {
	resp := SendResponse{
		Success:    true,
		Message:    localize(c, msgSent),
		RecordID:   rec.ID,
		DailyLimit: h.opts.DailyLimit,
	}
	if rec.ProviderMessageID != nil {
		resp.EmailID = *rec.ProviderMessageID
	}
	if h.quota != nil {
		if sum, err := h.quota.Summary(c.Request.Context(), email); err == nil {
			resp.DailyCount = sum.Count
		}
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, http.StatusOK, resp)
}

// failDispatch maps dispatch errors to HTTP responses.
func (h *Handlers) failDispatch(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMissingFields):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, localize(c, msgMissingFields))
	case errors.Is(err, services.ErrInvalidRecipient):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, localize(c, msgInvalidRecipient))
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, localize(c, msgUnauthenticated))
	case errors.Is(err, services.ErrQuotaExceeded):
		fail(c, http.StatusTooManyRequests, ErrCodeQuotaExceeded, localize(c, msgQuotaExceeded, h.opts.DailyLimit))
	case errors.Is(err, services.ErrProviderFailure):
		failErr(c, http.StatusInternalServerError, ErrCodeSendFailed, localize(c, msgSendFailed), err)
	default:
		failErr(c, http.StatusInternalServerError, ErrCodeInternal, localize(c, msgServerError), err)
	}
}
