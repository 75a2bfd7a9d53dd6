// History and quota HTTP handlers.
//
// This file exposes the read side of the ledger:
//   - GET /history   (the caller's send records, newest first, ETag support)
//   - GET /quota     (today's count, limit and remaining sends)
//
// Both read the requester from the verified identity; in development mode
// they fall back to the `email` query parameter.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/services"
	"github.com/tbourn/go-mail-dispatch/internal/utils"
)

//
// DTOs
//

// EmailRecord is one send record as shown to its owner.
type EmailRecord struct {
	ID          string    `json:"id" example:"0b6f7c1e-58c4-4a6f-9b43-2c1c2b0f5d1a"`
	Subject     string    `json:"subject" example:"Welcome aboard"`
	Recipient   string    `json:"recipient" example:"bob@example.com"`
	FromName    string    `json:"fromName" example:"Nova Team"`
	SenderEmail string    `json:"senderEmail" example:"hello"`
	Content     string    `json:"content" example:"<h1>Hello</h1>"`
	Status      string    `json:"status" enums:"pending,sent,failed" example:"sent"`
	SentAt      time.Time `json:"sentAt"`
	CreatedAt   time.Time `json:"createdAt"`
	// EmailID is the provider message id; null unless the send succeeded.
	EmailID *string `json:"emailId"`
}

// HistoryResponse lists the caller's records.
type HistoryResponse struct {
	Success    bool          `json:"success" example:"true"`
	Emails     []EmailRecord `json:"emails"`
	TotalCount int64         `json:"totalCount" example:"42"`
	// Pagination is present only when page_size was requested.
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// QuotaResponse reports today's usage.
type QuotaResponse struct {
	Success    bool   `json:"success" example:"true"`
	Day        string `json:"day" example:"2025-06-10"`
	DailyCount int    `json:"dailyCount" example:"3"`
	DailyLimit int    `json:"dailyLimit" example:"10"`
	// Remaining is -1 when no limit is configured.
	Remaining int           `json:"remaining" example:"7"`
	Emails    []EmailRecord `json:"emails"`
}

func toEmailRecords(recs []domain.SendRecord) []EmailRecord {
	out := make([]EmailRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, EmailRecord{
			ID:          r.ID,
			Subject:     r.Subject,
			Recipient:   r.Recipient,
			FromName:    r.FromName,
			SenderEmail: r.SenderLocalPart,
			Content:     r.Content,
			Status:      r.Status,
			SentAt:      r.SentAt,
			CreatedAt:   r.CreatedAt,
			EmailID:     r.ProviderMessageID,
		})
	}
	return out
}

// historyPagination parses page/page_size. Without page_size the full
// history is returned (pageSize 0).
func historyPagination(c *gin.Context) (page, pageSize int) {
	const maxPageSize = 100
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), 0),
		maxPageSize,
	)
}

//
// Handlers
//

// History godoc
// @ID          listHistory
// @Summary     List sent emails
// @Description Returns the caller's send records, newest first, including content and final status.
// @Description Without page_size the full history is returned. Supports conditional requests via ETag.
// @Tags        Mail
// @Produce     json
//
// @Param       Authorization  header  string  false "Bearer <Google ID token>"
// @Param       email          query   string  false "Requester email (development mode only)"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100)
//
// @Success     200  {object}  handlers.HistoryResponse
// @Success     304  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse "No requester identity"
// @Failure     404  {object}  handlers.ErrorResponse "User not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /history [get]
func (h *Handlers) History(c *gin.Context) {
	ctx := c.Request.Context()

	id, found := h.requester(c, c.Query("email"))
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, localize(c, msgUnauthenticated))
		return
	}

	u, err := h.history.Lookup(ctx, id.Email)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, localize(c, msgUserNotFound))
			return
		}
		failErr(c, http.StatusInternalServerError, ErrCodeListFailed, localize(c, msgHistoryFailed), err)
		return
	}

	page, pageSize := historyPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.history.Stats(ctx, u.ID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"history:%s:%d:%d:%d:%d"`, u.ID, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	recs, total, err := h.history.ListPage(ctx, u.ID, page, pageSize)
	if err != nil {
		failErr(c, http.StatusInternalServerError, ErrCodeListFailed, localize(c, msgHistoryFailed), err)
		return
	}

	resp := HistoryResponse{
		Success:    true,
		Emails:     toEmailRecords(recs),
		TotalCount: total,
	}
	if pageSize > 0 {
		totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
		resp.Pagination = &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		}
	}
	ok(c, http.StatusOK, resp)
}

// Quota godoc
// @ID          getQuota
// @Summary     Today's usage
// @Description Returns how many emails the caller sent today, the daily limit, what remains, and today's records.
// @Tags        Mail
// @Produce     json
//
// @Param       Authorization  header  string  false "Bearer <Google ID token>"
// @Param       email          query   string  false "Requester email (development mode only)"
//
// @Success     200  {object}  handlers.QuotaResponse
// @Failure     401  {object}  handlers.ErrorResponse "No requester identity"
// @Failure     404  {object}  handlers.ErrorResponse "User not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /quota [get]
func (h *Handlers) Quota(c *gin.Context) {
	id, found := h.requester(c, c.Query("email"))
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, localize(c, msgUnauthenticated))
		return
	}

	sum, err := h.quota.Summary(c.Request.Context(), id.Email)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, localize(c, msgUserNotFound))
			return
		}
		failErr(c, http.StatusInternalServerError, ErrCodeInternal, localize(c, msgQuotaFailed), err)
		return
	}

	ok(c, http.StatusOK, QuotaResponse{
		Success:    true,
		Day:        sum.Day,
		DailyCount: sum.Count,
		DailyLimit: sum.Limit,
		Remaining:  sum.Remaining,
		Emails:     toEmailRecords(sum.Records),
	})
}
