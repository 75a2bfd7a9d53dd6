// Localized client-facing messages.
//
// Message keys are the English texts. Translations live in a x/text catalog
// and are chosen from the request's Accept-Language header; anything that
// does not match a supported language falls back to English.
package handlers

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	msgInvalidBody      = "Request body must be a JSON object"
	msgMissingFields    = "All fields are required"
	msgInvalidRecipient = "Recipient email address is not valid"
	msgUnauthenticated  = "Please sign in first"
	msgQuotaExceeded    = "Daily limit of %d emails reached, please try again tomorrow"
	msgSendFailed       = "Failed to send the email, please try again later"
	msgSent             = "Email sent successfully"
	msgUserNotFound     = "User not found"
	msgHistoryFailed    = "Failed to load email history"
	msgQuotaFailed      = "Failed to load today's usage"
	msgServerError      = "Internal server error"
	msgNotReady         = "Service is not ready"
	msgRequestInFlight  = "A request with this Idempotency-Key is still being processed"
)

var zhHant = map[string]string{
	msgInvalidBody:      "請求內容必須是 JSON 物件",
	msgMissingFields:    "所有欄位都是必填項",
	msgInvalidRecipient: "收件人郵箱格式不正確",
	msgUnauthenticated:  "用戶未登入",
	msgQuotaExceeded:    "已達每日 %d 封郵件上限，請明天再試",
	msgSendFailed:       "郵件發送失敗，請稍後再試",
	msgSent:             "郵件發送成功",
	msgUserNotFound:     "用戶不存在",
	msgHistoryFailed:    "獲取郵件歷史失敗",
	msgQuotaFailed:      "獲取今日用量失敗",
	msgServerError:      "服務器錯誤",
	msgNotReady:         "服務尚未就緒",
	msgRequestInFlight:  "相同 Idempotency-Key 的請求仍在處理中",
}

var (
	supportedLangs = []language.Tag{language.English, language.TraditionalChinese}
	langMatcher    = language.NewMatcher(supportedLangs)
	msgCatalog     = buildCatalog()
)

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, zh := range zhHant {
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.TraditionalChinese, key, zh)
	}
	return b
}

// requestLanguage picks the best supported language for the request.
func requestLanguage(c *gin.Context) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, conf := langMatcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return supportedLangs[idx]
}

// localize renders key (with args) in the request's language.
func localize(c *gin.Context, key string, args ...any) string {
	p := message.NewPrinter(requestLanguage(c), message.Catalog(msgCatalog))
	return p.Sprintf(key, args...)
}
