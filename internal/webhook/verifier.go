package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"tradehook/conf"
	"tradehook/pkg/errors"
	"tradehook/pkg/errors/ecode"
)

// 验签器：确认webhook确实来自配置的信号源
// HMAC对比必须是常数时间的，避免时序侧信道

type Verifier struct {
	secret          []byte
	freshnessWindow time.Duration
	allowBodySecret bool
	nowFn           func() time.Time
}

func NewVerifier(cfg conf.WebhookConfig) *Verifier {
	return &Verifier{
		secret:          []byte(cfg.Secret),
		freshnessWindow: cfg.FreshnessWindow,
		allowBodySecret: cfg.AllowBodySecret,
		nowFn:           time.Now,
	}
}

// Verify 校验原始请求体的签名和时间戳
// 拒绝不是异常，调用方映射为401
func (v *Verifier) Verify(body []byte, signatureHeader, timestampHeader string) error {
	if timestampHeader != "" {
		if err := v.checkFreshness(timestampHeader); err != nil {
			return err
		}
	}

	if signatureHeader != "" {
		if !v.verifyHMAC(body, signatureHeader) {
			return errors.WithCode(ecode.RequireAuthErr, "invalid signature")
		}
		return nil
	}

	// 旧版发送端：密钥直接放在请求体里
	if v.allowBodySecret {
		provided := gjson.GetBytes(body, "secret").String()
		if provided != "" && constantTimeEqual([]byte(provided), v.secret) {
			return nil
		}
	}

	return errors.WithCode(ecode.RequireAuthErr, "missing signature")
}

func (v *Verifier) verifyHMAC(body []byte, signatureHeader string) bool {
	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	expectedMAC := h.Sum(nil)

	providedMAC, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	return hmac.Equal(providedMAC, expectedMAC)
}

// checkFreshness 时间戳超出窗口判定为重放
func (v *Verifier) checkFreshness(timestampHeader string) error {
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return errors.WithCode(ecode.StaleRequestErr, "invalid timestamp header")
	}

	// 兼容秒和毫秒两种精度
	sent := time.Unix(ts, 0)
	if ts > 1e12 {
		sent = time.UnixMilli(ts)
	}

	age := v.nowFn().Sub(sent)
	if age > v.freshnessWindow || age < -v.freshnessWindow {
		return errors.WithCode(ecode.StaleRequestErr, "request timestamp outside freshness window")
	}
	return nil
}

// 两段哈希后比较，长度不同也不泄露耗时差异
func constantTimeEqual(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return hmac.Equal(ha[:], hb[:])
}
