package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/toongate/pkg/detect"
	"github.com/pario-ai/toongate/pkg/metrics"
	"github.com/pario-ai/toongate/pkg/models"
	"github.com/pario-ai/toongate/pkg/normalize"
)

// wantsRequestDecode reports whether a request carries a TOON body: a
// text/plain content type from a client that asked for TOON.
func wantsRequestDecode(headers map[string]string) bool {
	return strings.Contains(headers["content-type"], "text/plain") && detect.WantsTOON(headers)
}

// decodeRequest replaces a TOON request body with its JSON form. On any
// failure the original body is left in place.
func (m *Middleware) decodeRequest(r *http.Request, requestID string) {
	if r.Body == nil || r.Body == http.NoBody {
		return
	}
	raw, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		m.logger.Warn("incoming TOON payload read failure",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return
	}
	if len(raw) == 0 {
		return
	}

	text := string(raw)
	res, ok := m.decodeCached(text)
	if !ok {
		m.logger.Warn("request TOON conversion failed, leaving body untouched",
			zap.String("request_id", requestID),
			zap.String("error", res.Error),
		)
		return
	}

	body, err := json.Marshal(normalize.ToPlain(res.Decoded))
	if err != nil {
		m.logger.Warn("incoming TOON payload parse failure",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Content-Length", strconv.Itoa(len(body)))
	m.metrics.ObserveMode(metrics.ModeDecoded)
}

// decodeCached decodes text, consulting the cache by content hash first.
func (m *Middleware) decodeCached(text string) (models.ConversionResult, bool) {
	if m.cache == nil {
		res := m.converter.FromTOON(text)
		return res, res.Success
	}
	key, keyed := m.cache.HashData(text)
	if keyed {
		if res, hit := m.cache.Get(key); hit {
			return res, true
		}
	}
	res := m.converter.FromTOON(text)
	if res.Success && keyed {
		m.cache.Set(key, res)
	}
	return res, res.Success
}
