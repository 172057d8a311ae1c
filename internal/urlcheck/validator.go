package urlcheck

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menulytics/sitefinder/internal/hostlimit"
	"github.com/menulytics/sitefinder/internal/metrics"
	"github.com/menulytics/sitefinder/internal/model"
)

// Validator probes candidate URLs with HEAD, falling back to GET.
type Validator struct {
	client    *http.Client
	limiter   *hostlimit.Limiter
	userAgent string
	logger    *zap.Logger
}

// NewValidator constructs a Validator with a redirect-capped default
// client. limiter may be nil (no admission gate).
func NewValidator(timeout time.Duration, limiter *hostlimit.Limiter, userAgent string, logger *zap.Logger) *Validator {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return NewValidatorWithClient(client, limiter, userAgent, logger)
}

// NewValidatorWithClient constructs a Validator over a caller-supplied HTTP
// client, which owns the timeout and redirect policy.
func NewValidatorWithClient(client *http.Client, limiter *hostlimit.Limiter, userAgent string, logger *zap.Logger) *Validator {
	return &Validator{
		client:    client,
		limiter:   limiter,
		userAgent: userAgent,
		logger:    logger,
	}
}

// IsHTMLLike reports whether a content type denotes an HTML(ish) page.
func IsHTMLLike(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// Validate probes rawURL and classifies the outcome. Network failures are a
// normal result (IsValid false, ErrorMessage set), never a returned error.
func (v *Validator) Validate(ctx context.Context, rawURL string) model.ValidationResult {
	result := model.ValidationResult{CandidateURL: rawURL}

	probe := func() error {
		resp, err := v.do(ctx, http.MethodHead, rawURL)
		if err != nil || resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode >= 400 {
			// Many sites reject or lie to HEAD; retry with GET before
			// giving up on the candidate.
			if resp != nil {
				resp.Body.Close()
			}
			resp, err = v.do(ctx, http.MethodGet, rawURL)
		}
		if err != nil {
			metrics.ObserveOutboundRequest("validate", 0)
			result.ErrorMessage = err.Error()
			return nil
		}
		defer resp.Body.Close()
		metrics.ObserveOutboundRequest("validate", resp.StatusCode)

		result.HTTPStatus = resp.StatusCode
		result.ContentType = resp.Header.Get("Content-Type")
		result.EffectiveURL = resp.Request.URL.String()
		result.IsSocial = IsSocial(result.EffectiveURL)

		ok := resp.StatusCode >= 200 && resp.StatusCode < 300
		result.IsValid = ok && IsHTMLLike(result.ContentType) && !result.IsSocial
		return nil
	}

	var err error
	if v.limiter != nil {
		err = v.limiter.Do(ctx, rawURL, probe)
	} else {
		err = probe()
	}
	if err != nil {
		// Admission failed (context done); report it like a network failure.
		result.ErrorMessage = err.Error()
	}

	v.logger.Debug("candidate validated",
		zap.String("url", rawURL),
		zap.Int("status", result.HTTPStatus),
		zap.Bool("valid", result.IsValid),
		zap.String("error", result.ErrorMessage),
	)
	return result
}

func (v *Validator) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", v.userAgent)
	return v.client.Do(req)
}
