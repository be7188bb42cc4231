package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/storelane/storelane-backend/api/responses"
	"github.com/storelane/storelane-backend/internal/payments"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/gateway"
	"github.com/storelane/storelane-backend/pkg/logger"
)

const signatureHeader = "X-Gateway-Signature"

type callbackGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// GatewayWebhook receives asynchronous payment callbacks. It answers 200 for
// every recognized delivery (handled or not) so the provider stops retrying,
// 400 for unparsable bodies, and 500 only for internal failures, which makes
// the provider retry.
func GatewayWebhook(svc payments.Reconciler, guard callbackGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}

		// Raw bytes must be captured before any parsing; signature
		// verification runs over exactly what the provider sent.
		rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reading request body"))
			return
		}

		parsed := gateway.ParseCallback(rawBody)
		if parsed == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unparsable callback body"))
			return
		}

		if guard != nil && parsed.EventID != "" {
			seen, guardErr := guard.CheckAndMark(ctx, parsed.EventID)
			if guardErr != nil {
				logg.Warn(logg.WithField(ctx, "event_id", parsed.EventID), "webhook dedupe check failed; continuing")
			} else if seen {
				responses.WriteSuccess(w, map[string]any{"result": "duplicate"})
				return
			}
		}

		outcome, err := svc.ProcessCallback(ctx, rawBody, r.Header.Get(signatureHeader))
		if err != nil {
			if guard != nil && parsed.EventID != "" {
				_ = guard.Delete(ctx, parsed.EventID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
