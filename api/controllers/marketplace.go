package controllers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/angelmondragon/digital-fulfillment/api/responses"
	"github.com/angelmondragon/digital-fulfillment/internal/events"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/types"
)

const maxNotificationBytes = 1 << 20

type notificationIngestor interface {
	Ingest(ctx context.Context, body []byte) (events.IngestResult, error)
}

var ackMessages = map[events.IngestResult]string{
	events.ResultSkipped:   "Skipped: no orderId or eventType",
	events.ResultStored:    "Event stored",
	events.ResultDuplicate: "Already processed",
}

// MarketplacePing answers the marketplace connectivity check.
func MarketplacePing(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteRaw(w, http.StatusOK, pingDocument(name))
	}
}

// MarketplaceNotification appends a pushed order notification to the event log.
// The body is acknowledged once stored; fulfillment happens in the worker.
func MarketplaceNotification(name string, ingestor notificationIngestor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ingestor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification ingestor unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read notification body"))
			return
		}

		result, err := ingestor.Ingest(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result == events.ResultPing {
			responses.WriteRaw(w, http.StatusOK, pingDocument(name))
			return
		}
		responses.WriteRaw(w, http.StatusOK, types.IngestAck{OK: true, Message: ackMessages[result]})
	}
}

func pingDocument(name string) types.PingDocument {
	return types.PingDocument{
		Name:    name,
		Version: 1,
		Status:  "OK",
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
	}
}
