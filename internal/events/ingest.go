package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
)

const pingEvent = "PING"

// IngestResult is the disposition of one notification.
type IngestResult string

const (
	ResultPing      IngestResult = "ping"
	ResultSkipped   IngestResult = "skipped"
	ResultStored    IngestResult = "stored"
	ResultDuplicate IngestResult = "duplicate"
)

// Notification is the subset of a marketplace push the event log keys on.
type Notification struct {
	OrderID   string
	Event     string
	EventTime time.Time
	Payload   json.RawMessage
	Ping      bool
}

type notificationBody struct {
	Event      string             `json:"event"`
	UpdateTime string             `json:"updateTime"`
	Order      *notificationOrder `json:"order"`
}

type notificationOrder struct {
	ID json.RawMessage `json:"id"`
}

// ParseNotification extracts the order id, event type and event time from a
// raw push body. Empty and "{}" bodies are pings; bodies that are not JSON
// parse to an empty Notification. A missing updateTime defaults to now.
func ParseNotification(body []byte, now time.Time) (Notification, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "{}" {
		return Notification{Ping: true}, nil
	}

	var decoded notificationBody
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return Notification{}, nil
	}

	n := Notification{
		Event:     strings.TrimSpace(decoded.Event),
		EventTime: now.UTC().Truncate(time.Microsecond),
		Payload:   json.RawMessage(trimmed),
		Ping:      strings.EqualFold(strings.TrimSpace(decoded.Event), pingEvent),
	}
	if decoded.Order != nil {
		n.OrderID = strings.Trim(strings.TrimSpace(string(decoded.Order.ID)), `"`)
		if n.OrderID == "null" {
			n.OrderID = ""
		}
	}
	if raw := strings.TrimSpace(decoded.UpdateTime); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Notification{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid updateTime %q", raw))
		}
		n.EventTime = parsed.UTC()
	}
	return n, nil
}

// Ingestor turns marketplace pushes into event log rows.
type Ingestor struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewIngestor(repo *Repository, logg *logger.Logger) (*Ingestor, error) {
	if repo == nil {
		return nil, fmt.Errorf("event repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Ingestor{repo: repo, logg: logg, now: time.Now}, nil
}

// Ingest parses body and appends it to the event log.
func (i *Ingestor) Ingest(ctx context.Context, body []byte) (IngestResult, error) {
	n, err := ParseNotification(body, i.now())
	if err != nil {
		return "", err
	}
	if n.Ping {
		return ResultPing, nil
	}
	if n.OrderID == "" || n.Event == "" {
		i.logg.Warn(ctx, "notification without order id or event type skipped")
		return ResultSkipped, nil
	}

	ctx = i.logg.WithOrderID(ctx, n.OrderID)
	stored, err := i.repo.Append(ctx, &models.MarketplaceEvent{
		OrderID:   n.OrderID,
		Type:      n.Event,
		EventTime: n.EventTime,
		Payload:   n.Payload,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store marketplace event")
	}
	if !stored {
		i.logg.Debug(ctx, "duplicate marketplace notification ignored")
		return ResultDuplicate, nil
	}
	i.logg.Info(i.logg.WithField(ctx, "event_type", n.Event), "marketplace event stored")
	return ResultStored, nil
}
