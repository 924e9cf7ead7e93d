package paypal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
)

const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
)

var ErrMalformedEvent = errors.New("paypal: malformed webhook event")

var eventKinds = map[string]payment.EventKind{
	"PAYMENT.CAPTURE.COMPLETED": payment.EventCaptureCompleted,
	"PAYMENT.CAPTURE.DENIED":    payment.EventCaptureDenied,
	"PAYMENT.CAPTURE.PENDING":   payment.EventCapturePending,
	"PAYMENT.CAPTURE.REFUNDED":  payment.EventCaptureRefunded,
}

// Sign computes the signature expected in HeaderTransmissionSig: hex HMAC-SHA256 of
// "transmissionID|transmissionTime|body" keyed with the webhook secret.
func Sign(transmissionID, transmissionTime string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(transmissionID))
	mac.Write([]byte("|"))
	mac.Write([]byte(transmissionTime))
	mac.Write([]byte("|"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) VerifyWebhookSignature(headers http.Header, body []byte, secret string) bool {
	if secret == "" {
		return false
	}
	id := headers.Get(HeaderTransmissionID)
	ts := headers.Get(HeaderTransmissionTime)
	sig := headers.Get(HeaderTransmissionSig)
	if id == "" || ts == "" || sig == "" {
		return false
	}

	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(id, ts, body, secret))
	return hmac.Equal(got, want)
}

// ParseEvent reads a webhook body into a payment event. The capture reference is
// resource.id, falling back to the first capture of the first purchase unit.
func ParseEvent(body []byte) (payment.Event, error) {
	if !gjson.ValidBytes(body) {
		return payment.Event{}, ErrMalformedEvent
	}
	doc := gjson.ParseBytes(body)

	eventType := doc.Get("event_type").String()
	if eventType == "" {
		return payment.Event{}, ErrMalformedEvent
	}

	kind, ok := eventKinds[eventType]
	if !ok {
		kind = payment.EventOther
	}

	resource := doc.Get("resource")
	transactionID := resource.Get("id").String()
	if transactionID == "" {
		transactionID = resource.Get("purchase_units.0.payments.captures.0.id").String()
	}

	ev := payment.Event{
		ID:             doc.Get("id").String(),
		Kind:           kind,
		RawType:        eventType,
		TransactionID:  transactionID,
		OrderReference: resource.Get("supplementary_data.related_ids.order_id").String(),
		PayerReference: resource.Get("payer.payer_id").String(),
	}
	if ts := doc.Get("create_time").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			ev.OccurredAt = t
		}
	}
	return ev, nil
}
