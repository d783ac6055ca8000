package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"lighthouse/internal/domain"
)

// SMSChannel delivers text-message alerts via Twilio's Basic-auth REST API.
type SMSChannel struct {
	client  *twilio.RestClient
	from    string
	limiter *SlidingWindowLimiter
}

// NewSMSChannel builds an SMS adapter. limiter may be nil to disable
// rate limiting (other channels have none per spec.md §4.5).
func NewSMSChannel(accountSID, authToken, from string, limiter *SlidingWindowLimiter) *SMSChannel {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMSChannel{client: client, from: from, limiter: limiter}
}

func (c *SMSChannel) Kind() domain.ChannelKind { return domain.ChannelSMS }

func (c *SMSChannel) Available() bool { return c.from != "" }

func (c *SMSChannel) Send(ctx context.Context, payload domain.NotificationPayload, target string) SendResult {
	if c.limiter != nil {
		allowed, err := c.limiter.Allow(ctx, target)
		if err != nil {
			return SendResult{Target: target, Err: fmt.Errorf("sms: ratelimit: %w", err)}
		}
		if !allowed {
			// Silent no-op per spec.md §7: "SMS rate-limit silently no-ops."
			return SendResult{Target: target, OK: true}
		}
	}

	icon, _ := affordances(payload.Severity)
	body := fmt.Sprintf("%s %s: %s", icon, payload.Title, payload.Body)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(target)
	params.SetFrom(c.from)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return SendResult{Target: target, Err: fmt.Errorf("sms: send: %w", err)}
	}
	return SendResult{Target: target, OK: true}
}
