package notify

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioNotifier texts the on-call coordinator when a request finds no
// eligible responder. Failures are logged and swallowed.
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string
	to     string
}

func NewTwilioNotifier(accountSID, authToken, from, to string) *TwilioNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioNotifier{client: client, from: from, to: to}
}

func (n *TwilioNotifier) NoResponders(language, urgency string) {
	params := &api.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(fmt.Sprintf("No interpreters available for %s (%s)", language, urgency))
	if _, err := n.client.Api.CreateMessage(params); err != nil {
		log.Error().Err(err).Str("module", "notify").Str("language", language).Msg("twilio send failed")
	}
}
