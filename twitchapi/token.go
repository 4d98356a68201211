package twitchapi

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is Twitch's OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// NewAppTokenSource returns a cached Twitch app access (client credentials)
// token source. Tokens are refreshed shortly before expiry.
// NOTE: this token CANNOT be used for IRC chat; chat requires a user (bot)
// OAuth token with chat:read/chat:edit scopes.
//
// hc, if non-nil, is used for token requests. tokenURL defaults to
// DefaultTokenURL.
func NewAppTokenSource(ctx context.Context, clientID, clientSecret, tokenURL string, hc *http.Client) oauth2.TokenSource {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		// Twitch expects credentials in the form body.
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(ctx)
}
