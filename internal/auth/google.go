package auth

import (
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/dukerupert/taskcal/internal/model"
)

// GoogleScopes covers sign-in plus write access to calendar events for the
// export feature.
var GoogleScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	calendar.CalendarEventsScope,
}

// GoogleConfig returns the OAuth client configuration, or nil when no client
// credentials are configured.
func GoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       GoogleScopes,
		Endpoint:     google.Endpoint,
	}
}

func TokenToModel(userID string, tok *oauth2.Token) model.OAuthToken {
	out := model.OAuthToken{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		out.Expiry = &exp
	}
	return out
}

func TokenFromModel(tok *model.OAuthToken) *oauth2.Token {
	out := &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if tok.Expiry != nil {
		out.Expiry = *tok.Expiry
	}
	return out
}

// TokenChanged reports whether a refresh produced a new access token.
func TokenChanged(before *model.OAuthToken, after *oauth2.Token) bool {
	if before.AccessToken != after.AccessToken {
		return true
	}
	var exp time.Time
	if before.Expiry != nil {
		exp = *before.Expiry
	}
	return !exp.Equal(after.Expiry)
}
