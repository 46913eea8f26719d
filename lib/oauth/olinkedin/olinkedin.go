// Package olinkedin configures lib/oauth for sign-in with LinkedIn.
//
// LinkedIn implements the OpenID Connect userinfo endpoint, so the
// verifier fetches /v2/userinfo with the access token obtained from the
// code exchange and maps the response onto an oauth.Profile.
package olinkedin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"

	"github.com/flokana/authgate/lib/logger"
	"github.com/flokana/authgate/lib/oauth"
)

// DefaultAPIURL is the base URL of the LinkedIn REST API.
const DefaultAPIURL = "https://api.linkedin.com"

// Defaults configures the exchanger with the LinkedIn endpoints and the
// userinfo profile verifier.
func Defaults() oauth.Modifier {
	return func(o *oauth.Options) error {
		if err := oauth.WithEndpoint(linkedin.Endpoint)(o); err != nil {
			return err
		}
		return oauth.WithVerifiers(NewVerifierFactory(DefaultAPIURL))(o)
	}
}

// NewVerifierFactory returns a factory building userinfo verifiers
// against the supplied API base URL. Tests point it at a local fake.
func NewVerifierFactory(apiURL string) oauth.VerifierFactory {
	return func(conf *oauth2.Config) (oauth.Verifier, error) {
		if apiURL == "" {
			return nil, fmt.Errorf("linkedin api url must not be empty")
		}
		return &UserInfoVerifier{
			apiURL: apiURL,
			client: &http.Client{Timeout: 10 * time.Second},
		}, nil
	}
}

// UserInfoVerifier fills the profile from the LinkedIn userinfo endpoint.
type UserInfoVerifier struct {
	apiURL string
	client *http.Client
}

// Scopes returns the OpenID Connect scopes the userinfo call requires.
func (v *UserInfoVerifier) Scopes() []string {
	return []string{"openid", "profile", "email"}
}

type userInfoResponse struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (v *UserInfoVerifier) Verify(log logger.Logger, profile *oauth.Profile, tok *oauth2.Token) (*oauth.Profile, error) {
	req, err := http.NewRequest(http.MethodGet, v.apiURL+"/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed - %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request returned status %d", resp.StatusCode)
	}

	var info userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("userinfo decoding failed - %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("userinfo response carries no subject")
	}

	profile.Subject = "linkedin:" + info.Sub
	profile.Email = info.Email
	profile.DisplayName = info.Name
	profile.EmailVerified = info.EmailVerified
	return profile, nil
}
