package oauthsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/user"
)

var ErrInvalidToken = errors.New("the provider rejected the access token")

// decodeFunc maps a provider userinfo payload to an identity.
type decodeFunc func(body []byte) (user.OAuthIdentity, error)

// Verifier asks the provider userinfo endpoint who owns an access token.
type Verifier struct {
	provider string
	url      string
	client   *http.Client
	decode   decodeFunc
}

var _ user.IdentityVerifier = (*Verifier)(nil)

func newVerifier(provider, url string, decode decodeFunc) *Verifier {
	return &Verifier{
		provider: provider,
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		decode:   decode,
	}
}

// NewVerifiers returns a verifier for every enabled provider.
func NewVerifiers(conf *core.Config) []user.IdentityVerifier {
	decoders := map[string]decodeFunc{
		user.ProviderGoogle:    decodeGoogle,
		user.ProviderMicrosoft: decodeMicrosoft,
		user.ProviderGithub:    decodeGithub,
	}
	out := make([]user.IdentityVerifier, 0, len(decoders))
	for _, name := range []string{user.ProviderGoogle, user.ProviderMicrosoft, user.ProviderGithub} {
		pc, enabled := conf.OAuth.OAuthProvider(name)
		if !enabled {
			continue
		}
		out = append(out, newVerifier(name, pc.UserInfoURL, decoders[name]))
	}
	return out
}

func (v *Verifier) Provider() string { return v.provider }

// Verify calls the userinfo endpoint on behalf of the token owner.
func (v *Verifier) Verify(ctx context.Context, accessToken string) (user.OAuthIdentity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return user.OAuthIdentity{}, ErrInvalidToken
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return user.OAuthIdentity{}, errors.Wrap(err, "building userinfo request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return user.OAuthIdentity{}, errors.Wrapf(err, "calling %s userinfo", v.provider)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return user.OAuthIdentity{}, errors.Wrap(err, "reading userinfo")
	}
	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return user.OAuthIdentity{}, ErrInvalidToken
	case res.StatusCode >= http.StatusBadRequest:
		return user.OAuthIdentity{}, fmt.Errorf("%s userinfo: status %d", v.provider, res.StatusCode)
	}

	identity, err := v.decode(body)
	if err != nil {
		return user.OAuthIdentity{}, errors.Wrapf(err, "decoding %s userinfo", v.provider)
	}
	if identity.ProviderUserID == "" {
		return user.OAuthIdentity{}, errors.Errorf("%s userinfo: missing user id", v.provider)
	}
	identity.Provider = v.provider
	return identity, nil
}

func decodeGoogle(body []byte) (user.OAuthIdentity, error) {
	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return user.OAuthIdentity{}, err
	}
	identity := user.OAuthIdentity{
		ProviderUserID: info.ID,
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		AvatarURL:      info.Picture,
	}
	if info.VerifiedEmail {
		identity.Email = info.Email
	}
	return identity, nil
}

func decodeMicrosoft(body []byte) (user.OAuthIdentity, error) {
	var info struct {
		ID                string `json:"id"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		GivenName         string `json:"givenName"`
		Surname           string `json:"surname"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return user.OAuthIdentity{}, err
	}
	email := info.Mail
	if email == "" && strings.Contains(info.UserPrincipalName, "@") {
		email = info.UserPrincipalName
	}
	return user.OAuthIdentity{
		ProviderUserID: info.ID,
		Email:          email,
		FirstName:      info.GivenName,
		LastName:       info.Surname,
	}, nil
}

func decodeGithub(body []byte) (user.OAuthIdentity, error) {
	var info struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return user.OAuthIdentity{}, err
	}
	identity := user.OAuthIdentity{
		Username:  info.Login,
		Email:     info.Email,
		AvatarURL: info.AvatarURL,
	}
	if info.ID != 0 {
		identity.ProviderUserID = strconv.FormatInt(info.ID, 10)
	}
	if parts := strings.Fields(info.Name); len(parts) > 0 {
		identity.FirstName = parts[0]
		identity.LastName = strings.Join(parts[1:], " ")
	}
	return identity, nil
}
