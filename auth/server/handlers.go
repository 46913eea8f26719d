package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/flokana/authgate/auth/server/store"
	"github.com/flokana/authgate/lib/identity"
	"github.com/flokana/authgate/lib/khttp"
	"github.com/flokana/authgate/lib/oauth"
)

// signInRequest is the body of a password sign-in, accepted as JSON or
// as form fields of the same names.
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type signInResponse struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Tier    string `json:"tier"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	request, err := decodeSignIn(r)
	if err != nil {
		// A request we cannot even parse gets the same answer as a bad
		// password. Nothing here may leak account state.
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}

	principal, err := s.issuer.SignIn(r.Context(), request.Email, request.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}

	signed, err := s.issuer.MintSession(principal, request.Remember)
	if err != nil {
		s.log.Errorf("could not mint session for %s - %v", principal.Subject, err)
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	http.SetCookie(w, s.issuer.SessionCookie(signed, request.Remember))
	writeJSON(w, http.StatusOK, &signInResponse{
		Subject: principal.Subject,
		Email:   principal.Email,
		Role:    string(principal.Role),
		Tier:    string(principal.Tier),
	})
}

func decodeSignIn(r *http.Request) (*signInRequest, error) {
	request := &signInRequest{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(request); err != nil {
			return nil, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		request.Email = r.PostFormValue("email")
		request.Password = r.PostFormValue("password")
		request.Remember = r.PostFormValue("remember") == "true" || r.PostFormValue("remember") == "on"
	}
	if request.Email == "" || request.Password == "" {
		return nil, errors.New("email and password are required")
	}
	return request, nil
}

// handleSignOut clears both session cookie generations. Sign-out works
// regardless of whether the request was authenticated.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.issuer.ClearCookie(s.config.SessionCookie))
	http.SetCookie(w, s.issuer.ClearCookie(s.config.LegacyCookie))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleOAuthStart begins the LinkedIn handshake, carrying the optional
// callback query parameter through the signed state.
func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if s.exchanger == nil {
		writeError(w, http.StatusNotFound, "oauth sign-in is not configured")
		return
	}

	target := sanitizeTarget(r.URL.Query().Get("callback"))
	if err := s.exchanger.PerformLogin(w, r, oauth.WithTarget(target)); err != nil {
		s.log.Errorf("could not start oauth handshake - %v", err)
		s.metrics.handshake("error")
		writeError(w, http.StatusInternalServerError, "sign-in failed")
	}
}

// handleOAuthCallback completes the LinkedIn handshake.
//
// Every failure is reported to the user with the same generic message;
// the distinguishing detail only goes to the log. State mismatches fail
// closed before any token exchange, see the exchanger.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.exchanger == nil {
		writeError(w, http.StatusNotFound, "oauth sign-in is not configured")
		return
	}

	data, err := s.exchanger.PerformAuth(w, r)
	if err != nil {
		if errors.Is(err, oauth.ErrStateMismatch) {
			s.log.Warnf("oauth callback rejected from %s - %v", khttp.ClientOrigin(r), err)
			s.metrics.handshake("rejected")
			writeError(w, http.StatusForbidden, "sign-in failed")
			return
		}
		s.log.Errorf("oauth handshake failed - %v", err)
		s.metrics.handshake("error")
		writeError(w, http.StatusBadGateway, "sign-in failed")
		return
	}

	principal, err := s.oauthPrincipal(r, data.Profile)
	if err != nil {
		s.log.Warnf("oauth sign-in rejected for subject %s - %v", data.Profile.Subject, err)
		s.metrics.handshake("rejected")
		writeError(w, http.StatusForbidden, "sign-in failed")
		return
	}

	signed, err := s.issuer.MintSession(principal, false)
	if err != nil {
		s.log.Errorf("could not mint session for %s - %v", principal.Subject, err)
		s.metrics.handshake("error")
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}
	http.SetCookie(w, s.issuer.SessionCookie(signed, false))

	custom, err := s.minter.Mint(principal)
	if err != nil {
		s.log.Errorf("could not mint custom token for %s - %v", principal.Subject, err)
		s.metrics.handshake("error")
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	s.metrics.handshake("success")
	// The custom token travels in the fragment so it never hits server
	// logs or Referer headers on the way to the client.
	target := sanitizeTarget(data.Target)
	http.Redirect(w, r, target+"#token="+url.QueryEscape(custom), http.StatusTemporaryRedirect)
}

// oauthPrincipal maps a verified provider profile to a stored principal,
// creating the record on first sign-in.
func (s *Server) oauthPrincipal(r *http.Request, profile *oauth.Profile) (*identity.Principal, error) {
	record, err := s.principals.FindBySubject(r.Context(), profile.Subject)
	if err == nil {
		return record.Identity(ProviderLinkedIn), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// First sign-in. Only provision an account when the provider vouches
	// for the email; new accounts always start at the bottom of the
	// privilege ladder.
	if !profile.EmailVerified {
		return nil, errors.New("provider email is not verified")
	}
	record = &store.Principal{
		Subject:     profile.Subject,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		Role:        identity.RoleFree,
		Tier:        identity.TierFree,
		Provider:    ProviderLinkedIn,
	}
	if err := s.principals.Upsert(r.Context(), record); err != nil {
		return nil, err
	}
	s.log.Infof("provisioned principal %s for %s", record.Subject, record.Email)
	return record.Identity(ProviderLinkedIn), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sanitizeTarget keeps redirect targets on this site. Anything absolute
// or schemeless-absolute is replaced with the home path.
func sanitizeTarget(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
