package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"luach/internal/optout"
	"luach/internal/types"
)

// digestKeyPrefix marks tokens issued to digest subscribers, whose identity
// is an email address rather than a subscription row.
const digestKeyPrefix = "digest:"

// handleUnsubscribe processes one-click opt-out links. The response is a
// tiny human-readable page because the GET form is opened in a browser;
// mail-client one-click POSTs ignore the body.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	if err := s.applyToken(r, token); err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><p>You have been unsubscribed. "+
		"It may take a short while for in-flight emails to stop.</p></body></html>")
}

type createOptOutRequest struct {
	Token string `json:"token" validate:"required"`
}

// handleCreateOptOut is the JSON variant used by support tooling.
func (s *Server) handleCreateOptOut(w http.ResponseWriter, r *http.Request) {
	var req createOptOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &types.AppError{
			Code:    types.ErrCodeValidationMissing,
			Message: "invalid request body",
			Err:     err,
		})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, &types.AppError{
			Code:    types.ErrCodeValidationMissing,
			Message: "token is required",
			Err:     err,
		})
		return
	}

	if err := s.applyToken(r, req.Token); err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) applyToken(r *http.Request, token string) error {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return err
	}

	if claims.SubscriptionID == 0 && strings.HasPrefix(claims.OccurrenceKey, digestKeyPrefix) {
		email := strings.TrimPrefix(claims.OccurrenceKey, digestKeyPrefix)
		n, err := s.digests.Unsubscribe(r.Context(), email)
		if err != nil {
			return err
		}
		if n == 0 {
			s.log.Info("digest unsubscribe for unknown or inactive address")
		}
		return nil
	}

	return s.optouts.Apply(r.Context(), optout.Claims{
		SubscriptionID: claims.SubscriptionID,
		Slot:           claims.Slot,
		OccurrenceKey:  claims.OccurrenceKey,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeValidationToken:
			status, msg = http.StatusBadRequest, "invalid or expired link"
		case types.ErrCodeValidationMissing:
			status, msg = http.StatusBadRequest, appErr.Message
		case types.ErrCodeNotFoundSubscription:
			status, msg = http.StatusNotFound, "subscription not found"
		}
	}

	if status == http.StatusInternalServerError {
		s.log.Error("opt-out request failed", "error", err.Error())
	}
	http.Error(w, msg, status)
}
