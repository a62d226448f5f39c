package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/creatorpay-backend/api/responses"
	"github.com/angelmondragon/creatorpay-backend/api/validators"
	"github.com/angelmondragon/creatorpay-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

// ListNotifications returns paginated notifications for the caller.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		userID, _, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		params := notifications.ListParams{UserID: userID}

		if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
			value, err := strconv.Atoi(limitStr)
			if err != nil || value <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			params.Limit = value
		}

		if cursor := strings.TrimSpace(r.URL.Query().Get("cursor")); cursor != "" {
			params.Cursor = cursor
		}

		if unread := strings.TrimSpace(r.URL.Query().Get("unreadOnly")); unread != "" {
			value, err := strconv.ParseBool(unread)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unreadOnly value"))
				return
			}
			params.UnreadOnly = value
		}

		resp, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// MarkNotificationRead marks one of the caller's notifications as read.
func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		userID, _, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		notificationID, err := validators.ParseUUIDParam(r, "notificationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkRead(r.Context(), userID, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"read": true})
	}
}

// MarkAllNotificationsRead marks every unread notification of the caller.
func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		userID, _, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		updated, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"updated": updated})
	}
}
