package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/internal/notifications"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
)

type testNotificationsService struct {
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, userID)
	}
	return 0, nil
}

func TestListNotificationsParsesQuery(t *testing.T) {
	userID := uuid.New()
	var got notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			got = params
			return &notifications.ListResult{Items: []notifications.NotificationDTO{{ID: uuid.New(), Title: "Payout received"}}}, nil
		},
	}

	req := newRequest(http.MethodGet, "/api/v1/notifications?limit=10&cursor=abc&unreadOnly=true", "", userID, enums.MemberRoleCreator, nil)
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got.UserID != userID || got.Limit != 10 || got.Cursor != "abc" || !got.UnreadOnly {
		t.Fatalf("unexpected params %+v", got)
	}
	var page notifications.ListResult
	decodeData(t, resp, &page)
	if len(page.Items) != 1 || page.Items[0].Title != "Payout received" {
		t.Fatalf("unexpected payload %+v", page)
	}
}

func TestListNotificationsRejectsBadLimit(t *testing.T) {
	req := newRequest(http.MethodGet, "/api/v1/notifications?limit=-1", "", uuid.New(), enums.MemberRoleCreator, nil)
	resp := httptest.NewRecorder()
	ListNotifications(&testNotificationsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	userID := uuid.New()
	notificationID := uuid.New()
	called := false
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, uid, nid uuid.UUID) error {
			called = true
			if uid != userID {
				t.Fatalf("unexpected user %s", uid)
			}
			if nid != notificationID {
				t.Fatalf("unexpected notification %s", nid)
			}
			return nil
		},
	}

	req := newRequest(http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read", "", userID, enums.MemberRoleCreator,
		map[string]string{"notificationId": notificationID.String()})
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
	var payload map[string]bool
	decodeData(t, resp, &payload)
	if !payload["read"] {
		t.Fatalf("expected read true, got %v", payload)
	}
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, uid, nid uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	id := uuid.NewString()
	req := newRequest(http.MethodPost, "/", "", uuid.New(), enums.MemberRoleCreator, map[string]string{"notificationId": id})
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	userID := uuid.New()
	svc := &testNotificationsService{
		markAllReadFn: func(ctx context.Context, uid uuid.UUID) (int64, error) {
			if uid != userID {
				t.Fatalf("unexpected user %s", uid)
			}
			return 4, nil
		},
	}

	req := newRequest(http.MethodPost, "/api/v1/notifications/read-all", "", userID, enums.MemberRoleCreator, nil)
	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var payload map[string]int64
	decodeData(t, resp, &payload)
	if payload["updated"] != 4 {
		t.Fatalf("expected 4 updated, got %v", payload)
	}
}

func TestNotificationsRequireActor(t *testing.T) {
	req := newRequest(http.MethodPost, "/api/v1/notifications/read-all", "", uuid.Nil, "", nil)
	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(&testNotificationsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
