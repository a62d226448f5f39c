package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorpay-backend/api/middleware"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newRequest(method, target, body string, actor uuid.UUID, role enums.MemberRole, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if actor != uuid.Nil {
		ctx = middleware.WithActor(ctx, actor, role)
	}
	if len(params) > 0 {
		routeCtx := chi.NewRouteContext()
		for key, value := range params {
			routeCtx.URLParams.Add(key, value)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	}
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope.Error
}
