package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorpay-backend/internal/withdrawals"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
)

type stubWithdrawalsService struct {
	fn func(ctx context.Context, input withdrawals.WithdrawalInput) (*withdrawals.WithdrawalResult, error)
}

func (s *stubWithdrawalsService) RequestWithdrawal(ctx context.Context, input withdrawals.WithdrawalInput) (*withdrawals.WithdrawalResult, error) {
	if s.fn != nil {
		return s.fn(ctx, input)
	}
	return &withdrawals.WithdrawalResult{TransactionID: uuid.New()}, nil
}

func TestRequestWithdrawalOwnWallet(t *testing.T) {
	creator := uuid.New()
	var got withdrawals.WithdrawalInput
	svc := &stubWithdrawalsService{
		fn: func(ctx context.Context, input withdrawals.WithdrawalInput) (*withdrawals.WithdrawalResult, error) {
			got = input
			return &withdrawals.WithdrawalResult{
				TransactionID:   uuid.New(),
				PreviousBalance: decimal.RequireFromString("40"),
				NewBalance:      decimal.RequireFromString("30"),
			}, nil
		},
	}

	body := `{"userId":"` + creator.String() + `","amount":"10.00"}`
	req := newRequest(http.MethodPost, "/api/v1/withdrawals", body, creator, enums.MemberRoleCreator, nil)
	resp := httptest.NewRecorder()
	RequestWithdrawal(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, creator, got.UserID)
	assert.Equal(t, creator, got.ActorID)

	var result withdrawals.WithdrawalResult
	decodeData(t, resp, &result)
	assert.True(t, result.NewBalance.Equal(decimal.RequireFromString("30")))
}

func TestRequestWithdrawalForeignWalletForbiddenForCreators(t *testing.T) {
	body := `{"userId":"` + uuid.NewString() + `","amount":"10"}`
	req := newRequest(http.MethodPost, "/api/v1/withdrawals", body, uuid.New(), enums.MemberRoleCreator, nil)
	resp := httptest.NewRecorder()
	RequestWithdrawal(&stubWithdrawalsService{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRequestWithdrawalOperatorActsForCreator(t *testing.T) {
	body := `{"userId":"` + uuid.NewString() + `","amount":"10"}`
	req := newRequest(http.MethodPost, "/api/v1/withdrawals", body, uuid.New(), enums.MemberRoleOperator, nil)
	resp := httptest.NewRecorder()
	RequestWithdrawal(&stubWithdrawalsService{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRequestWithdrawalInsufficientBalance(t *testing.T) {
	creator := uuid.New()
	svc := &stubWithdrawalsService{
		fn: func(ctx context.Context, input withdrawals.WithdrawalInput) (*withdrawals.WithdrawalResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient wallet balance")
		},
	}
	body := `{"userId":"` + creator.String() + `","amount":"1000"}`
	req := newRequest(http.MethodPost, "/api/v1/withdrawals", body, creator, enums.MemberRoleCreator, nil)
	resp := httptest.NewRecorder()
	RequestWithdrawal(svc, testLogger())(resp, req)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "insufficient wallet balance", decodeError(t, resp).Message)
}
