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

	"github.com/angelmondragon/creatorpay-backend/internal/deposits"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
)

type stubDepositsService struct {
	recordFn func(ctx context.Context, input deposits.DepositInput) (*deposits.DepositResult, error)
	fundsFn  func(ctx context.Context, campaignID uuid.UUID) (*deposits.FundsView, error)
}

func (s *stubDepositsService) RecordDeposit(ctx context.Context, input deposits.DepositInput) (*deposits.DepositResult, error) {
	if s.recordFn != nil {
		return s.recordFn(ctx, input)
	}
	return &deposits.DepositResult{TransactionID: uuid.New()}, nil
}

func (s *stubDepositsService) FundsAvailable(ctx context.Context, campaignID uuid.UUID) (*deposits.FundsView, error) {
	if s.fundsFn != nil {
		return s.fundsFn(ctx, campaignID)
	}
	return nil, nil
}

func TestRecordDepositSuccess(t *testing.T) {
	actor := uuid.New()
	campaignID := uuid.New()
	txnID := uuid.New()
	var got deposits.DepositInput
	svc := &stubDepositsService{
		recordFn: func(ctx context.Context, input deposits.DepositInput) (*deposits.DepositResult, error) {
			got = input
			return &deposits.DepositResult{TransactionID: txnID}, nil
		},
	}

	body := `{"actorId":"` + actor.String() + `","campaignId":"` + campaignID.String() + `","amount":"250.50","paymentMethod":"paypal","paymentReference":"  PAY-1 "}`
	req := newRequest(http.MethodPost, "/api/v1/record-deposit", body, actor, enums.MemberRoleAdmin, nil)
	resp := httptest.NewRecorder()
	RecordDeposit(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, campaignID, got.CampaignID)
	assert.Equal(t, enums.PaymentMethodPayPal, got.Method)
	assert.Equal(t, "PAY-1", got.Reference)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("250.50")))

	var payload struct {
		TransactionID uuid.UUID `json:"transactionId"`
	}
	decodeData(t, resp, &payload)
	assert.Equal(t, txnID, payload.TransactionID)
}

func TestRecordDepositRejectsUnknownMethod(t *testing.T) {
	actor := uuid.New()
	body := `{"actorId":"` + actor.String() + `","campaignId":"` + uuid.NewString() + `","amount":10,"paymentMethod":"cash"}`
	req := newRequest(http.MethodPost, "/api/v1/record-deposit", body, actor, enums.MemberRoleAdmin, nil)
	resp := httptest.NewRecorder()
	RecordDeposit(&stubDepositsService{}, testLogger())(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, resp).Code)
}

func TestRecordDepositInvalidAmount(t *testing.T) {
	actor := uuid.New()
	svc := &stubDepositsService{
		recordFn: func(ctx context.Context, input deposits.DepositInput) (*deposits.DepositResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero")
		},
	}
	body := `{"actorId":"` + actor.String() + `","campaignId":"` + uuid.NewString() + `","amount":"-5","paymentMethod":"stripe"}`
	req := newRequest(http.MethodPost, "/api/v1/record-deposit", body, actor, enums.MemberRoleOperator, nil)
	resp := httptest.NewRecorder()
	RecordDeposit(svc, testLogger())(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	apiErr := decodeError(t, resp)
	assert.Equal(t, string(pkgerrors.CodeInvalidAmount), apiErr.Code)
	assert.Equal(t, "amount must be greater than zero", apiErr.Message)
}

func TestRecordDepositActorMismatch(t *testing.T) {
	body := `{"actorId":"` + uuid.NewString() + `","campaignId":"` + uuid.NewString() + `","amount":"5","paymentMethod":"stripe"}`
	req := newRequest(http.MethodPost, "/api/v1/record-deposit", body, uuid.New(), enums.MemberRoleOperator, nil)
	resp := httptest.NewRecorder()
	RecordDeposit(&stubDepositsService{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestCampaignFunds(t *testing.T) {
	campaignID := uuid.New()
	svc := &stubDepositsService{
		fundsFn: func(ctx context.Context, id uuid.UUID) (*deposits.FundsView, error) {
			return &deposits.FundsView{
				CampaignID: id,
				Deposited:  decimal.RequireFromString("500"),
				PaidOut:    decimal.RequireFromString("100"),
				Remaining:  decimal.RequireFromString("400"),
			}, nil
		},
	}

	req := newRequest(http.MethodGet, "/", "", uuid.New(), enums.MemberRoleAdmin, map[string]string{"campaignId": campaignID.String()})
	resp := httptest.NewRecorder()
	CampaignFunds(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var view deposits.FundsView
	decodeData(t, resp, &view)
	assert.True(t, view.Remaining.Equal(decimal.RequireFromString("400")))
}
