package coupons

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/auth"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Create(ctx context.Context, c *Coupon) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockRepository) Get(ctx context.Context, code string) (*Coupon, error) {
	args := m.Called(ctx, code)
	c, _ := args.Get(0).(*Coupon)
	return c, args.Error(1)
}

func (m *mockRepository) List(ctx context.Context, opts ListOptions) ([]Coupon, error) {
	args := m.Called(ctx, opts)
	cs, _ := args.Get(0).([]Coupon)
	return cs, args.Error(1)
}

func (m *mockRepository) SetActive(ctx context.Context, code string, active bool) (*Coupon, error) {
	args := m.Called(ctx, code, active)
	c, _ := args.Get(0).(*Coupon)
	return c, args.Error(1)
}

func (m *mockRepository) Delete(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

func (m *mockRepository) Release(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

var (
	admin    = auth.Principal{Email: "ops@example.com", Role: auth.RoleAdmin}
	customer = auth.Principal{Email: "ann@example.com", Role: auth.RoleCustomer}
)

func newTestService(repo Repository, now time.Time) *Service {
	s := NewService(repo, nil)
	s.nowFunc = func() time.Time { return now }
	return s
}

func TestService_Validate_Scenario(t *testing.T) {
	now := time.Now()
	repo := new(mockRepository)
	repo.On("Get", mock.Anything, "SAVE10").Return(liveCoupon(now), nil)

	s := newTestService(repo, now)
	app, err := s.Validate(context.Background(), " save10 ", dec("1000"))

	require.NoError(t, err)
	assert.Equal(t, "100.00", app.Discount.StringFixed(2))
	assert.Equal(t, "SAVE10", app.Coupon.Code)
	repo.AssertExpectations(t)
}

func TestService_Validate_ExhaustedCoupon(t *testing.T) {
	now := time.Now()
	c := liveCoupon(now)
	c.UsageLimit = intPtr(3)
	c.UsedCount = 3

	repo := new(mockRepository)
	repo.On("Get", mock.Anything, "SAVE10").Return(c, nil)

	_, err := newTestService(repo, now).Validate(context.Background(), "SAVE10", dec("1000"))
	assert.True(t, errors.Is(err, apperr.ErrUsageLimitExceeded))
	repo.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestService_Validate_UnknownAndBadInput(t *testing.T) {
	repo := new(mockRepository)
	repo.On("Get", mock.Anything, "GHOST").Return(nil, nil)
	s := newTestService(repo, time.Now())

	_, err := s.Validate(context.Background(), "ghost", dec("10"))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, "Invalid or expired coupon", apperr.Message(err))

	_, err = s.Validate(context.Background(), "  ", dec("10"))
	assert.True(t, apperr.IsValidation(err))

	_, err = s.Validate(context.Background(), "X", dec("-1"))
	assert.True(t, apperr.IsValidation(err))
}

func TestService_Validate_StoreError(t *testing.T) {
	repo := new(mockRepository)
	repo.On("Get", mock.Anything, "X").Return(nil, errors.New("timeout"))

	_, err := newTestService(repo, time.Now()).Validate(context.Background(), "X", dec("10"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperr.ErrNotFound))
}

func TestService_Create(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := new(mockRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*coupons.Coupon")).Return(nil)
	s := newTestService(repo, now)

	c, err := s.Create(context.Background(), admin, CreateInput{
		Code:              " fresh20 ",
		Description:       "20% off produce",
		DiscountType:      DiscountPercentage,
		DiscountValue:     20,
		MaxDiscountAmount: floatPtr(0),
		EndDate:           now.Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, "FRESH20", c.Code)
	assert.True(t, c.IsActive)
	assert.Equal(t, now, c.StartDate)
	assert.Nil(t, c.MaxDiscountAmount)
	assert.Equal(t, admin.Email, c.CreatedBy)
	assert.Contains(t, c.ID, "cpn_")
}

func TestService_Create_Rejects(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	base := func() CreateInput {
		return CreateInput{Code: "X", Description: "d", DiscountType: DiscountFixed, DiscountValue: 5, EndDate: later}
	}

	tests := []struct {
		name   string
		modify func(*CreateInput)
		field  string
	}{
		{"missing code", func(in *CreateInput) { in.Code = " " }, "code"},
		{"missing description", func(in *CreateInput) { in.Description = "" }, "description"},
		{"unknown type", func(in *CreateInput) { in.DiscountType = "bogo" }, "discountType"},
		{"negative value", func(in *CreateInput) { in.DiscountValue = -1 }, "discountValue"},
		{"percentage over 100", func(in *CreateInput) {
			in.DiscountType = DiscountPercentage
			in.DiscountValue = 120
		}, "discountValue"},
		{"max on fixed", func(in *CreateInput) { in.MaxDiscountAmount = floatPtr(10) }, "maxDiscountAmount"},
		{"end before start", func(in *CreateInput) {
			start := later.Add(time.Hour)
			in.StartDate = &start
		}, "endDate"},
		{"end in past", func(in *CreateInput) {
			start := past.Add(-time.Hour)
			in.StartDate = &start
			in.EndDate = past
		}, "endDate"},
		{"negative limit", func(in *CreateInput) { in.UsageLimit = intPtr(-1) }, "usageLimit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepository)
			in := base()
			tt.modify(&in)

			_, err := newTestService(repo, now).Create(context.Background(), admin, in)
			var ve *apperr.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestService_AdminOnly(t *testing.T) {
	repo := new(mockRepository)
	s := newTestService(repo, time.Now())
	ctx := context.Background()

	_, err := s.Create(ctx, customer, CreateInput{})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = s.List(ctx, customer)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = s.SetActive(ctx, auth.Principal{}, "X", true)
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
	assert.True(t, errors.Is(s.Delete(ctx, customer, "X"), apperr.ErrForbidden))

	repo.AssertExpectations(t)
}

func TestService_ListActive_SkipsExhausted(t *testing.T) {
	now := time.Now()
	open := *liveCoupon(now)
	full := *liveCoupon(now)
	full.Code = "FULL"
	full.UsageLimit = intPtr(1)
	full.UsedCount = 1

	repo := new(mockRepository)
	repo.On("List", mock.Anything, ListOptions{LiveAt: now}).Return([]Coupon{open, full}, nil)

	got, err := newTestService(repo, now).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SAVE10", got[0].Code)
}

func TestService_SetActiveAndDelete(t *testing.T) {
	repo := new(mockRepository)
	repo.On("SetActive", mock.Anything, "SAVE10", false).Return(&Coupon{Code: "SAVE10"}, nil)
	repo.On("Delete", mock.Anything, "SAVE10").Return(nil)
	s := newTestService(repo, time.Now())

	c, err := s.SetActive(context.Background(), admin, "save10", false)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)
	require.NoError(t, s.Delete(context.Background(), admin, " save10"))
	repo.AssertExpectations(t)
}

func TestService_Release_SwallowsErrors(t *testing.T) {
	repo := new(mockRepository)
	repo.On("Release", mock.Anything, "SAVE10").Return(errors.New("throttled")).Once()
	s := newTestService(repo, time.Now())

	s.Release(context.Background(), "SAVE10")
	s.Release(context.Background(), "")

	repo.AssertNumberOfCalls(t, "Release", 1)
}
