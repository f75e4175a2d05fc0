package subs

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("subscription not found")
	ErrNotOwner = errors.New("you are not the owner of this subscription")
	// ErrInvalid marks input the subscription rules reject.
	ErrInvalid = errors.New("invalid subscription")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Period returns the number of days one billing cycle lasts.
func (f Frequency) Period() (int, error) {
	switch f {
	case FrequencyDaily:
		return 1, nil
	case FrequencyWeekly:
		return 7, nil
	case FrequencyMonthly:
		return 30, nil
	case FrequencyYearly:
		return 365, nil
	default:
		return 0, fmt.Errorf("%w: unknown frequency %q", ErrInvalid, f)
	}
}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) Symbol() string {
	switch c {
	case CurrencyEUR:
		return "€"
	case CurrencyGBP:
		return "£"
	default:
		return "$"
	}
}

type Category string

const (
	CategorySports        Category = "sports"
	CategoryNews          Category = "news"
	CategoryEntertainment Category = "entertainment"
	CategoryLifestyle     Category = "lifestyle"
	CategoryTechnology    Category = "technology"
	CategoryFinance       Category = "finance"
	CategoryPolitics      Category = "politics"
	CategoryOther         Category = "other"
)

type Subscription struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Currency      Currency  `json:"currency"`
	Frequency     Frequency `json:"frequency"`
	Category      Category  `json:"category"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        Status    `json:"status"`
	StartDate     time.Time `json:"startDate"`
	RenewalDate   time.Time `json:"renewalDate"`
	WorkflowRunID *string   `json:"workflowRunId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Критерии для получения подписки
type GetCriteria struct {
	IDs     []int64
	UserIDs []int64
}

// Критерии для списка подписок
type ListCriteria struct {
	UserIDs        []int64
	Status         []Status
	RenewalAfter   *time.Time
	RenewalBefore  *time.Time
	// WithoutRunOnly keeps subscriptions that never had a reminder run,
	// recorded on the row or not.
	WithoutRunOnly bool
	Limit          int
	Offset         int
}

// Параметры для обновления подписки
type UpdateParams struct {
	Status        *Status
	WorkflowRunID *string
}

// CreateSubscriptionRequest carries the user-supplied fields. RenewalDate is
// derived from StartDate and Frequency when nil.
type CreateSubscriptionRequest struct {
	UserID        int64
	Name          string
	Price         float64
	Currency      Currency
	Frequency     Frequency
	Category      Category
	PaymentMethod string
	StartDate     time.Time
	RenewalDate   *time.Time
}

type CreateSubscriptionResult struct {
	Subscription  *Subscription
	WorkflowRunID *string
}
