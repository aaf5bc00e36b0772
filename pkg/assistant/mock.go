package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/Arjun-57561/Veena/pkg/constants"
	"github.com/Arjun-57561/Veena/pkg/models"
)

// Mock answers with fixed texts after a short simulated delay.
type Mock struct {
	WelcomeDelay time.Duration
	QueryDelay   time.Duration
}

func NewMock() *Mock {
	return &Mock{
		WelcomeDelay: constants.MockWelcomeDelay,
		QueryDelay:   constants.MockQueryDelay,
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Mock) Welcome(ctx context.Context, req WelcomeRequest) (Reply, error) {
	if err := wait(ctx, m.WelcomeDelay); err != nil {
		return Reply{}, failed("welcome", err)
	}
	name := req.FullName
	if name == "" {
		name = constants.WelcomeFallbackName
	}
	return Reply{
		Response: fmt.Sprintf("Hello %s, this is Veena, your assistant. Let's get started.", name),
		Lang:     req.Lang,
	}, nil
}

func (m *Mock) Query(ctx context.Context, req QueryRequest) (Reply, error) {
	if err := wait(ctx, m.QueryDelay); err != nil {
		return Reply{}, failed("query", err)
	}
	customer := req.CustomerData.Clone()
	return Reply{
		Response:     fmt.Sprintf("Got it! Based on what you said: %q, we'll continue.", req.Text),
		Lang:         constants.DefaultLocale,
		CustomerData: &customer,
	}, nil
}

func (m *Mock) SaveCustomer(ctx context.Context, _ models.CustomerData) error {
	if err := ctx.Err(); err != nil {
		return failed("save_customer", err)
	}
	return nil
}
