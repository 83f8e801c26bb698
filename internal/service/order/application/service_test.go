package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"takeout/internal/service/order/domain"
)

type OrderServiceSuite struct {
	suite.Suite

	repo      *memoryRepo
	scheduler *recordingScheduler
	notifier  *recordingNotifier
	payment   *recordingPayment
	clock     *fakeClock
	svc       *OrderApplicationService
}

func (s *OrderServiceSuite) SetupTest() {
	s.repo = newMemoryRepo()
	s.scheduler = &recordingScheduler{}
	s.notifier = &recordingNotifier{}
	s.payment = &recordingPayment{}
	s.clock = &fakeClock{now: time.Date(2026, 10, 17, 11, 0, 0, 0, time.UTC)}
	s.svc = NewOrderApplicationService(Dependencies{
		Repo:      s.repo,
		Scheduler: s.scheduler,
		Notifier:  s.notifier,
		Payment:   s.payment,
		Numbers:   &sequenceNumbers{},
	}, Config{
		PaymentTTL:       60 * time.Second,
		PaymentDeadline:  15 * time.Minute,
		DeliveryDeadline: 60 * time.Minute,
	}, WithClock(s.clock.Now))
}

func (s *OrderServiceSuite) waitRefunds() {
	s.Require().NoError(s.svc.Wait(context.Background()))
}

func (s *OrderServiceSuite) submit(userID int64) *SubmitOrderResponse {
	resp, err := s.svc.Submit(context.Background(), domain.UserActor(userID), SubmitOrderRequest{
		Amount:  decimal.RequireFromString("42.80"),
		Address: "No.1 Road",
	})
	s.Require().NoError(err)
	return resp
}

func (s *OrderServiceSuite) seed(status domain.Status, pay domain.PayStatus, age time.Duration) *domain.Order {
	return s.repo.put(&domain.Order{
		Number:    "seed-" + status.String() + "-" + age.String(),
		UserID:    5,
		Status:    status,
		PayStatus: pay,
		Amount:    decimal.NewFromInt(20),
		OrderTime: s.clock.Now().Add(-age),
	})
}

func (s *OrderServiceSuite) TestSubmitSchedulesPaymentTimeout() {
	resp := s.submit(5)

	stored := s.repo.get(resp.ID)
	s.Equal(domain.StatusPendingPayment, stored.Status)
	s.Equal(domain.PayStatusUnpaid, stored.PayStatus)
	s.Equal(s.clock.Now(), stored.OrderTime)

	s.Require().Len(s.scheduler.msgs, 1)
	s.Equal(resp.Number, s.scheduler.msgs[0].OrderNumber)
	s.Equal(60*time.Second, s.scheduler.ttls[0])
}

func (s *OrderServiceSuite) TestSubmitSurvivesSchedulerFailure() {
	s.scheduler.err = errors.New("broker down")
	resp := s.submit(5)
	s.Equal(domain.StatusPendingPayment, s.repo.get(resp.ID).Status)
}

func (s *OrderServiceSuite) TestPayEmitsNewOrder() {
	resp := s.submit(5)
	view, err := s.svc.Pay(context.Background(), domain.UserActor(5), resp.Number)
	s.Require().NoError(err)
	s.Equal(int(domain.StatusToBeConfirmed), view.Status)
	s.Equal(int(domain.PayStatusPaid), view.PayStatus)
	s.Equal([]domain.EventKind{domain.EventNewOrder}, s.notifier.kinds())
	s.Equal(resp.ID, s.notifier.events[0].OrderID)
}

func (s *OrderServiceSuite) TestPayOtherUsersOrderIsNotFound() {
	resp := s.submit(5)
	_, err := s.svc.Pay(context.Background(), domain.UserActor(6), resp.Number)
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *OrderServiceSuite) TestUnpaidOrderCancelledAfterTTL() {
	resp := s.submit(5)
	s.clock.Advance(60 * time.Second)

	outcome, err := s.svc.HandlePaymentTimeout(context.Background(), s.scheduler.msgs[0])
	s.Require().NoError(err)
	s.Equal(domain.OutcomeApplied, outcome)

	stored := s.repo.get(resp.ID)
	s.Equal(domain.StatusCancelled, stored.Status)
	s.Equal("order timeout, auto-cancelled by system", stored.CancelReason)
	s.Require().NotNil(stored.CancelTime)
	s.Equal(s.clock.Now(), *stored.CancelTime)
	s.Equal([]domain.EventKind{domain.EventAutoCancelled}, s.notifier.kinds())
}

func (s *OrderServiceSuite) TestOrderPaidBeforeTTLIsLeftAlone() {
	resp := s.submit(5)
	s.clock.Advance(30 * time.Second)
	_, err := s.svc.Pay(context.Background(), domain.UserActor(5), resp.Number)
	s.Require().NoError(err)

	s.clock.Advance(30 * time.Second)
	outcome, err := s.svc.HandlePaymentTimeout(context.Background(), s.scheduler.msgs[0])
	s.Require().NoError(err)
	s.Equal(domain.OutcomeAlreadyResolved, outcome)

	stored := s.repo.get(resp.ID)
	s.Equal(domain.StatusToBeConfirmed, stored.Status)
	s.Equal(domain.PayStatusPaid, stored.PayStatus)
}

func (s *OrderServiceSuite) TestTimeoutCancelIsIdempotent() {
	resp := s.submit(5)
	msg := s.scheduler.msgs[0]

	first, err := s.svc.HandlePaymentTimeout(context.Background(), msg)
	s.Require().NoError(err)
	s.Equal(domain.OutcomeApplied, first)
	afterFirst := s.repo.get(resp.ID)

	second, err := s.svc.HandlePaymentTimeout(context.Background(), msg)
	s.Require().NoError(err)
	s.Equal(domain.OutcomeAlreadyResolved, second)
	s.Equal(afterFirst, s.repo.get(resp.ID))
	s.Len(s.notifier.events, 1)
}

func (s *OrderServiceSuite) TestTimeoutForUnknownOrder() {
	_, err := s.svc.HandlePaymentTimeout(context.Background(), domain.PaymentTimeoutMessage{OrderNumber: "nope"})
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *OrderServiceSuite) TestRejectOnConfirmedFailsWithoutMutation() {
	o := s.seed(domain.StatusConfirmed, domain.PayStatusPaid, time.Minute)
	before := s.repo.get(o.ID)

	_, err := s.svc.Reject(context.Background(), domain.MerchantActor(1), o.ID, "sold out")
	s.ErrorIs(err, domain.ErrInvalidStateTransition)
	s.Equal(before, s.repo.get(o.ID))
	s.waitRefunds()
	s.Zero(s.payment.count())
}

func (s *OrderServiceSuite) TestRejectPaidOrderRefunds() {
	o := s.seed(domain.StatusToBeConfirmed, domain.PayStatusPaid, time.Minute)

	view, err := s.svc.Reject(context.Background(), domain.MerchantActor(1), o.ID, "sold out")
	s.Require().NoError(err)
	s.Equal(int(domain.StatusCancelled), view.Status)
	s.Equal(int(domain.PayStatusRefunded), view.PayStatus)
	s.Equal("sold out", view.RejectionReason)

	s.waitRefunds()
	s.Require().Equal(1, s.payment.count())
	s.Equal(o.Number, s.payment.refunds[0].OrderNumber)
	s.Equal(int64(1), s.repo.get(o.ID).UpdatedBy)
}

func (s *OrderServiceSuite) TestRejectRequiresReason() {
	o := s.seed(domain.StatusToBeConfirmed, domain.PayStatusPaid, time.Minute)
	_, err := s.svc.Reject(context.Background(), domain.MerchantActor(1), o.ID, "")
	s.ErrorIs(err, domain.ErrInvalidArgument)
}

func (s *OrderServiceSuite) TestHappyPath() {
	resp := s.submit(5)
	ctx := context.Background()
	merchant := domain.MerchantActor(1)

	_, err := s.svc.Pay(ctx, domain.UserActor(5), resp.Number)
	s.Require().NoError(err)
	_, err = s.svc.Confirm(ctx, merchant, resp.ID)
	s.Require().NoError(err)
	_, err = s.svc.Deliver(ctx, merchant, resp.ID)
	s.Require().NoError(err)
	view, err := s.svc.Complete(ctx, merchant, resp.ID)
	s.Require().NoError(err)
	s.Equal(int(domain.StatusCompleted), view.Status)
	s.NotNil(view.DeliveryTime)

	_, err = s.svc.CancelByMerchant(ctx, merchant, resp.ID, "late")
	s.ErrorIs(err, domain.ErrInvalidStateTransition)
}

func (s *OrderServiceSuite) TestCancelByMerchantPaidRefunds() {
	o := s.seed(domain.StatusDeliveryInProgress, domain.PayStatusPaid, 30*time.Minute)

	view, err := s.svc.CancelByMerchant(context.Background(), domain.MerchantActor(1), o.ID, "rider accident")
	s.Require().NoError(err)
	s.Equal(int(domain.StatusCancelled), view.Status)
	s.Equal(int(domain.PayStatusRefunded), view.PayStatus)
	s.Equal("rider accident", view.CancelReason)

	stored := s.repo.get(o.ID)
	s.Require().NotNil(stored.CancelTime)
	s.Equal(s.clock.Now(), *stored.CancelTime)
	s.Equal(domain.StatusCancelled, stored.Status)
	s.Equal(domain.PayStatusRefunded, stored.PayStatus)

	s.waitRefunds()
	s.Require().Equal(1, s.payment.count())
	s.Equal(o.Number, s.payment.refunds[0].OrderNumber)
	s.Equal("rider accident", s.payment.refunds[0].Reason)
	s.True(o.Amount.Equal(s.payment.refunds[0].Amount))
}

func (s *OrderServiceSuite) TestInteractiveGivesUpAfterRepeatedLostRaces() {
	o := s.seed(domain.StatusToBeConfirmed, domain.PayStatusPaid, time.Minute)
	s.repo.staleUpdate[o.ID] = true

	_, err := s.svc.Confirm(context.Background(), domain.MerchantActor(1), o.ID)
	s.ErrorIs(err, domain.ErrInvalidStateTransition)
	var terr *domain.TransitionError
	s.Require().ErrorAs(err, &terr)
	s.Equal(domain.StatusToBeConfirmed, terr.From)

	s.Equal(maxAttempts, s.repo.updateCalls())
	s.Equal(domain.StatusToBeConfirmed, s.repo.get(o.ID).Status)
	s.Empty(s.notifier.kinds())
}

func (s *OrderServiceSuite) TestLostRaceIsReevaluatedOnNewState() {
	o := s.seed(domain.StatusConfirmed, domain.PayStatusPaid, time.Minute)
	s.repo.raceTo[o.ID] = domain.StatusDeliveryInProgress

	view, err := s.svc.CancelByMerchant(context.Background(), domain.MerchantActor(1), o.ID, "shop closed")
	s.Require().NoError(err)
	s.Equal(int(domain.StatusCancelled), view.Status)
	s.Equal(2, s.repo.updateCalls())

	o2 := s.seed(domain.StatusConfirmed, domain.PayStatusPaid, 2*time.Minute)
	s.repo.raceTo[o2.ID] = domain.StatusCompleted
	_, err = s.svc.CancelByMerchant(context.Background(), domain.MerchantActor(1), o2.ID, "shop closed")
	s.ErrorIs(err, domain.ErrInvalidStateTransition)
	s.Equal(domain.StatusCompleted, s.repo.get(o2.ID).Status)
	s.waitRefunds()
}

func (s *OrderServiceSuite) TestCancelByUserAfterConfirmIsRejected() {
	o := s.seed(domain.StatusConfirmed, domain.PayStatusPaid, time.Minute)
	_, err := s.svc.CancelByUser(context.Background(), domain.UserActor(5), o.ID)
	s.ErrorIs(err, domain.ErrInvalidStateTransition)
}

func (s *OrderServiceSuite) TestCancelByUser() {
	pending := s.seed(domain.StatusPendingPayment, domain.PayStatusUnpaid, time.Minute)
	view, err := s.svc.CancelByUser(context.Background(), domain.UserActor(5), pending.ID)
	s.Require().NoError(err)
	s.Equal(int(domain.StatusCancelled), view.Status)
	s.Equal(domain.ReasonUserCancelled, view.CancelReason)

	paid := s.seed(domain.StatusToBeConfirmed, domain.PayStatusPaid, 2*time.Minute)
	view, err = s.svc.CancelByUser(context.Background(), domain.UserActor(5), paid.ID)
	s.Require().NoError(err)
	s.Equal(int(domain.PayStatusRefunded), view.PayStatus)

	s.waitRefunds()
	s.Require().Equal(1, s.payment.count())
	s.Equal(paid.Number, s.payment.refunds[0].OrderNumber)
}

func (s *OrderServiceSuite) TestGetChecksOwnership() {
	o := s.seed(domain.StatusToBeConfirmed, domain.PayStatusPaid, time.Minute)

	view, err := s.svc.Get(context.Background(), domain.UserActor(5), o.ID)
	s.Require().NoError(err)
	s.Equal(o.Number, view.Number)

	_, err = s.svc.Get(context.Background(), domain.UserActor(6), o.ID)
	s.ErrorIs(err, domain.ErrOrderNotFound)

	_, err = s.svc.Get(context.Background(), domain.MerchantActor(1), o.ID)
	s.NoError(err)
}

func (s *OrderServiceSuite) TestReminder() {
	o := s.seed(domain.StatusToBeConfirmed, domain.PayStatusPaid, time.Minute)
	before := s.repo.get(o.ID)
	s.Require().NoError(s.svc.Reminder(context.Background(), domain.UserActor(5), o.ID))
	s.Equal([]domain.EventKind{domain.EventReminder}, s.notifier.kinds())
	s.Equal(before, s.repo.get(o.ID))

	pending := s.seed(domain.StatusPendingPayment, domain.PayStatusUnpaid, 2*time.Minute)
	s.ErrorIs(s.svc.Reminder(context.Background(), domain.UserActor(5), pending.ID), domain.ErrInvalidStateTransition)
}

func (s *OrderServiceSuite) TestSweepPaymentOverdue() {
	old := s.seed(domain.StatusPendingPayment, domain.PayStatusUnpaid, 20*time.Minute)
	fresh := s.seed(domain.StatusPendingPayment, domain.PayStatusUnpaid, 5*time.Minute)

	report, err := s.svc.SweepPaymentOverdue(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Scanned)
	s.Equal(1, report.Applied)
	s.Equal(domain.StatusCancelled, s.repo.get(old.ID).Status)
	s.Equal(domain.ReasonPaymentTimeout, s.repo.get(old.ID).CancelReason)
	s.Equal(domain.StatusPendingPayment, s.repo.get(fresh.ID).Status)
}

func (s *OrderServiceSuite) TestSweepContinuesPastFailingOrder() {
	a := s.seed(domain.StatusPendingPayment, domain.PayStatusUnpaid, 20*time.Minute)
	b := s.seed(domain.StatusPendingPayment, domain.PayStatusUnpaid, 21*time.Minute)
	c := s.seed(domain.StatusPendingPayment, domain.PayStatusUnpaid, 22*time.Minute)
	s.repo.failUpdate[b.ID] = domain.Unavailable(errors.New("deadlock"), "update order")

	report, err := s.svc.SweepPaymentOverdue(context.Background())
	s.Require().NoError(err)
	s.Equal(3, report.Scanned)
	s.Equal(2, report.Applied)
	s.Equal(1, report.Failed)
	s.Equal(domain.StatusCancelled, s.repo.get(a.ID).Status)
	s.Equal(domain.StatusPendingPayment, s.repo.get(b.ID).Status)
	s.Equal(domain.StatusCancelled, s.repo.get(c.ID).Status)
}

func (s *OrderServiceSuite) TestSweepListFailureIsReported() {
	s.repo.failList = domain.Unavailable(errors.New("conn refused"), "list")
	_, err := s.svc.SweepPaymentOverdue(context.Background())
	s.ErrorIs(err, domain.ErrUpstreamUnavailable)
}

func (s *OrderServiceSuite) TestSweepDeliveryOverdueCompletesAtSweepTime() {
	stuck := s.seed(domain.StatusDeliveryInProgress, domain.PayStatusPaid, 2*time.Hour)
	onTime := s.seed(domain.StatusDeliveryInProgress, domain.PayStatusPaid, 30*time.Minute)

	report, err := s.svc.SweepDeliveryOverdue(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Applied)

	got := s.repo.get(stuck.ID)
	s.Equal(domain.StatusCompleted, got.Status)
	s.Require().NotNil(got.DeliveryTime)
	s.Equal(s.clock.Now(), *got.DeliveryTime)
	s.Equal(domain.StatusDeliveryInProgress, s.repo.get(onTime.ID).Status)
}

func (s *OrderServiceSuite) TestStatisticsAndSearch() {
	s.seed(domain.StatusToBeConfirmed, domain.PayStatusPaid, time.Minute)
	s.seed(domain.StatusToBeConfirmed, domain.PayStatusPaid, 2*time.Minute)
	s.seed(domain.StatusConfirmed, domain.PayStatusPaid, time.Minute)
	s.seed(domain.StatusCompleted, domain.PayStatusPaid, time.Minute)

	stats, err := s.svc.Statistics(context.Background())
	s.Require().NoError(err)
	s.Equal(&Statistics{ToBeConfirmed: 2, Confirmed: 1, DeliveryInProgress: 0}, stats)

	page, err := s.svc.Search(context.Background(), domain.SearchQuery{Status: domain.StatusToBeConfirmed, Page: 1, PageSize: 1})
	s.Require().NoError(err)
	s.Equal(int64(2), page.Total)
	s.Len(page.Records, 1)
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

// 支付与超时取消并发执行时，恰好一方生效
func TestPayAndTimeoutCancelRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		repo := newMemoryRepo()
		sched := &recordingScheduler{}
		svc := NewOrderApplicationService(Dependencies{
			Repo:      repo,
			Scheduler: sched,
			Notifier:  &recordingNotifier{},
			Payment:   &recordingPayment{},
			Numbers:   &sequenceNumbers{},
		}, Config{PaymentTTL: time.Minute, PaymentDeadline: time.Minute, DeliveryDeadline: time.Hour})

		resp, err := svc.Submit(context.Background(), domain.UserActor(1), SubmitOrderRequest{Amount: decimal.NewFromInt(9)})
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			payErr  error
			outcome domain.Outcome
			tErr    error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, payErr = svc.Pay(context.Background(), domain.UserActor(1), resp.Number)
		}()
		go func() {
			defer wg.Done()
			<-start
			outcome, tErr = svc.HandlePaymentTimeout(context.Background(), sched.msgs[0])
		}()
		close(start)
		wg.Wait()

		require.NoError(t, tErr)
		final := repo.get(resp.ID)
		payWon := payErr == nil
		timeoutWon := outcome == domain.OutcomeApplied
		assert.True(t, payWon != timeoutWon, "exactly one trigger must win")
		if payWon {
			assert.Equal(t, domain.StatusToBeConfirmed, final.Status)
			assert.Equal(t, domain.PayStatusPaid, final.PayStatus)
		} else {
			assert.ErrorIs(t, payErr, domain.ErrInvalidStateTransition)
			assert.Equal(t, domain.StatusCancelled, final.Status)
			assert.Equal(t, domain.PayStatusUnpaid, final.PayStatus)
		}
	}
}
