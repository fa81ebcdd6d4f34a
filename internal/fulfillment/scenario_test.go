package fulfillment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type ScenarioSuite struct {
	suite.Suite
	repo *memoryRepo
	svc  *Service
}

func (s *ScenarioSuite) SetupTest() {
	s.repo = newMemoryRepo()
	s.repo.seedBackorder(1, 10)
	s.repo.seedLot(1, 1, 1, 6)
	s.repo.seedLot(2, 1, 1, 10)
	s.svc = NewService(s.repo, discardLogger())
}

func (s *ScenarioSuite) TestTwoLotsCloseTheBackorder() {
	ctx := context.Background()

	first, err := s.svc.FulfillBackorder(ctx, FulfillInput{BackorderID: 1, InventoryLotID: 1})
	s.Require().NoError(err)
	s.EqualValues(6, first.FulfilledQuantity)
	s.EqualValues(4, first.RemainingPending)
	s.True(s.repo.state.backorders[1].Active)
	s.EqualValues(4, s.repo.state.items[101].BackorderQuantity)
	s.True(s.repo.state.items[101].HasBackorder)

	second, err := s.svc.FulfillBackorder(ctx, FulfillInput{BackorderID: 1, InventoryLotID: 2})
	s.Require().NoError(err)
	s.EqualValues(4, second.FulfilledQuantity)
	s.Zero(second.RemainingPending)
	s.False(s.repo.state.backorders[1].Active)

	item := s.repo.state.items[101]
	s.Zero(item.BackorderQuantity)
	s.False(item.HasBackorder)
	s.EqualValues(10, item.FulfilledQuantity)

	s.EqualValues(6, s.repo.state.lots[1].Quantity)
	s.EqualValues(10, s.repo.state.lots[2].Quantity)
	s.Len(s.repo.state.links, 2)
	s.Len(s.repo.state.transactions, 2)

	_, err = s.svc.FulfillBackorder(ctx, FulfillInput{BackorderID: 1, InventoryLotID: 2})
	s.ErrorIs(err, shared.ErrAlreadyFulfilled)
}

func (s *ScenarioSuite) TestPartialRequestsAccumulate() {
	ctx := context.Background()
	for _, q := range []int64{3, 3, 3} {
		_, err := s.svc.FulfillBackorder(ctx, FulfillInput{BackorderID: 1, InventoryLotID: 2, RequestedQuantity: qty(q)})
		s.Require().NoError(err)
	}
	res, err := s.svc.FulfillBackorder(ctx, FulfillInput{BackorderID: 1, InventoryLotID: 2, RequestedQuantity: qty(3)})
	s.Require().NoError(err)
	s.EqualValues(1, res.FulfilledQuantity)
	s.Zero(res.RemainingPending)
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioSuite))
}
