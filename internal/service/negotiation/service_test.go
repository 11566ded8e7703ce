package negotiation_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/negotiation"
	"github.com/vladislavdragonenkov/marketplace/internal/service/servicetest"
)

type fixture struct {
	env     *servicetest.Env
	svc     *negotiation.Service
	seller  domain.User
	buyer   domain.User
	product domain.Product
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	env := servicetest.New(t)
	seller := env.Seller(t, "sam")
	return fixture{
		env:     env,
		svc:     negotiation.NewService(env.Exec, env.Metrics, nil),
		seller:  seller,
		buyer:   env.Buyer(t, "bob"),
		product: env.Product(t, seller, env.Category(t, "cameras"), "100.00", "10.00"),
	}
}

func (f fixture) offer(amount int64) negotiation.OfferInput {
	return negotiation.OfferInput{ProductID: f.product.ID, Amount: decimal.NewFromInt(amount), Message: "deal?"}
}

func TestMakeOffer_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MakeOffer(ctx, f.seller, f.offer(90))
	require.ErrorIs(t, err, domain.ErrCannotBuy)

	trader := f.env.Trader(t, "tess")
	own := f.env.Product(t, trader, f.env.Category(t, "lenses"), "50.00", "0")
	_, err = f.svc.MakeOffer(ctx, trader, negotiation.OfferInput{ProductID: own.ID, Amount: decimal.NewFromInt(40)})
	require.ErrorIs(t, err, domain.ErrOfferOwnProduct)
	require.Equal(t, "You cannot make an offer on your own product", err.Error())

	_, err = f.svc.MakeOffer(ctx, f.buyer, f.offer(0))
	require.ErrorIs(t, err, domain.ErrOfferAmountInvalid)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	offer, err := f.svc.MakeOffer(ctx, f.buyer, f.offer(90))
	require.NoError(t, err)
	require.Equal(t, domain.OfferStatusPending, offer.Status)
	require.Equal(t, f.seller.ID, offer.SellerID)

	_, err = f.svc.MakeOffer(ctx, f.buyer, f.offer(95))
	require.ErrorIs(t, err, domain.ErrOfferDuplicatePending)

	notes := f.env.Notifications(t, f.seller.ID)
	require.Len(t, notes, 1)
	require.Equal(t, domain.NotificationOffer, notes[0].Type)
}

func TestMakeOffer_UnavailableProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	product := f.product
	product.Status = domain.ProductStatusSold
	require.NoError(t, f.env.Repos().Products.Save(product))

	_, err := f.svc.MakeOffer(ctx, f.buyer, f.offer(90))
	require.ErrorIs(t, err, domain.ErrOfferProductUnavailable)
}

func TestMakeOffer_ConcurrentDuplicatesYieldOnePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.MakeOffer(ctx, f.buyer, f.offer(int64(50+i)))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrOfferDuplicatePending)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	offers, err := f.svc.ListMyOffers(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, offers, 1)
}

func TestAcceptOffer_LeavesProductAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer, err := f.svc.MakeOffer(ctx, f.buyer, f.offer(90))
	require.NoError(t, err)

	_, err = f.svc.AcceptOffer(ctx, f.buyer, offer.ID, "")
	require.ErrorIs(t, err, domain.ErrNotOfferSeller)

	accepted, err := f.svc.AcceptOffer(ctx, f.seller, offer.ID, "ok")
	require.NoError(t, err)
	require.Equal(t, domain.OfferStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.RespondedAt)

	product, err := f.env.Repos().Products.Get(f.product.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProductStatusActive, product.Status)

	_, err = f.svc.AcceptOffer(ctx, f.seller, offer.ID, "again")
	require.ErrorIs(t, err, domain.ErrOfferNotPending)
	_, err = f.svc.RejectOffer(ctx, f.seller, offer.ID, "changed mind")
	require.ErrorIs(t, err, domain.ErrOfferNotPending)
	require.Equal(t, domain.KindState, domain.KindOf(err))

	notes := f.env.Notifications(t, f.buyer.ID)
	require.Len(t, notes, 1)
	require.Equal(t, domain.NotificationOfferAccepted, notes[0].Type)

	_, err = f.svc.MakeOffer(ctx, f.buyer, f.offer(80))
	require.NoError(t, err)
}

func TestRejectOffer_AllowsNewOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer, err := f.svc.MakeOffer(ctx, f.buyer, f.offer(10))
	require.NoError(t, err)
	rejected, err := f.svc.RejectOffer(ctx, f.seller, offer.ID, "too low")
	require.NoError(t, err)
	require.Equal(t, "too low", rejected.SellerResponse)

	_, err = f.svc.MakeOffer(ctx, f.buyer, f.offer(60))
	require.NoError(t, err)
}

func TestOfferVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := f.env.Buyer(t, "eve")

	offer, err := f.svc.MakeOffer(ctx, f.buyer, f.offer(90))
	require.NoError(t, err)

	_, err = f.svc.GetOffer(ctx, stranger, offer.ID)
	require.ErrorIs(t, err, domain.ErrNotOfferParty)
	_, err = f.svc.GetOffer(ctx, f.seller, offer.ID)
	require.NoError(t, err)

	_, err = f.svc.ListProductOffers(ctx, f.buyer, f.product.ID)
	require.ErrorIs(t, err, domain.ErrNotProductOwner)
	offers, err := f.svc.ListProductOffers(ctx, f.seller, f.product.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
}
