package interaction_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/interaction"
	"github.com/vladislavdragonenkov/marketplace/internal/service/servicetest"
)

type fixture struct {
	env     *servicetest.Env
	svc     *interaction.Service
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
		svc:     interaction.NewService(env.Exec, nil),
		seller:  seller,
		buyer:   env.Buyer(t, "bob"),
		product: env.Product(t, seller, env.Category(t, "cameras"), "100.00", "0"),
	}
}

func TestStartConversation_CreatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.StartConversation(ctx, f.seller, f.product.ID, "hi")
	require.ErrorIs(t, err, domain.ErrConversationOwnProduct)
	require.Equal(t, "You cannot start a conversation about your own product", err.Error())

	conv, created, err := f.svc.StartConversation(ctx, f.buyer, f.product.ID, "is it available?")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, f.seller.ID, conv.SellerID)

	again, created, err := f.svc.StartConversation(ctx, f.buyer, f.product.ID, "hello?")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, conv.ID, again.ID)

	msgs, err := f.svc.ListMessages(ctx, f.seller, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	notes := f.env.Notifications(t, f.seller.ID)
	require.Len(t, notes, 1)
	require.Equal(t, domain.NotificationMessage, notes[0].Type)
	require.Equal(t, conv.ID, notes[0].ConversationID)

	id, exists, err := f.svc.ConversationExists(ctx, f.buyer, f.product.ID)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, conv.ID, id)
}

func TestStartConversation_UnverifiedProductNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.env.PendingProduct(t, f.seller, f.env.Category(t, "lenses"))

	_, _, err := f.svc.StartConversation(ctx, f.buyer, pending.ID, "still for sale?")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.Empty(t, f.env.Notifications(t, f.seller.ID))

	_, exists, err := f.svc.ConversationExists(ctx, f.buyer, pending.ID)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestSendMessage_NotifiesCounterpartyAndChecksAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _, err := f.svc.StartConversation(ctx, f.buyer, f.product.ID, "")
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, f.env.Buyer(t, "eve"), conv.ID, "hey")
	require.ErrorIs(t, err, domain.ErrNotConversationParty)
	require.Equal(t, domain.KindForbidden, domain.KindOf(err))

	_, err = f.svc.SendMessage(ctx, f.seller, conv.ID, "  ")
	require.ErrorIs(t, err, domain.ErrMessageEmpty)

	_, err = f.svc.SendMessage(ctx, f.seller, conv.ID, "yes, still available")
	require.NoError(t, err)

	notes := f.env.Notifications(t, f.buyer.ID)
	require.Len(t, notes, 1)
	require.Equal(t, "New message from sam", notes[0].Title)
}

func TestGetConversation_MarksCounterpartyMessagesRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _, err := f.svc.StartConversation(ctx, f.buyer, f.product.ID, "first")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, f.seller, conv.ID, "reply")
	require.NoError(t, err)

	counts, err := f.svc.UnreadCounts(ctx, f.seller)
	require.NoError(t, err)
	require.Equal(t, 1, counts.UnreadMessages)
	require.Equal(t, 1, counts.UnreadNotifications)

	view, err := f.svc.GetConversation(ctx, f.seller, conv.ID)
	require.NoError(t, err)
	require.Len(t, view.Messages, 2)
	require.True(t, view.Messages[0].IsRead)
	require.False(t, view.Messages[1].IsRead, "own message stays unread for the counterparty")

	counts, err = f.svc.UnreadCounts(ctx, f.seller)
	require.NoError(t, err)
	require.Zero(t, counts.UnreadMessages)
	require.Zero(t, counts.UnreadNotifications)

	counts, err = f.svc.UnreadCounts(ctx, f.buyer)
	require.NoError(t, err)
	require.Equal(t, 1, counts.UnreadMessages)
}

func TestDeleteConversation_HidesFromList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _, err := f.svc.StartConversation(ctx, f.buyer, f.product.ID, "")
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeleteConversation(ctx, f.env.Buyer(t, "eve"), conv.ID), domain.ErrNotConversationParty)
	require.NoError(t, f.svc.DeleteConversation(ctx, f.buyer, conv.ID))

	list, err := f.svc.ListConversations(ctx, f.buyer)
	require.NoError(t, err)
	require.Empty(t, list)

	reopened, created, err := f.svc.StartConversation(ctx, f.buyer, f.product.ID, "")
	require.NoError(t, err)
	require.False(t, created)
	require.True(t, reopened.IsActive)
	require.Equal(t, conv.ID, reopened.ID)
}

func TestDirectConversation_NormalizedPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.StartDirectConversation(ctx, f.buyer, f.buyer.ID, "")
	require.ErrorIs(t, err, domain.ErrDirectSelf)

	_, _, err = f.svc.StartDirectConversation(ctx, f.buyer, "missing", "")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	conv, created, err := f.svc.StartDirectConversation(ctx, f.buyer, f.seller.ID, "hi there")
	require.NoError(t, err)
	require.True(t, created)
	require.Less(t, conv.Participant1ID, conv.Participant2ID)

	same, created, err := f.svc.StartDirectConversation(ctx, f.seller, f.buyer.ID, "")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, conv.ID, same.ID)

	_, err = f.svc.SendDirectMessage(ctx, f.env.Buyer(t, "eve"), conv.ID, "spam")
	require.ErrorIs(t, err, domain.ErrNotConversationParty)
	_, err = f.svc.SendDirectMessage(ctx, f.seller, conv.ID, "hello back")
	require.NoError(t, err)

	counts, err := f.svc.UnreadCounts(ctx, f.seller)
	require.NoError(t, err)
	require.Equal(t, 1, counts.UnreadMessages)

	msgs, err := f.svc.ListDirectMessages(ctx, f.seller, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	counts, err = f.svc.UnreadCounts(ctx, f.seller)
	require.NoError(t, err)
	require.Zero(t, counts.UnreadMessages)
	require.Zero(t, counts.UnreadNotifications)

	list, err := f.svc.ListDirectConversations(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestNotifications_RecipientScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.StartConversation(ctx, f.buyer, f.product.ID, "")
	require.NoError(t, err)
	other := f.env.Product(t, f.seller, f.env.Category(t, "lenses"), "30.00", "0")
	_, _, err = f.svc.StartConversation(ctx, f.buyer, other.ID, "")
	require.NoError(t, err)

	notes, err := f.svc.ListNotifications(ctx, f.seller, true, 0)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	err = f.svc.MarkNotificationRead(ctx, f.buyer, notes[0].ID)
	require.ErrorIs(t, err, domain.ErrNotificationNotFound)
	require.Equal(t, "Notification not found", err.Error())

	require.NoError(t, f.svc.MarkNotificationRead(ctx, f.seller, notes[0].ID))
	unread, err := f.svc.ListNotifications(ctx, f.seller, true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	marked, err := f.svc.MarkAllNotificationsRead(ctx, f.seller)
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	require.ErrorIs(t, f.svc.DeleteNotification(ctx, f.buyer, notes[1].ID), domain.ErrNotificationNotFound)
	require.NoError(t, f.svc.DeleteNotification(ctx, f.seller, notes[1].ID))
	all, err := f.svc.ListNotifications(ctx, f.seller, false, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
