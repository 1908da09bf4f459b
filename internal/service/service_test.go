package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offer-api/internal/events"
	"offer-api/internal/mapper"
	"offer-api/internal/models"
	"offer-api/internal/offertest"
	"offer-api/internal/store"
	"offer-api/internal/store/memstore"
	"offer-api/internal/validation"
)

// faultyStore wraps a store and fails selected operations.
type faultyStore struct {
	store.Store
	mu      sync.Mutex
	failOn  map[string]error
	getKeys map[string]error
}

func (f *faultyStore) fail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failOn[op]
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := f.getKeys[key]; err != nil {
		return nil, err
	}
	if err := f.fail("get"); err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, key)
}

func (f *faultyStore) Put(ctx context.Context, key string, value []byte) error {
	if err := f.fail("put"); err != nil {
		return err
	}
	return f.Store.Put(ctx, key, value)
}

func (f *faultyStore) Delete(ctx context.Context, key string) error {
	if err := f.fail("delete"); err != nil {
		return err
	}
	return f.Store.Delete(ctx, key)
}

func (f *faultyStore) Keys(ctx context.Context) ([]string, error) {
	if err := f.fail("keys"); err != nil {
		return nil, err
	}
	return f.Store.Keys(ctx)
}

func setupService(t *testing.T, st store.Store) *Service {
	t.Helper()
	svc, err := NewService(st, Options{PublicURL: "http://localhost:5000"})
	require.NoError(t, err)
	return svc
}

func create(t *testing.T, svc *Service, payload map[string]any) string {
	t.Helper()
	resp, err := svc.CreateOffer(context.Background(), payload)
	require.NoError(t, err)
	return resp.OfferID
}

func TestCreateOffer(t *testing.T) {
	st := memstore.New()
	svc := setupService(t, st)

	resp, err := svc.CreateOffer(context.Background(), offertest.Catalog("Fancy"))
	require.NoError(t, err)

	_, err = uuid.Parse(resp.OfferID)
	assert.NoError(t, err, "offer ids are uuids")
	assert.Equal(t, "http://localhost:5000/offers/"+resp.OfferID, resp.OfferURL)

	data, err := st.Get(context.Background(), resp.OfferID)
	require.NoError(t, err)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, resp.OfferID, stored["offer_id"])
	assert.Equal(t, "Fancy", stored["title"])
	assert.NotContains(t, stored, "offer_url", "offer_url is derived, not stored")
}

func TestCreateOffer_OverridesClientID(t *testing.T) {
	svc := setupService(t, memstore.New())

	p := offertest.Coupon("Schmancy")
	p["offer_id"] = "client-chosen"
	id := create(t, svc, p)

	assert.NotEqual(t, "client-chosen", id)
	got, err := svc.GetOffer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.OfferID)
}

func TestCreateOffer_EmptyTargetedCardNumbers(t *testing.T) {
	svc := setupService(t, memstore.New())

	p := offertest.Catalog("Fancy")
	p["targeted_card_numbers"] = []any{}
	id := create(t, svc, p)

	got, err := svc.GetOffer(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, got.TargetedCardNumbers)
}

func TestCreateOffer_UniqueIDs(t *testing.T) {
	svc := setupService(t, memstore.New())

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := create(t, svc, offertest.Coupon(fmt.Sprintf("offer %d", i)))
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCreateOffer_ValidationFailureWritesNothing(t *testing.T) {
	st := memstore.New()
	svc := setupService(t, st)

	p := offertest.OnlineCoupon("Think different")
	delete(p, "affiliate_url")

	_, err := svc.CreateOffer(context.Background(), p)
	var vErr *validation.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{"affiliate_url"}, vErr.Fields())

	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCreateOffer_NilPayload(t *testing.T) {
	svc := setupService(t, memstore.New())

	_, err := svc.CreateOffer(context.Background(), nil)
	assert.True(t, errors.Is(err, validation.ErrMalformedRequest))
}

func TestCreateOffer_StoreFailure(t *testing.T) {
	st := &faultyStore{Store: memstore.New(), failOn: map[string]error{"put": store.ErrUnavailable}}
	svc := setupService(t, st)

	_, err := svc.CreateOffer(context.Background(), offertest.Catalog("Fancy"))

	var sErr *StoreError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, "put", sErr.Op)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestGetOffer_RoundTrip(t *testing.T) {
	svc := setupService(t, memstore.New())

	for _, p := range offertest.All() {
		p["unknown"] = "dropped"
		id := create(t, svc, p)

		got, err := svc.GetOffer(context.Background(), id)
		require.NoError(t, err)

		want, err := mapper.Normalize(p)
		require.NoError(t, err)
		want.OfferID = id

		assert.Equal(t, want, got.Offer, "type %v", p["type"])
		assert.Equal(t, svc.OfferURL(id), got.OfferURL)
	}
}

func TestGetOffer_NotFound(t *testing.T) {
	svc := setupService(t, memstore.New())

	for _, id := range []string{uuid.New().String(), "not-a-uuid", ""} {
		_, err := svc.GetOffer(context.Background(), id)
		assert.True(t, errors.Is(err, ErrOfferNotFound), "id %q: %v", id, err)
	}
}

func TestGetOffer_CorruptRecord(t *testing.T) {
	st := memstore.New()
	svc := setupService(t, st)

	id := uuid.New().String()
	require.NoError(t, st.Put(context.Background(), id, []byte(`not json`)))

	_, err := svc.GetOffer(context.Background(), id)
	var invErr *mapper.InvariantError
	assert.True(t, errors.As(err, &invErr), "got %v", err)
}

func TestReplaceOffer(t *testing.T) {
	svc := setupService(t, memstore.New())
	id := create(t, svc, offertest.Catalog("Fancy"))

	p := offertest.Catalog("Fancier")
	p["offer_id"] = uuid.New().String()
	require.NoError(t, svc.ReplaceOffer(context.Background(), id, p))

	got, err := svc.GetOffer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Fancier", got.Title)
	assert.Equal(t, id, got.OfferID, "path id wins over body id")
}

func TestReplaceOffer_TypeIsImmutable(t *testing.T) {
	svc := setupService(t, memstore.New())
	id := create(t, svc, offertest.Catalog("Fancy"))

	err := svc.ReplaceOffer(context.Background(), id, offertest.Coupon("Now a coupon"))
	var vErr *validation.ValidationError
	require.True(t, errors.As(err, &vErr), "got %v", err)
	require.Len(t, vErr.Violations, 1)
	assert.Equal(t, "type", vErr.Violations[0].Field)
	assert.Equal(t, validation.ViolationImmutable, vErr.Violations[0].Kind)

	got, err := svc.GetOffer(context.Background(), id)
	require.NoError(t, err)
	assert.IsType(t, &models.Catalog{}, got.Variant)
	assert.Equal(t, "Fancy", got.Title)
}

func TestReplaceOffer_NotFoundIsNoUpsert(t *testing.T) {
	st := memstore.New()
	svc := setupService(t, st)

	err := svc.ReplaceOffer(context.Background(), uuid.New().String(), offertest.Catalog("Fancy"))
	assert.True(t, errors.Is(err, ErrOfferNotFound))

	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestReplaceOffer_InvalidPayloadKeepsPrior(t *testing.T) {
	svc := setupService(t, memstore.New())
	id := create(t, svc, offertest.Catalog("Fancy"))

	p := offertest.Catalog("Broken")
	delete(p, "pages")
	err := svc.ReplaceOffer(context.Background(), id, p)
	var vErr *validation.ValidationError
	require.True(t, errors.As(err, &vErr))

	got, err := svc.GetOffer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Fancy", got.Title)
}

func TestDeleteOffer_Idempotent(t *testing.T) {
	svc := setupService(t, memstore.New())
	id := create(t, svc, offertest.Coupon("Schmancy"))

	require.NoError(t, svc.DeleteOffer(context.Background(), id))
	require.NoError(t, svc.DeleteOffer(context.Background(), id))
	require.NoError(t, svc.DeleteOffer(context.Background(), "never-existed"))

	_, err := svc.GetOffer(context.Background(), id)
	assert.True(t, errors.Is(err, ErrOfferNotFound))
}

func TestDeleteOffer_StoreFailure(t *testing.T) {
	st := &faultyStore{Store: memstore.New(), failOn: map[string]error{"delete": errors.New("disk on fire")}}
	svc := setupService(t, st)

	err := svc.DeleteOffer(context.Background(), uuid.New().String())
	var sErr *StoreError
	assert.True(t, errors.As(err, &sErr))
}

func TestListOffers(t *testing.T) {
	svc := setupService(t, memstore.New())

	first := create(t, svc, offertest.Catalog("Fancy"))
	second := create(t, svc, offertest.Coupon("Schmancy"))
	third := create(t, svc, offertest.OnlineCoupon("Think different"))
	require.NoError(t, svc.DeleteOffer(context.Background(), second))

	list, err := svc.ListOffers(context.Background())
	require.NoError(t, err)

	require.Len(t, list.Offers, 2)
	assert.Equal(t, first, list.Offers[0].OfferID, "memstore keeps insertion order")
	assert.Equal(t, third, list.Offers[1].OfferID)
	for _, o := range list.Offers {
		assert.Equal(t, svc.OfferURL(o.OfferID), o.OfferURL)
	}
}

func TestListOffers_Empty(t *testing.T) {
	svc := setupService(t, memstore.New())

	list, err := svc.ListOffers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list.Offers)
	assert.Empty(t, list.Offers)
}

func TestListOffers_FailFast(t *testing.T) {
	st := &faultyStore{Store: memstore.New(), getKeys: map[string]error{}}
	svc := setupService(t, st)

	create(t, svc, offertest.Catalog("Fancy"))
	broken := create(t, svc, offertest.Coupon("Schmancy"))
	st.getKeys[broken] = errors.New("read failed")

	_, err := svc.ListOffers(context.Background())
	var sErr *StoreError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, broken, sErr.Key)
}

func TestListOffers_SkipsKeysDeletedMeanwhile(t *testing.T) {
	st := &faultyStore{Store: memstore.New(), getKeys: map[string]error{}}
	svc := setupService(t, st)

	kept := create(t, svc, offertest.Catalog("Fancy"))
	gone := create(t, svc, offertest.Coupon("Schmancy"))
	st.getKeys[gone] = store.ErrNotFound

	list, err := svc.ListOffers(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Offers, 1)
	assert.Equal(t, kept, list.Offers[0].OfferID)
}

// repeatingStore lists every key twice.
type repeatingStore struct {
	store.Store
}

func (r repeatingStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.Store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return append(keys, keys...), nil
}

func TestListOffers_RepeatedKeysListedOnce(t *testing.T) {
	svc := setupService(t, repeatingStore{Store: memstore.New()})

	first := create(t, svc, offertest.Catalog("Fancy"))
	second := create(t, svc, offertest.Coupon("Schmancy"))
	require.NoError(t, svc.DeleteOffer(context.Background(), first))

	list, err := svc.ListOffers(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Offers, 1)
	assert.Equal(t, second, list.Offers[0].OfferID)
}

func TestListOffers_KeysFailure(t *testing.T) {
	st := &faultyStore{Store: memstore.New(), failOn: map[string]error{"keys": store.ErrUnavailable}}
	svc := setupService(t, st)

	_, err := svc.ListOffers(context.Background())
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

// Writes a batch of offers and reads them all back, comparing by id.
func TestMockDataRoundTrip(t *testing.T) {
	svc := setupService(t, memstore.New())

	want := map[string]string{}
	for i := 0; i < 30; i++ {
		p := offertest.All()[i%3]
		p["title"] = fmt.Sprintf("offer %02d", i)
		id := create(t, svc, p)
		want[id] = p["title"].(string)
	}

	list, err := svc.ListOffers(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Offers, len(want))

	sort.Slice(list.Offers, func(i, j int) bool { return list.Offers[i].OfferID < list.Offers[j].OfferID })
	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, o := range list.Offers {
		assert.Equal(t, ids[i], o.OfferID)
		assert.Equal(t, want[o.OfferID], o.Title)
	}
}

func TestEventsPublished(t *testing.T) {
	logger, _ := test.NewNullLogger()
	manager := events.NewManager(true, logger)

	var mu sync.Mutex
	var got []events.EventType
	record := func(ctx context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type)
		return nil
	}
	manager.Subscribe(events.EventOfferCreated, record)
	manager.Subscribe(events.EventOfferReplaced, record)
	manager.Subscribe(events.EventOfferDeleted, record)

	svc, err := NewService(memstore.New(), Options{PublicURL: "http://localhost:5000", Events: manager})
	require.NoError(t, err)

	id := create(t, svc, offertest.Catalog("Fancy"))
	require.NoError(t, svc.ReplaceOffer(context.Background(), id, offertest.Catalog("Fancier")))
	require.NoError(t, svc.DeleteOffer(context.Background(), id))
	require.NoError(t, svc.DeleteOffer(context.Background(), "not-a-uuid"))
	manager.Shutdown()

	assert.ElementsMatch(t, []events.EventType{
		events.EventOfferCreated, events.EventOfferReplaced, events.EventOfferDeleted,
	}, got)
}

func TestOfferURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:5000", "http://localhost:5000/offers/abc"},
		{"http://localhost:5000/", "http://localhost:5000/offers/abc"},
		{"https://api.example.com/v1/", "https://api.example.com/v1/offers/abc"},
	}
	for _, tt := range tests {
		svc, err := NewService(memstore.New(), Options{PublicURL: tt.base})
		require.NoError(t, err)
		assert.Equal(t, tt.want, svc.OfferURL("abc"))
	}
}

func TestNewService_RejectsRelativeURL(t *testing.T) {
	_, err := NewService(memstore.New(), Options{PublicURL: "localhost"})
	assert.Error(t, err)
}
