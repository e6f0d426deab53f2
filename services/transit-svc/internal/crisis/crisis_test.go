package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/pkg/logger"
)

func newController(t *testing.T, opts ...Option) (*Controller, *domain.Network) {
	t.Helper()
	network, err := domain.NewNetworkFromDataset(domain.MustDefaultDataset())
	require.NoError(t, err)
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	return New(network, opts...), network
}

func protect(t *testing.T, c *Controller, a, b string, kind Kind) {
	t.Helper()
	require.NoError(t, c.Enter())
	require.NoError(t, c.SelectProtected(a))
	require.NoError(t, c.SelectProtected(b))
	require.NoError(t, c.ChooseKind(kind))
}

func TestController_DestroyHongKong(t *testing.T) {
	var removed []domain.Route
	c, network := newController(t, WithRoutesRemoved(func(r []domain.Route) { removed = append(removed, r...) }))

	before := network.FindAllSimplePaths("Shanghai", "Singapore")
	protect(t, c, "Shanghai", "Singapore", KindCity)

	res, err := c.DestroyCity("Hong Kong")
	require.NoError(t, err)

	assert.Equal(t, "Simulation of transport involving the city of Hong Kong is destroyed.", res.Message)
	assert.Len(t, removed, 7)
	assert.Equal(t, 7, res.Item.RoutesRemoved)
	assert.False(t, network.HasLocation("Hong Kong"))
	assert.Equal(t, StateNormal, c.State())

	require.NotNil(t, res.Analysis)
	assert.Equal(t, "Shanghai", res.Analysis.Origin)
	assert.Equal(t, "Singapore", res.Analysis.Destination)
	assert.Less(t, len(res.Analysis.Paths), len(before))
	for _, p := range res.Analysis.Paths {
		assert.NotContains(t, p.Locations(), "Hong Kong")
	}
	assert.Equal(t, network.Version(), res.Analysis.NetworkVersion)

	snap := c.Snapshot()
	assert.Equal(t, []string{"Shanghai", "Singapore"}, snap.Protected)
	require.Len(t, snap.Destroyed, 1)
	assert.Equal(t, "Hong Kong", snap.Destroyed[0].Label())
}

func TestController_SmallNetwork(t *testing.T) {
	network, err := domain.NewNetwork(
		[]domain.Location{{ID: "Shanghai"}, {ID: "Hong Kong"}, {ID: "Singapore"}},
		[]domain.Route{
			{Origin: "Shanghai", Destination: "Hong Kong", Mode: domain.ModeSea, Cost: 358, Time: 72, Environment: 50},
			{Origin: "Hong Kong", Destination: "Singapore", Mode: domain.ModeAir, Cost: 3669, Time: 7, Environment: 88},
			{Origin: "Shanghai", Destination: "Singapore", Mode: domain.ModeSea, Cost: 550, Time: 336, Environment: 60},
		},
	)
	require.NoError(t, err)
	require.Len(t, network.FindAllSimplePaths("Shanghai", "Singapore"), 2)

	c := New(network, WithLogger(logger.Discard()))
	protect(t, c, "Shanghai", "Singapore", KindCity)

	res, err := c.DestroyCity("Hong Kong")
	require.NoError(t, err)
	require.Len(t, res.Analysis.Paths, 1)
	assert.Equal(t, []string{"Shanghai", "Singapore"}, res.Analysis.Paths[0].Locations())
}

func TestController_DestroyRoute(t *testing.T) {
	c, network := newController(t)
	protect(t, c, "Shanghai", "Singapore", KindRoute)

	res, err := c.DestroyRoute("Shanghai", "Hong Kong", domain.ModeAir)
	require.NoError(t, err)
	assert.Equal(t, "Simulation of the Air transport between Shanghai and Hong Kong is destroyed.", res.Message)
	assert.Len(t, network.Routes(), 14)

	_, ok := network.FindRoute("Shanghai", "Hong Kong", domain.ModeAir)
	assert.False(t, ok)
	_, ok = network.FindRoute("Shanghai", "Hong Kong", domain.ModeSea)
	assert.True(t, ok)
	require.NotNil(t, res.Analysis)
}

func TestController_ProtectedCityRejected(t *testing.T) {
	c, network := newController(t)
	protect(t, c, "Shanghai", "Singapore", KindCity)

	_, err := c.DestroyCity("Shanghai")
	assert.True(t, apperror.Is(err, apperror.CodeProtectedLocation))
	assert.True(t, apperror.IsState(err))
	assert.True(t, network.HasLocation("Shanghai"))
	assert.Equal(t, StateAwaitingTarget, c.State())
}

func TestController_UnknownTargetIsNoop(t *testing.T) {
	c, network := newController(t)
	protect(t, c, "Shanghai", "Singapore", KindRoute)
	version := network.Version()

	_, err := c.DestroyRoute("Dubai", "Tokyo", domain.ModeLand)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, version, network.Version())
	assert.Equal(t, StateAwaitingTarget, c.State())
	assert.Empty(t, c.Snapshot().Destroyed)
}

func TestController_KindMismatch(t *testing.T) {
	c, _ := newController(t)
	protect(t, c, "Shanghai", "Singapore", KindRoute)

	_, err := c.DestroyCity("Tokyo")
	assert.True(t, apperror.Is(err, apperror.CodeInvalidState))

	require.NoError(t, c.ChooseKind(KindCity))
	_, err = c.DestroyCity("Tokyo")
	assert.NoError(t, err)
}

func TestController_SelectProtected(t *testing.T) {
	c, _ := newController(t)

	err := c.SelectProtected("Tokyo")
	assert.True(t, apperror.Is(err, apperror.CodeInvalidState), "select before Enter")

	require.NoError(t, c.Enter())
	assert.True(t, apperror.Is(c.Enter(), apperror.CodeInvalidState), "double Enter")

	assert.True(t, apperror.IsValidation(c.SelectProtected("Atlantis")))
	require.NoError(t, c.SelectProtected("Tokyo"))

	err = c.SelectProtected("Tokyo")
	assert.True(t, apperror.IsWarning(err))
	assert.Equal(t, StateProtecting, c.State())

	assert.True(t, apperror.Is(c.ChooseKind(KindCity), apperror.CodeInvalidState))

	require.NoError(t, c.SelectProtected("Dubai"))
	assert.Equal(t, StateChoosingKind, c.State())

	err = c.SelectProtected("Mumbai")
	assert.True(t, apperror.Is(err, apperror.CodeEndpointLimit))
	assert.Equal(t, []string{"Tokyo", "Dubai"}, c.Snapshot().Protected)
}

func TestController_ChooseKindInvalid(t *testing.T) {
	c, _ := newController(t)
	require.NoError(t, c.Enter())
	require.NoError(t, c.SelectProtected("Tokyo"))
	require.NoError(t, c.SelectProtected("Dubai"))

	assert.True(t, apperror.Is(c.ChooseKind("bridge"), apperror.CodeInvalidKind))
	assert.Equal(t, StateChoosingKind, c.State())
}

func TestController_CancelKeepsNetwork(t *testing.T) {
	c, network := newController(t)
	assert.True(t, apperror.IsWarning(c.Cancel()))

	protect(t, c, "Shanghai", "Singapore", KindCity)
	_, err := c.DestroyCity("Tokyo")
	require.NoError(t, err)

	version := network.Version()
	require.NoError(t, c.Enter())
	require.NoError(t, c.Cancel())

	snap := c.Snapshot()
	assert.Equal(t, StateNormal, snap.State)
	assert.Empty(t, snap.Protected)
	assert.Len(t, snap.Destroyed, 1)
	assert.Equal(t, version, network.Version())
}

func TestController_RestoreAll(t *testing.T) {
	c, network := newController(t)
	protect(t, c, "Shanghai", "Singapore", KindCity)
	_, err := c.DestroyCity("Hong Kong")
	require.NoError(t, err)

	require.NoError(t, c.RestoreAll(domain.MustDefaultDataset()))
	assert.True(t, network.HasLocation("Hong Kong"))
	assert.Len(t, network.Routes(), 15)
	assert.Empty(t, c.Snapshot().Destroyed)
	assert.Nil(t, c.Analyze())

	assert.ErrorIs(t, c.RestoreAll(nil), apperror.ErrNilNetwork)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" City ")
	require.NoError(t, err)
	assert.Equal(t, KindCity, k)

	_, err = ParseKind("tunnel")
	assert.True(t, apperror.Is(err, apperror.CodeInvalidKind))
}
