package keyrelay_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kr "github.com/ineyio/keyrelay"
	"github.com/ineyio/keyrelay/provider/mock"
)

func TestHealthTracker_DegradesAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	h := kr.NewHealthTracker(kr.WithHealthClock(clock.Now))

	h.RecordFailure("A")
	h.RecordFailure("A")
	assert.Equal(t, kr.HealthHealthy, h.State("A"))

	h.RecordFailure("A")
	assert.Equal(t, kr.HealthDegraded, h.State("A"))
	assert.Equal(t, kr.HealthHealthy, h.State("B"))
}

func TestHealthTracker_WindowExpires(t *testing.T) {
	clock := newFakeClock()
	h := kr.NewHealthTracker(kr.WithHealthClock(clock.Now))

	for i := 0; i < 3; i++ {
		h.RecordFailure("A")
	}
	require.Equal(t, kr.HealthDegraded, h.State("A"))

	clock.Advance(6 * time.Minute)
	assert.Equal(t, kr.HealthHealthy, h.State("A"))
}

func TestHealthTracker_SuccessResets(t *testing.T) {
	h := kr.NewHealthTracker()
	for i := 0; i < 3; i++ {
		h.RecordFailure("A")
	}
	h.RecordSuccess("A")
	assert.Equal(t, kr.HealthHealthy, h.State("A"))
}

// A degraded credential stays in rotation.
func TestDispatch_DegradedCredentialStillTried(t *testing.T) {
	pool := newPool(t, "A", "B")
	u, _ := newUsage(t, pool, newFakeClock())
	up := mock.New(mock.WithStatus("A", http.StatusInternalServerError))
	d := newTestDispatcher(t, pool, u, up)

	for i := 0; i < 8; i++ {
		res, err := d.Dispatch(context.Background(), testCall)
		require.NoError(t, err)
		res.Response.Body.Close()
	}

	assert.Equal(t, kr.HealthDegraded, d.Health().State("A"))
	assert.Equal(t, kr.HealthHealthy, d.Health().State("B"))
	assert.Equal(t, int64(4), u.Count("A"))
	assert.Equal(t, int64(4), u.Count("B"))
}

func TestDispatch_TransportFailuresDegrade(t *testing.T) {
	pool := newPool(t, "A")
	u, _ := newUsage(t, pool, newFakeClock())
	h := kr.NewHealthTracker()
	d := newTestDispatcher(t, pool, u, mock.New(mock.WithError(errors.New("reset"))), kr.WithHealthTracker(h))

	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(context.Background(), testCall)
		require.Error(t, err)
	}
	assert.Equal(t, kr.HealthDegraded, h.State("A"))
}
