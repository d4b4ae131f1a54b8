package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tenancy-engine/api"
	"github.com/warp/tenancy-engine/notify"
	"go.uber.org/zap"
)

func TestJobScheduler_RunsEachJobOncePerDay(t *testing.T) {
	s := newServer(t)
	s.load(t, "arrears")

	js := api.NewJobScheduler(s.engine, s.occupancy, zap.NewNop())
	js.Now = func() time.Time { return s.now.Add(10 * time.Hour) }

	// WHEN: the scheduler checks twice on the same day
	ran := js.RunNow(context.Background())
	again := js.RunNow(context.Background())

	// THEN: every job ran once
	assert.Equal(t, []string{api.JobExpireLeases, api.JobChargeRent, api.JobLateFees, api.JobReminders}, ran)
	assert.Empty(t, again)

	// AND: rent was already charged by the scenario, late fees were applied
	fees := decode[[]api.EntryDTO](t, s.do(t, http.MethodGet, "/api/payments?category=late_fee", nil))
	require.Len(t, fees, 2)
	assert.Equal(t, "scheduler", fees[0].CreatedBy)
}

func TestJobScheduler_RentWaitsForRentDay(t *testing.T) {
	s := newServer(t)
	s.load(t, "single-building")

	js := api.NewJobScheduler(s.engine, s.occupancy, zap.NewNop())
	js.RentDay = 20
	js.LateFees = false
	js.Reminders = false
	js.Now = func() time.Time { return s.now.Add(10 * time.Hour) }

	assert.Equal(t, []string{api.JobExpireLeases}, js.RunNow(context.Background()))

	// Five days later rent is due; April has not started, so March is
	// already charged and nothing new is written.
	before := len(s.notes.Calls())
	js.Now = func() time.Time { return s.now.AddDate(0, 0, 5) }
	assert.Equal(t, []string{api.JobExpireLeases, api.JobChargeRent}, js.RunNow(context.Background()))
	assert.Len(t, s.notes.Calls(), before)
}

func TestJobScheduler_ExpiresEndedLeases(t *testing.T) {
	s := newServer(t)
	s.load(t, "turnover")

	js := api.NewJobScheduler(s.engine, s.occupancy, zap.NewNop())
	js.LateFees = false
	js.Reminders = false
	// Brian's lease ends 30 days after the scenario date.
	js.Now = func() time.Time { return s.now.AddDate(0, 0, 31) }
	js.RunNow(context.Background())

	leases := decode[[]api.LeaseDTO](t, s.do(t, http.MethodGet, "/api/leases?tenant_id=t-brian", nil))
	require.Len(t, leases, 1)
	assert.Equal(t, "EXPIRED", leases[0].Status)

	var kinds []notify.Kind
	for _, c := range s.notes.Calls() {
		kinds = append(kinds, c.Kind)
	}
	assert.Contains(t, kinds, notify.KindRentCharged) // April rent
}

func TestJobScheduler_StartStop(t *testing.T) {
	s := newServer(t)
	js := api.NewJobScheduler(s.engine, s.occupancy, zap.NewNop())
	js.CheckInterval = time.Hour
	js.Start()
	js.Start()
	js.Stop()
	js.Stop()

	js.Enabled = false
	js.Start()
	js.Stop()
}
