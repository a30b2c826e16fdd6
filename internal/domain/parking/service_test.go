package parking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkcore/internal/core/apperror"
	"parkcore/internal/core/id"
	"parkcore/internal/core/tx"
	"parkcore/internal/core/types"
)

// --- In-memory store with snapshot/restore ---
//
// The store stands in for the database: the transaction manager takes a
// snapshot at begin and per savepoint, and restores it on rollback, so
// the service's transactional behavior is observable without Postgres.

type storeState struct {
	spots    map[id.ID]Spot
	vehicles map[id.ID]Vehicle
	sessions map[id.ID]Session
}

func (s storeState) clone() storeState {
	out := storeState{
		spots:    make(map[id.ID]Spot, len(s.spots)),
		vehicles: make(map[id.ID]Vehicle, len(s.vehicles)),
		sessions: make(map[id.ID]Session, len(s.sessions)),
	}
	for k, v := range s.spots {
		out.spots[k] = v
	}
	for k, v := range s.vehicles {
		out.vehicles[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	return out
}

type memStore struct {
	state storeState

	// failure hooks
	vehicleCreateErr error
	batchErrOn       *id.ID
	batchErr         error
}

func newMemStore() *memStore {
	return &memStore{state: storeState{
		spots:    make(map[id.ID]Spot),
		vehicles: make(map[id.ID]Vehicle),
		sessions: make(map[id.ID]Session),
	}}
}

// --- Transaction manager over the store ---

type memTxManager struct {
	mu       sync.Mutex
	store    *memStore
	log      []string
	saves    map[tx.Savepoint]storeState
	seq      int
	lastOpts tx.Options
}

func newMemTxManager(store *memStore) *memTxManager {
	return &memTxManager{store: store}
}

func (m *memTxManager) Execute(ctx context.Context, opts tx.Options, fn tx.Func) tx.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastOpts = opts

	start := time.Now()
	txc := &tx.Context{ID: id.New(), StartedAt: start, Priority: opts.Priority, Metadata: opts.Metadata}
	ctx = tx.WithContext(ctx, txc)

	begin := m.store.state.clone()
	m.saves = make(map[tx.Savepoint]storeState)

	data, err := fn(ctx)

	res := tx.Result{
		TxID:      txc.ID,
		StartedAt: start,
		Duration:  time.Since(start),
		Priority:  opts.Priority,
	}
	if err != nil {
		m.store.state = begin
		res.Err = err
		return res
	}
	res.Success = true
	res.Data = data
	return res
}

func (m *memTxManager) Savepoint(_ context.Context, label string) (tx.Savepoint, error) {
	m.seq++
	sp := tx.Savepoint(fmt.Sprintf("%s_%d", label, m.seq))
	m.saves[sp] = m.store.state.clone()
	m.log = append(m.log, "SAVEPOINT "+label)
	return sp, nil
}

func (m *memTxManager) Release(_ context.Context, sp tx.Savepoint) error {
	delete(m.saves, sp)
	m.log = append(m.log, "RELEASE "+string(sp))
	return nil
}

func (m *memTxManager) RollbackTo(_ context.Context, sp tx.Savepoint) error {
	state, ok := m.saves[sp]
	if !ok {
		return errors.New("unknown savepoint")
	}
	m.store.state = state
	m.log = append(m.log, "ROLLBACK TO "+string(sp))
	return nil
}

func (m *memTxManager) Stats() tx.Statistics { return tx.Statistics{} }

func (m *memTxManager) logContains(prefix string) bool {
	for _, entry := range m.log {
		if strings.HasPrefix(entry, prefix) {
			return true
		}
	}
	return false
}

// --- Repositories over the store ---

type memSpotRepo struct{ s *memStore }

func (r *memSpotRepo) Create(_ context.Context, spot *Spot) error {
	r.s.state.spots[spot.ID] = *spot
	return nil
}

func (r *memSpotRepo) GetByID(_ context.Context, spotID id.ID) (*Spot, error) {
	spot, ok := r.s.state.spots[spotID]
	if !ok {
		return nil, apperror.NewNotFound("spot", spotID.String())
	}
	return &spot, nil
}

func (r *memSpotRepo) GetByIDForUpdate(ctx context.Context, spotID id.ID) (*Spot, error) {
	return r.GetByID(ctx, spotID)
}

func (r *memSpotRepo) Update(_ context.Context, spot *Spot) error {
	if _, ok := r.s.state.spots[spot.ID]; !ok {
		return apperror.NewNotFound("spot", spot.ID.String())
	}
	spot.Version++
	r.s.state.spots[spot.ID] = *spot
	return nil
}

func (r *memSpotRepo) UpdateStatusBatch(_ context.Context, ids []id.ID, status SpotStatus) ([]*Spot, error) {
	if r.s.batchErr != nil && r.s.batchErrOn != nil {
		for _, spotID := range ids {
			if spotID == *r.s.batchErrOn {
				return nil, r.s.batchErr
			}
		}
	}

	var updated []*Spot
	for _, spotID := range ids {
		spot, ok := r.s.state.spots[spotID]
		if !ok || spot.Status == SpotOccupied {
			continue
		}
		spot.Status = status
		spot.Version++
		r.s.state.spots[spotID] = spot
		out := spot
		updated = append(updated, &out)
	}
	return updated, nil
}

func (r *memSpotRepo) ListByStatus(_ context.Context, status SpotStatus) ([]*Spot, error) {
	var out []*Spot
	for _, spot := range r.s.state.spots {
		if spot.Status == status {
			s := spot
			out = append(out, &s)
		}
	}
	return out, nil
}

type memVehicleRepo struct{ s *memStore }

func (r *memVehicleRepo) Create(_ context.Context, vehicle *Vehicle) error {
	if r.s.vehicleCreateErr != nil {
		return r.s.vehicleCreateErr
	}
	r.s.state.vehicles[vehicle.ID] = *vehicle
	return nil
}

func (r *memVehicleRepo) GetByID(_ context.Context, vehicleID id.ID) (*Vehicle, error) {
	vehicle, ok := r.s.state.vehicles[vehicleID]
	if !ok {
		return nil, apperror.NewNotFound("vehicle", vehicleID.String())
	}
	return &vehicle, nil
}

func (r *memVehicleRepo) GetByPlate(_ context.Context, plate string) (*Vehicle, error) {
	for _, vehicle := range r.s.state.vehicles {
		if vehicle.Plate == NormalizePlate(plate) {
			v := vehicle
			return &v, nil
		}
	}
	return nil, apperror.NewNotFound("vehicle", plate)
}

func (r *memVehicleRepo) Update(_ context.Context, vehicle *Vehicle) error {
	vehicle.Version++
	r.s.state.vehicles[vehicle.ID] = *vehicle
	return nil
}

type memSessionRepo struct{ s *memStore }

// Create mirrors the partial unique indexes: at most one ACTIVE session
// per spot and per vehicle.
func (r *memSessionRepo) Create(_ context.Context, session *Session) error {
	for _, existing := range r.s.state.sessions {
		if existing.Status != SessionActive {
			continue
		}
		if existing.SpotID == session.SpotID {
			return apperror.NewConflict("spot already has an active session")
		}
		if existing.VehicleID == session.VehicleID {
			return apperror.NewConflict("vehicle already parked")
		}
	}
	r.s.state.sessions[session.ID] = *session
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, sessionID id.ID) (*Session, error) {
	session, ok := r.s.state.sessions[sessionID]
	if !ok {
		return nil, apperror.NewNotFound("session", sessionID.String())
	}
	return &session, nil
}

func (r *memSessionRepo) FindActiveByVehicle(_ context.Context, vehicleID id.ID) (*Session, error) {
	for _, session := range r.s.state.sessions {
		if session.VehicleID == vehicleID && session.Status == SessionActive {
			s := session
			return &s, nil
		}
	}
	return nil, apperror.NewNotFound("active session", vehicleID.String())
}

func (r *memSessionRepo) FindActiveBySpot(_ context.Context, spotID id.ID) (*Session, error) {
	for _, session := range r.s.state.sessions {
		if session.SpotID == spotID && session.Status == SessionActive {
			s := session
			return &s, nil
		}
	}
	return nil, apperror.NewNotFound("active session", spotID.String())
}

func (r *memSessionRepo) Update(_ context.Context, session *Session) error {
	session.Version++
	r.s.state.sessions[session.ID] = *session
	return nil
}

func (r *memSessionRepo) ListActive(_ context.Context) ([]*Session, error) {
	var out []*Session
	for _, session := range r.s.state.sessions {
		if session.Status == SessionActive {
			s := session
			out = append(out, &s)
		}
	}
	return out, nil
}

// --- Fixture ---

type fixture struct {
	store *memStore
	txm   *memTxManager
	svc   *Service
}

func newFixture() *fixture {
	store := newMemStore()
	txm := newMemTxManager(store)
	svc := NewService(&memSpotRepo{store}, &memVehicleRepo{store}, &memSessionRepo{store}, txm, nil)
	return &fixture{store: store, txm: txm, svc: svc}
}

func (f *fixture) addSpot(code string, class SpotClass, status SpotStatus, rate string) *Spot {
	now := time.Now().UTC()
	spot := Spot{
		ID:         id.New(),
		Code:       code,
		Class:      class,
		Status:     status,
		HourlyRate: types.MustMoney(rate),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.store.state.spots[spot.ID] = spot
	return &spot
}

func (f *fixture) park(t *testing.T, plate string, class VehicleClass, spotID id.ID) *ParkOutcome {
	t.Helper()
	res := f.svc.Park(context.Background(), ParkRequest{
		Vehicle: VehicleInput{Plate: plate, Class: class},
		SpotID:  spotID,
	})
	require.True(t, res.Success, "park failed: %v", res.Err)
	return res.Data.(*ParkOutcome)
}

// --- Park ---

func TestPark_NewVehicle(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")

	res := f.svc.Park(context.Background(), ParkRequest{
		Vehicle: VehicleInput{Plate: " ab-123 ", Class: VehicleStandard},
		SpotID:  spot.ID,
	})

	require.True(t, res.Success, "park failed: %v", res.Err)
	assert.Equal(t, tx.PriorityHigh, res.Priority)
	assert.NotEqual(t, id.Nil(), res.TxID)

	outcome := res.Data.(*ParkOutcome)
	assert.Equal(t, "AB-123", outcome.Vehicle.Plate)
	assert.Equal(t, SessionActive, outcome.Session.Status)
	assert.Equal(t, SpotOccupied, outcome.Spot.Status)
	require.NotNil(t, outcome.Spot.OccupantID)
	assert.Equal(t, outcome.Vehicle.ID, *outcome.Spot.OccupantID)

	// vehicle registration went through its savepoint
	assert.True(t, f.txm.logContains("SAVEPOINT create_vehicle"))
	assert.True(t, f.txm.logContains("RELEASE create_vehicle"))

	stored := f.store.state.spots[spot.ID]
	assert.Equal(t, SpotOccupied, stored.Status)
}

func TestPark_ExistingVehicleNotRecreated(t *testing.T) {
	f := newFixture()
	spotA := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	spotB := f.addSpot("A-02", SpotStandard, SpotAvailable, "5.00")

	first := f.park(t, "AB-123", VehicleStandard, spotA.ID)

	exitRes := f.svc.ExitVehicle(context.Background(), ExitRequest{Plate: "AB-123"})
	require.True(t, exitRes.Success)

	second := f.park(t, "AB-123", VehicleStandard, spotB.ID)
	assert.Equal(t, first.Vehicle.ID, second.Vehicle.ID)
	assert.Len(t, f.store.state.vehicles, 1)
}

func TestPark_SpotNotAvailable(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("M-01", SpotStandard, SpotMaintenance, "5.00")

	res := f.svc.Park(context.Background(), ParkRequest{
		Vehicle: VehicleInput{Plate: "AB-123", Class: VehicleStandard},
		SpotID:  spot.ID,
	})

	require.False(t, res.Success)
	assert.True(t, apperror.IsInvalidState(res.Err))
}

func TestPark_VehicleAlreadyParked(t *testing.T) {
	f := newFixture()
	spotA := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	spotB := f.addSpot("A-02", SpotStandard, SpotAvailable, "5.00")

	f.park(t, "AB-123", VehicleStandard, spotA.ID)

	res := f.svc.Park(context.Background(), ParkRequest{
		Vehicle: VehicleInput{Plate: "AB-123", Class: VehicleStandard},
		SpotID:  spotB.ID,
	})

	require.False(t, res.Success)
	assert.True(t, apperror.IsConflict(res.Err))
	// second spot untouched
	assert.Equal(t, SpotAvailable, f.store.state.spots[spotB.ID].Status)
}

func TestPark_IncompatibleClass(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("C-01", SpotCompact, SpotAvailable, "3.00")

	res := f.svc.Park(context.Background(), ParkRequest{
		Vehicle: VehicleInput{Plate: "TRUCK-1", Class: VehicleOversized},
		SpotID:  spot.ID,
	})

	require.False(t, res.Success)
	appErr, ok := apperror.AsAppError(res.Err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestPark_BlockedVehicleRejected(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")

	vehicle := NewVehicle("BAD-1", VehicleStandard)
	vehicle.Status = VehicleBanned
	f.store.state.vehicles[vehicle.ID] = *vehicle

	res := f.svc.Park(context.Background(), ParkRequest{
		Vehicle: VehicleInput{Plate: "BAD-1", Class: VehicleStandard},
		SpotID:  spot.ID,
	})

	require.False(t, res.Success)
	assert.True(t, apperror.IsInvalidState(res.Err))
}

func TestPark_VehicleCreateFailureRollsBackSavepoint(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")

	createErr := errors.New("insert rejected")
	f.store.vehicleCreateErr = createErr

	res := f.svc.Park(context.Background(), ParkRequest{
		Vehicle: VehicleInput{Plate: "AB-123", Class: VehicleStandard},
		SpotID:  spot.ID,
	})

	require.False(t, res.Success)
	// the original failure surfaces, not the rollback
	assert.ErrorIs(t, res.Err, createErr)
	assert.True(t, f.txm.logContains("SAVEPOINT create_vehicle"))
	assert.True(t, f.txm.logContains("ROLLBACK TO create_vehicle"))

	assert.Empty(t, f.store.state.vehicles)
	assert.Equal(t, SpotAvailable, f.store.state.spots[spot.ID].Status)
}

func TestPark_ConcurrentOneWinner(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")

	const n = 8
	var wg sync.WaitGroup
	results := make([]tx.Result, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.svc.Park(context.Background(), ParkRequest{
				Vehicle: VehicleInput{Plate: fmt.Sprintf("CAR-%d", i), Class: VehicleStandard},
				SpotID:  spot.ID,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		} else {
			assert.True(t, apperror.IsInvalidState(res.Err) || apperror.IsConflict(res.Err),
				"unexpected error: %v", res.Err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, SpotOccupied, f.store.state.spots[spot.ID].Status)
}

// --- Exit ---

func TestExitVehicle(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")

	entry := time.Now().UTC().Add(-90 * time.Minute)
	res := f.svc.Park(context.Background(), ParkRequest{
		Vehicle:   VehicleInput{Plate: "AB-123", Class: VehicleStandard},
		SpotID:    spot.ID,
		EntryTime: &entry,
	})
	require.True(t, res.Success)

	exitRes := f.svc.ExitVehicle(context.Background(), ExitRequest{Plate: "ab-123"})
	require.True(t, exitRes.Success, "exit failed: %v", exitRes.Err)

	outcome := exitRes.Data.(*ExitOutcome)
	assert.Equal(t, SessionCompleted, outcome.Session.Status)
	assert.Equal(t, int64(2), outcome.Payment.Hours)
	assert.Equal(t, "10.00", outcome.Payment.Amount)

	stored := f.store.state.spots[spot.ID]
	assert.Equal(t, SpotAvailable, stored.Status)
	assert.Nil(t, stored.OccupantID)
}

func TestExitVehicle_NoActiveSession(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")

	f.park(t, "AB-123", VehicleStandard, spot.ID)
	require.True(t, f.svc.ExitVehicle(context.Background(), ExitRequest{Plate: "AB-123"}).Success)

	res := f.svc.ExitVehicle(context.Background(), ExitRequest{Plate: "AB-123"})
	require.False(t, res.Success)
	assert.True(t, apperror.IsInvalidState(res.Err))
}

func TestExitVehicle_UnknownPlate(t *testing.T) {
	f := newFixture()

	res := f.svc.ExitVehicle(context.Background(), ExitRequest{Plate: "GHOST"})
	require.False(t, res.Success)
	assert.True(t, apperror.IsNotFound(res.Err))
}

func TestExitVehicle_ExitBeforeEntryRejected(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")

	f.park(t, "AB-123", VehicleStandard, spot.ID)

	past := time.Now().UTC().Add(-time.Hour)
	res := f.svc.ExitVehicle(context.Background(), ExitRequest{Plate: "AB-123", ExitTime: &past})
	require.False(t, res.Success)

	// session still active, spot still occupied
	assert.Equal(t, SpotOccupied, f.store.state.spots[spot.ID].Status)
}

// --- Transfer ---

func TestTransferVehicle(t *testing.T) {
	f := newFixture()
	from := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	to := f.addSpot("A-02", SpotStandard, SpotAvailable, "7.00")

	parked := f.park(t, "AB-123", VehicleStandard, from.ID)

	res := f.svc.TransferVehicle(context.Background(), TransferRequest{
		FromSpotID: from.ID,
		ToSpotID:   to.ID,
		Reason:     "maintenance",
	})
	require.True(t, res.Success, "transfer failed: %v", res.Err)
	assert.Equal(t, tx.PriorityNormal, res.Priority)
	assert.True(t, f.txm.lastOpts.Serializable)

	outcome := res.Data.(*TransferOutcome)
	assert.Equal(t, to.ID, outcome.Session.SpotID)
	assert.Equal(t, SpotAvailable, outcome.FromSpot.Status)
	assert.Nil(t, outcome.FromSpot.OccupantID)
	assert.Equal(t, SpotOccupied, outcome.ToSpot.Status)
	require.NotNil(t, outcome.ToSpot.OccupantID)
	assert.Equal(t, parked.Vehicle.ID, *outcome.ToSpot.OccupantID)
}

func TestTransferVehicle_SameSpot(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")

	res := f.svc.TransferVehicle(context.Background(), TransferRequest{
		FromSpotID: spot.ID,
		ToSpotID:   spot.ID,
	})
	require.False(t, res.Success)
	appErr, ok := apperror.AsAppError(res.Err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestTransferVehicle_SourceNotOccupied(t *testing.T) {
	f := newFixture()
	from := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	to := f.addSpot("A-02", SpotStandard, SpotAvailable, "5.00")

	res := f.svc.TransferVehicle(context.Background(), TransferRequest{
		FromSpotID: from.ID,
		ToSpotID:   to.ID,
	})
	require.False(t, res.Success)
	assert.True(t, apperror.IsInvalidState(res.Err))

	// nothing mutated
	assert.Equal(t, SpotAvailable, f.store.state.spots[from.ID].Status)
	assert.Equal(t, SpotAvailable, f.store.state.spots[to.ID].Status)
}

func TestTransferVehicle_DestinationOccupied(t *testing.T) {
	f := newFixture()
	from := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	to := f.addSpot("A-02", SpotStandard, SpotAvailable, "5.00")

	f.park(t, "AB-123", VehicleStandard, from.ID)
	f.park(t, "CD-456", VehicleStandard, to.ID)

	res := f.svc.TransferVehicle(context.Background(), TransferRequest{
		FromSpotID: from.ID,
		ToSpotID:   to.ID,
	})
	require.False(t, res.Success)
	assert.True(t, apperror.IsInvalidState(res.Err))
}

// --- Bulk status updates ---

func TestBulkUpdateSpotStatus(t *testing.T) {
	f := newFixture()
	a := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	b := f.addSpot("A-02", SpotStandard, SpotAvailable, "5.00")
	missing := id.New()

	res := f.svc.BulkUpdateSpotStatus(context.Background(), BulkUpdateRequest{
		SpotIDs:      []id.ID{a.ID, missing, b.ID},
		TargetStatus: SpotMaintenance,
		Reason:       "floor cleaning",
	})
	require.True(t, res.Success, "bulk update failed: %v", res.Err)

	outcome := res.Data.(*BulkOutcome)
	assert.Equal(t, 2, outcome.UpdatedCount)
	assert.Len(t, outcome.Spots, 2)
	assert.Equal(t, SpotMaintenance, f.store.state.spots[a.ID].Status)
	assert.Equal(t, SpotMaintenance, f.store.state.spots[b.ID].Status)
}

func TestBulkUpdateSpotStatus_SkipsOccupiedSpots(t *testing.T) {
	f := newFixture()
	occupied := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	free := f.addSpot("A-02", SpotStandard, SpotAvailable, "5.00")

	parked := f.park(t, "AB-123", VehicleStandard, occupied.ID)

	res := f.svc.BulkUpdateSpotStatus(context.Background(), BulkUpdateRequest{
		SpotIDs:      []id.ID{occupied.ID, free.ID},
		TargetStatus: SpotMaintenance,
	})
	require.True(t, res.Success, "bulk update failed: %v", res.Err)

	outcome := res.Data.(*BulkOutcome)
	assert.Equal(t, 1, outcome.UpdatedCount)
	require.Len(t, outcome.Spots, 1)
	assert.Equal(t, free.ID, outcome.Spots[0].ID)

	// the occupied spot keeps its status, occupant and active session
	stored := f.store.state.spots[occupied.ID]
	assert.Equal(t, SpotOccupied, stored.Status)
	require.NotNil(t, stored.OccupantID)
	assert.Equal(t, parked.Vehicle.ID, *stored.OccupantID)
	assert.Equal(t, SessionActive, f.store.state.sessions[parked.Session.ID].Status)

	assert.Equal(t, SpotMaintenance, f.store.state.spots[free.ID].Status)
}

func TestBulkUpdateSpotStatus_RejectsOccupiedTarget(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")

	res := f.svc.BulkUpdateSpotStatus(context.Background(), BulkUpdateRequest{
		SpotIDs:      []id.ID{spot.ID},
		TargetStatus: SpotOccupied,
	})
	require.False(t, res.Success)
	appErr, ok := apperror.AsAppError(res.Err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestBulkUpdateSpotStatus_InvalidTarget(t *testing.T) {
	f := newFixture()

	res := f.svc.BulkUpdateSpotStatus(context.Background(), BulkUpdateRequest{
		SpotIDs:      []id.ID{id.New()},
		TargetStatus: SpotStatus("VAPORIZED"),
	})
	require.False(t, res.Success)
}

func TestBulkUpdateSpotStatus_FailingBatchReported(t *testing.T) {
	f := newFixture()

	// two full batches; poison a spot in the second
	ids := make([]id.ID, 0, bulkBatchSize+10)
	for i := 0; i < bulkBatchSize+10; i++ {
		spot := f.addSpot(fmt.Sprintf("B-%03d", i), SpotStandard, SpotAvailable, "5.00")
		ids = append(ids, spot.ID)
	}
	poison := ids[bulkBatchSize+5]
	f.store.batchErrOn = &poison
	f.store.batchErr = apperror.NewConflict("row locked")

	res := f.svc.BulkUpdateSpotStatus(context.Background(), BulkUpdateRequest{
		SpotIDs:      ids,
		TargetStatus: SpotOutOfOrder,
	})
	require.False(t, res.Success)

	appErr, ok := apperror.AsAppError(res.Err)
	require.True(t, ok)
	assert.Equal(t, 2, appErr.Details["failedBatch"])
	assert.Equal(t, bulkBatchSize, appErr.Details["updatedBefore"])
	assert.True(t, f.txm.logContains("SAVEPOINT bulk_batch_2"))
	assert.True(t, f.txm.logContains("ROLLBACK TO bulk_batch_2"))

	// whole transaction rolled back
	for _, spotID := range ids {
		assert.Equal(t, SpotAvailable, f.store.state.spots[spotID].Status)
	}
}

// --- Provisioning and reads ---

func TestProvisionSpots(t *testing.T) {
	f := newFixture()

	res := f.svc.ProvisionSpots(context.Background(), []SpotInput{
		{Code: "G1-01", Class: SpotStandard, Garage: "G1", Floor: 1, Bay: 1, HourlyRate: "4.50"},
		{Code: "G1-02", Class: SpotElectric, Garage: "G1", Floor: 1, Bay: 2, HourlyRate: "6.00"},
	})
	require.True(t, res.Success, "provision failed: %v", res.Err)
	assert.Equal(t, tx.PriorityLow, res.Priority)
	assert.Len(t, f.store.state.spots, 2)
}

func TestProvisionSpots_InvalidRate(t *testing.T) {
	f := newFixture()

	res := f.svc.ProvisionSpots(context.Background(), []SpotInput{
		{Code: "G1-01", Class: SpotStandard, HourlyRate: "-1"},
	})
	require.False(t, res.Success)
	assert.Empty(t, f.store.state.spots)
}

func TestListSpotsByStatus(t *testing.T) {
	f := newFixture()
	f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	f.addSpot("A-02", SpotStandard, SpotMaintenance, "5.00")

	res := f.svc.ListSpotsByStatus(context.Background(), SpotMaintenance)
	require.True(t, res.Success)
	spots := res.Data.([]*Spot)
	require.Len(t, spots, 1)
	assert.Equal(t, "A-02", spots[0].Code)

	bad := f.svc.ListSpotsByStatus(context.Background(), SpotStatus("SHINY"))
	require.False(t, bad.Success)
}

func TestGetActiveSessionByPlate(t *testing.T) {
	f := newFixture()
	spot := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	parked := f.park(t, "AB-123", VehicleStandard, spot.ID)

	res := f.svc.GetActiveSessionByPlate(context.Background(), "ab-123")
	require.True(t, res.Success)
	session := res.Data.(*Session)
	assert.Equal(t, parked.Session.ID, session.ID)

	missing := f.svc.GetActiveSessionByPlate(context.Background(), "NOPE")
	require.False(t, missing.Success)
	assert.True(t, apperror.IsNotFound(missing.Err))
}

func TestListActiveSessions(t *testing.T) {
	f := newFixture()
	a := f.addSpot("A-01", SpotStandard, SpotAvailable, "5.00")
	b := f.addSpot("A-02", SpotStandard, SpotAvailable, "5.00")

	f.park(t, "AB-123", VehicleStandard, a.ID)
	f.park(t, "CD-456", VehicleStandard, b.ID)
	require.True(t, f.svc.ExitVehicle(context.Background(), ExitRequest{Plate: "CD-456"}).Success)

	res := f.svc.ListActiveSessions(context.Background())
	require.True(t, res.Success)
	sessions := res.Data.([]*Session)
	require.Len(t, sessions, 1)
	assert.Equal(t, "AB-123", func() string {
		v, _ := (&memVehicleRepo{f.store}).GetByID(context.Background(), sessions[0].VehicleID)
		return v.Plate
	}())
}
