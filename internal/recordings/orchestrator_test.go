package recordings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fieldwatch/backend/internal/egress"
	"github.com/fieldwatch/backend/internal/models"
)

type fakeEngine struct {
	startInfo  *egress.Info
	startErr   error
	startCalls int
	stopErrFor map[string]error
	stopInfo   *egress.Info
	stopped    []string
	lastOutput egress.Output
}

func (f *fakeEngine) StartParticipantEgress(_ context.Context, _, _ string, output egress.Output) (*egress.Info, error) {
	f.startCalls++
	f.lastOutput = output
	return f.startInfo, f.startErr
}

func (f *fakeEngine) StopEgress(_ context.Context, egressID string) (*egress.Info, error) {
	f.stopped = append(f.stopped, egressID)
	if err := f.stopErrFor[egressID]; err != nil {
		return nil, err
	}
	if f.stopInfo != nil {
		return f.stopInfo, nil
	}
	return &egress.Info{EgressID: egressID, Status: "EGRESS_COMPLETE"}, nil
}

type fakeSessionStore struct {
	active     *models.RecordingSession
	byID       map[uuid.UUID]*models.RecordingSession
	bySubject  []models.RecordingSession
	createErr  error
	created    []*models.RecordingSession
	completed  []uuid.UUID
	failed     []uuid.UUID
	deleted    []uuid.UUID
	deleteOK   bool
	markCompEr error
}

func (f *fakeSessionStore) Create(_ context.Context, s *models.RecordingSession) error {
	if f.createErr != nil {
		return f.createErr
	}
	s.ID = uuid.New()
	f.created = append(f.created, s)
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*models.RecordingSession, error) {
	return f.byID[id], nil
}

func (f *fakeSessionStore) FindActiveByRoom(context.Context, string) (*models.RecordingSession, error) {
	return f.active, nil
}

func (f *fakeSessionStore) ListActiveBySubject(context.Context, uuid.UUID) ([]models.RecordingSession, error) {
	return f.bySubject, nil
}

func (f *fakeSessionStore) MarkCompleted(_ context.Context, id uuid.UUID, _, _ string) error {
	if f.markCompEr != nil {
		return f.markCompEr
	}
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeSessionStore) MarkFailed(_ context.Context, id uuid.UUID) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	f.deleted = append(f.deleted, id)
	return f.deleteOK, nil
}

type fakeBlobStore struct {
	presignErr  error
	deleteErr   error
	deleteFound bool
	deletedKeys []string
}

func (f *fakeBlobStore) RecordingsBucket() string { return "recordings-bucket" }

func (f *fakeBlobStore) PresignExpire() time.Duration { return 15 * time.Minute }

func (f *fakeBlobStore) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://signed.example.com/" + key, nil
}

func (f *fakeBlobStore) DeleteIfExists(_ context.Context, key string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	f.deletedKeys = append(f.deletedKeys, key)
	return f.deleteFound, nil
}

type fakeErrLog struct {
	names []string
}

func (f *fakeErrLog) LogError(_ context.Context, info ErrorInfo, _ ErrorContext) {
	f.names = append(f.names, info.Name)
}

func newTestOrchestrator(t *testing.T, engine *fakeEngine, store *fakeSessionStore, blobs *fakeBlobStore, errlog *fakeErrLog) *Orchestrator {
	t.Helper()
	return NewOrchestrator(engine, store, blobs, errlog, nil, zaptest.NewLogger(t))
}

func startParams() StartParams {
	return StartParams{
		RoomName:        "room-42",
		SubjectLabel:    "Jamie Field",
		SubjectIdentity: "jamie@example.com",
		SubjectUserID:   uuid.New(),
		InitiatorUserID: uuid.New(),
	}
}

func TestOrchestratorStart(t *testing.T) {
	engine := &fakeEngine{startInfo: &egress.Info{EgressID: "EG_1"}}
	store := &fakeSessionStore{}
	o := newTestOrchestrator(t, engine, store, &fakeBlobStore{}, &fakeErrLog{})

	session, err := o.Start(context.Background(), startParams())

	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "EG_1", session.EgressID)
	assert.Equal(t, models.RecordingStatusActive, session.Status)
	assert.NotEmpty(t, session.BlobPath)
	assert.Equal(t, "recordings-bucket", engine.lastOutput.Bucket)
	assert.Equal(t, session.BlobPath, engine.lastOutput.Key)
	assert.Contains(t, session.BlobPath, "jamie-field")
}

func TestOrchestratorStartConflict(t *testing.T) {
	engine := &fakeEngine{}
	store := &fakeSessionStore{active: &models.RecordingSession{ID: uuid.New(), RoomName: "room-42"}}
	o := newTestOrchestrator(t, engine, store, &fakeBlobStore{}, &fakeErrLog{})

	_, err := o.Start(context.Background(), startParams())

	assert.ErrorIs(t, err, ErrRecordingConflict)
	assert.Zero(t, engine.startCalls, "conflicting room must never reach the engine")
}

func TestOrchestratorStartNoEgressID(t *testing.T) {
	tests := []struct {
		name string
		info *egress.Info
	}{
		{name: "nil info", info: nil},
		{name: "empty egress id", info: &egress.Info{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{startInfo: tt.info}
			store := &fakeSessionStore{}
			errlog := &fakeErrLog{}
			o := newTestOrchestrator(t, engine, store, &fakeBlobStore{}, errlog)

			_, err := o.Start(context.Background(), startParams())

			assert.ErrorIs(t, err, ErrNoEgressID)
			assert.Empty(t, store.created, "session must never persist without an egress handle")
			assert.Equal(t, []string{"egress_start"}, errlog.names)
		})
	}
}

func TestOrchestratorStartPersistFailureStopsEgress(t *testing.T) {
	engine := &fakeEngine{startInfo: &egress.Info{EgressID: "EG_9"}}
	store := &fakeSessionStore{createErr: errors.New("db down")}
	o := newTestOrchestrator(t, engine, store, &fakeBlobStore{}, &fakeErrLog{})

	_, err := o.Start(context.Background(), startParams())

	require.Error(t, err)
	assert.Equal(t, []string{"EG_9"}, engine.stopped, "untracked egress must be stopped")
}

func TestOrchestratorStopAllForSubjectMixedOutcome(t *testing.T) {
	good := models.RecordingSession{ID: uuid.New(), EgressID: "EG_OK", RoomName: "room-1", BlobPath: "recordings/a.mp4"}
	bad := models.RecordingSession{ID: uuid.New(), EgressID: "EG_BAD", RoomName: "room-2", BlobPath: "recordings/b.mp4"}
	engine := &fakeEngine{stopErrFor: map[string]error{"EG_BAD": errors.New("egress timeout")}}
	store := &fakeSessionStore{bySubject: []models.RecordingSession{good, bad}}
	errlog := &fakeErrLog{}
	o := newTestOrchestrator(t, engine, store, &fakeBlobStore{}, errlog)

	summary, err := o.StopAllForSubject(context.Background(), uuid.New(), time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, "stopped 1 of 2 recording sessions", summary.Message)
	require.Len(t, summary.Results, 2)

	assert.Equal(t, models.RecordingStatusCompleted, summary.Results[0].Status)
	assert.Equal(t, "https://signed.example.com/recordings/a.mp4", summary.Results[0].SasURL)
	assert.Equal(t, models.RecordingStatusFailed, summary.Results[1].Status)
	assert.Contains(t, summary.Results[1].Error, "egress timeout")

	assert.Equal(t, []uuid.UUID{good.ID}, store.completed)
	assert.Equal(t, []uuid.UUID{bad.ID}, store.failed)
	assert.Equal(t, []string{"egress_stop"}, errlog.names)
}

func TestOrchestratorStopPresignFailureStillCompletes(t *testing.T) {
	s := models.RecordingSession{ID: uuid.New(), EgressID: "EG_1", RoomName: "room-1", BlobPath: "recordings/a.mp4"}
	store := &fakeSessionStore{bySubject: []models.RecordingSession{s}}
	blobs := &fakeBlobStore{presignErr: errors.New("credentials expired")}
	o := newTestOrchestrator(t, &fakeEngine{}, store, blobs, &fakeErrLog{})

	summary, err := o.StopAllForSubject(context.Background(), uuid.New(), time.Hour)

	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.RecordingStatusCompleted, summary.Results[0].Status)
	assert.Empty(t, summary.Results[0].SasURL)
	assert.Contains(t, summary.Results[0].Error, "playback url")
}

func TestOrchestratorStopPersistCompletionFailure(t *testing.T) {
	s := models.RecordingSession{ID: uuid.New(), EgressID: "EG_1", RoomName: "room-1", BlobPath: "recordings/a.mp4"}
	store := &fakeSessionStore{bySubject: []models.RecordingSession{s}, markCompEr: errors.New("db down")}
	errlog := &fakeErrLog{}
	o := newTestOrchestrator(t, &fakeEngine{}, store, &fakeBlobStore{}, errlog)

	summary, err := o.StopAllForSubject(context.Background(), uuid.New(), time.Hour)

	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.RecordingStatusFailed, summary.Results[0].Status)
	assert.Contains(t, summary.Results[0].Error, "persist completion")
	assert.Equal(t, []string{"session_update"}, errlog.names)
}

func TestOrchestratorDelete(t *testing.T) {
	session := &models.RecordingSession{ID: uuid.New(), EgressID: "EG_1", RoomName: "room-1", BlobPath: "recordings/a.mp4"}
	tests := []struct {
		name        string
		deleteFound bool
		want        CleanupSummary
	}{
		{name: "blob present", deleteFound: true, want: CleanupSummary{BlobDeleted: true, BlobMissing: false, DBDeleted: true}},
		{name: "blob already gone", deleteFound: false, want: CleanupSummary{BlobDeleted: false, BlobMissing: true, DBDeleted: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeSessionStore{byID: map[uuid.UUID]*models.RecordingSession{session.ID: session}, deleteOK: true}
			blobs := &fakeBlobStore{deleteFound: tt.deleteFound}
			o := newTestOrchestrator(t, &fakeEngine{}, store, blobs, &fakeErrLog{})

			summary, err := o.Delete(context.Background(), session.ID)

			require.NoError(t, err)
			assert.Equal(t, tt.want, *summary)
			assert.Equal(t, []uuid.UUID{session.ID}, store.deleted)
		})
	}
}

func TestOrchestratorDeleteMissingSession(t *testing.T) {
	o := newTestOrchestrator(t, &fakeEngine{}, &fakeSessionStore{}, &fakeBlobStore{}, &fakeErrLog{})

	_, err := o.Delete(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestOrchestratorDeleteBlobFailureStopsCleanup(t *testing.T) {
	session := &models.RecordingSession{ID: uuid.New(), EgressID: "EG_1", BlobPath: "recordings/a.mp4"}
	store := &fakeSessionStore{byID: map[uuid.UUID]*models.RecordingSession{session.ID: session}, deleteOK: true}
	blobs := &fakeBlobStore{deleteErr: errors.New("access denied")}
	errlog := &fakeErrLog{}
	o := newTestOrchestrator(t, &fakeEngine{}, store, blobs, errlog)

	summary, err := o.Delete(context.Background(), session.ID)

	require.Error(t, err)
	require.NotNil(t, summary)
	assert.False(t, summary.DBDeleted)
	assert.Empty(t, store.deleted, "db row must survive when the blob cannot be removed")
	assert.Equal(t, []string{"blob_delete"}, errlog.names)
}
