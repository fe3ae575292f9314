package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxlens/rxlens-api/internal/extractor"
	"github.com/rxlens/rxlens-api/internal/model"
	"github.com/rxlens/rxlens-api/internal/repository"
	"github.com/rxlens/rxlens-api/internal/session"
	apperrors "github.com/rxlens/rxlens-api/pkg/errors"
	"github.com/rxlens/rxlens-api/pkg/messaging"
	"github.com/rxlens/rxlens-api/pkg/metrics"
)

type fakeExtractor struct {
	record model.PrescriptionRecord
	err    error
	calls  int
	gotCtx *model.PrescriptionRecord
}

func (f *fakeExtractor) Extract(_ context.Context, _ extractor.Image, contextRecord *model.PrescriptionRecord) (model.PrescriptionRecord, error) {
	f.calls++
	f.gotCtx = contextRecord
	if f.err != nil {
		return model.PrescriptionRecord{}, f.err
	}
	return f.record, nil
}

type memRecordRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.PrescriptionRecord
	saveErr error
}

func newMemRecordRepo() *memRecordRepo {
	return &memRecordRepo{records: make(map[uuid.UUID]model.PrescriptionRecord)}
}

func (r *memRecordRepo) Save(_ context.Context, id uuid.UUID, record model.PrescriptionRecord) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = record.Clone()
	return nil
}

func (r *memRecordRepo) Get(_ context.Context, id uuid.UUID) (model.PrescriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return model.PrescriptionRecord{}, repository.ErrNotFound
	}
	return record.Clone(), nil
}

func (r *memRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*model.ExtractionJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*model.ExtractionJob)}
}

func (r *memJobRepo) Enqueue(_ context.Context, job *model.ExtractionJob) error {
	job.ID = uuid.New()
	job.Status = model.JobStatusPending
	job.CreatedAt = time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *memJobRepo) Get(_ context.Context, id uuid.UUID) (*model.ExtractionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return job, nil
}

func (r *memJobRepo) ClaimPending(_ context.Context, limit int) ([]*model.ExtractionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ExtractionJob
	for _, job := range r.jobs {
		if job.Status == model.JobStatusPending && len(out) < limit {
			job.Status = model.JobStatusProcessing
			out = append(out, job)
		}
	}
	return out, nil
}

func (r *memJobRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	return r.setStatus(id, model.JobStatusProcessed)
}

func (r *memJobRepo) MarkRetry(_ context.Context, id uuid.UUID, _ string, _ time.Duration) error {
	return r.setStatus(id, model.JobStatusRetry)
}

func (r *memJobRepo) MarkFailed(_ context.Context, id uuid.UUID, _ string) error {
	return r.setStatus(id, model.JobStatusFailed)
}

func (r *memJobRepo) setStatus(id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.Status = status
	}
	return nil
}

func (r *memJobRepo) CountPending(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, job := range r.jobs {
		if job.Status == model.JobStatusPending {
			count++
		}
	}
	return count, nil
}

type fakeBroker struct {
	mu        sync.Mutex
	published []string
	events    chan []byte
}

func (b *fakeBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, channel)
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.events, nil
}

func (b *fakeBroker) Close() error { return nil }

type fakeEmailer struct {
	sent []string
	err  error
}

func (e *fakeEmailer) SendRecordSummary(_ context.Context, to string, _ model.PrescriptionRecord) error {
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, to)
	return nil
}

type fixture struct {
	svc     *Service
	ext     *fakeExtractor
	records *memRecordRepo
	jobs    *memJobRepo
	broker  *fakeBroker
	emailer *fakeEmailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ext:     &fakeExtractor{record: model.NewPrescriptionRecord()},
		records: newMemRecordRepo(),
		jobs:    newMemJobRepo(),
		broker:  &fakeBroker{},
		emailer: &fakeEmailer{},
	}
	m := metrics.NewMetricsWith(prometheus.NewRegistry(), "rxlens", "test")
	f.svc = NewService(
		session.NewStore(time.Minute, time.Minute),
		f.ext, f.records, f.jobs, f.broker, f.emailer, m, "api",
	)
	return f
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t)

	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	assert.False(t, sess.Record.HasData())
	stored, err := f.records.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasData())
}

func TestProcessImage_MergesAndPersists(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	candidate := model.NewPrescriptionRecord()
	candidate.PharmacyOrDoctorName = "CVS"
	candidate.Medicines = []model.MedicineEntry{
		{Name: "Amoxicillin", Description: "twice daily", Quantity: "30 tabs", SideEffects: "none"},
	}
	f.ext.record = candidate

	merged, err := f.svc.ProcessImage(context.Background(), sess.ID, extractor.Image{Data: []byte{1}})
	require.NoError(t, err)

	assert.Equal(t, "CVS", merged.PharmacyOrDoctorName)
	require.Len(t, merged.Medicines, 1)
	assert.Equal(t, "Amoxicillin", merged.Medicines[0].Name)

	stored, err := f.records.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, merged, stored)

	assert.Equal(t, []string{"record.updated"}, f.broker.published)
}

func TestProcessImage_SecondImageAccumulates(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	first := model.NewPrescriptionRecord()
	first.PharmacyOrDoctorName = "CVS"
	first.Medicines = []model.MedicineEntry{
		{Name: "Amoxicillin", Description: "none", Quantity: "30 tabs", SideEffects: "none"},
	}
	f.ext.record = first
	_, err = f.svc.ProcessImage(context.Background(), sess.ID, extractor.Image{Data: []byte{1}})
	require.NoError(t, err)

	second := model.NewPrescriptionRecord()
	second.Medicines = []model.MedicineEntry{
		{Name: "AMOXICILLIN", Description: "none", Quantity: "none", SideEffects: "drowsiness"},
		{Name: "Metformin", Description: "with meals", Quantity: "none", SideEffects: "none"},
	}
	f.ext.record = second
	merged, err := f.svc.ProcessImage(context.Background(), sess.ID, extractor.Image{Data: []byte{2}})
	require.NoError(t, err)

	assert.Equal(t, "CVS", merged.PharmacyOrDoctorName)
	require.Len(t, merged.Medicines, 2)
	assert.Equal(t, "30 tabs", merged.Medicines[0].Quantity)
	assert.Equal(t, "drowsiness", merged.Medicines[0].SideEffects)
	assert.Equal(t, "Metformin", merged.Medicines[1].Name)

	// The second call saw the accumulated record as prompt context.
	require.NotNil(t, f.ext.gotCtx)
	assert.Equal(t, "CVS", f.ext.gotCtx.PharmacyOrDoctorName)
}

func TestProcessImage_ExtractionErrorSurfaced(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	f.ext.err = errors.New("upstream down")
	_, err = f.svc.ProcessImage(context.Background(), sess.ID, extractor.Image{Data: []byte{1}})

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrUnavailable, appErr.Code)

	// Session record untouched by the failed step.
	got, err := f.svc.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Record.HasData())
}

func TestProcessImage_RejectsMissingImage(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	_, err = f.svc.ProcessImage(context.Background(), sess.ID, extractor.Image{})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
	assert.Zero(t, f.ext.calls)
}

func TestProcessImage_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessImage(context.Background(), uuid.New(), extractor.Image{Data: []byte{1}})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
}

// Two services with separate caches over one durable record stand in
// for the API and worker processes. Merges from both sides must
// accumulate; neither side may clobber the other's merge with a
// cached pre-merge record.
func TestApplyExtraction_AccumulatesAcrossProcesses(t *testing.T) {
	records := newMemRecordRepo()
	jobs := newMemJobRepo()
	broker := &fakeBroker{}
	m := metrics.NewMetricsWith(prometheus.NewRegistry(), "rxlens", "crossproc")

	newSvc := func(source string) *Service {
		return NewService(
			session.NewStore(time.Minute, time.Minute),
			&fakeExtractor{}, records, jobs, broker, &fakeEmailer{}, m, source,
		)
	}
	api := newSvc("api")
	worker := newSvc("worker")

	sess, err := api.CreateSession(context.Background())
	require.NoError(t, err)

	fromAPI := model.NewPrescriptionRecord()
	fromAPI.PharmacyOrDoctorName = "CVS"
	_, err = api.ApplyExtraction(context.Background(), sess.ID, fromAPI)
	require.NoError(t, err)

	fromWorker := model.NewPrescriptionRecord()
	fromWorker.Medicines = []model.MedicineEntry{
		{Name: "Amoxicillin", Description: "twice daily", Quantity: "none", SideEffects: "none"},
	}
	_, err = worker.ApplyExtraction(context.Background(), sess.ID, fromWorker)
	require.NoError(t, err)

	// The API's cache still predates the worker's merge; this merge
	// must not resurrect that state.
	fromAPI2 := model.NewPrescriptionRecord()
	fromAPI2.Date = "2024-07-07"
	merged, err := api.ApplyExtraction(context.Background(), sess.ID, fromAPI2)
	require.NoError(t, err)

	assert.Equal(t, "CVS", merged.PharmacyOrDoctorName)
	assert.Equal(t, "2024-07-07", merged.Date)
	require.Len(t, merged.Medicines, 1)
	assert.Equal(t, "Amoxicillin", merged.Medicines[0].Name)

	stored, err := records.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, merged, stored)
}

func TestWatchRecordUpdates_EvictsRemotelyMergedSessions(t *testing.T) {
	f := newFixture(t)
	f.broker.events = make(chan []byte, 1)

	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	// Another process merges straight into the durable store and
	// announces it.
	updated := model.NewPrescriptionRecord()
	updated.Date = "2024-06-06"
	require.NoError(t, f.records.Save(context.Background(), sess.ID, updated))

	done := make(chan error, 1)
	go func() { done <- f.svc.WatchRecordUpdates(context.Background()) }()

	payload, err := json.Marshal(messaging.RecordUpdated{
		SessionID: sess.ID.String(),
		Source:    "worker",
	})
	require.NoError(t, err)
	f.broker.events <- payload
	close(f.broker.events)

	require.NoError(t, <-done)

	got, err := f.svc.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-06", got.Record.Date)
}

func TestGetSession_RehydratesFromStore(t *testing.T) {
	f := newFixture(t)

	// Simulate a session owned by another process: only the durable
	// record exists.
	id := uuid.New()
	record := model.NewPrescriptionRecord()
	record.Date = "2024-05-05"
	require.NoError(t, f.records.Save(context.Background(), id, record))

	sess, err := f.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-05", sess.Record.Date)
}

func TestEnqueueImageAndGetJob(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	job, err := f.svc.EnqueueImage(context.Background(), sess.ID, extractor.Image{URL: "https://example.com/rx.jpg"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)

	got, err := f.svc.GetJob(context.Background(), sess.ID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	// A job is only visible through its own session.
	_, err = f.svc.GetJob(context.Background(), uuid.New(), job.ID)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
}

func TestResetSession(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	candidate := model.NewPrescriptionRecord()
	candidate.PharmacyOrDoctorName = "CVS"
	_, err = f.svc.ApplyExtraction(context.Background(), sess.ID, candidate)
	require.NoError(t, err)

	reset, err := f.svc.ResetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, reset.Record.HasData())

	stored, err := f.records.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasData())
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSession(context.Background(), sess.ID))

	_, err = f.svc.GetSession(context.Background(), sess.ID)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
}

func TestShareRecord(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.svc.ShareRecord(context.Background(), sess.ID, "patient@example.com"))
	assert.Equal(t, []string{"patient@example.com"}, f.emailer.sent)

	f.emailer.err = errors.New("smtp down")
	err = f.svc.ShareRecord(context.Background(), sess.ID, "patient@example.com")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrUnavailable, appErr.Code)
}
