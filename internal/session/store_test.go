package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxlens/rxlens-api/internal/model"
)

func newTestStore() *Store {
	return NewStore(time.Minute, time.Minute)
}

func TestStore_NewStartsEmpty(t *testing.T) {
	s := newTestStore()

	sess := s.New()

	assert.NotEqual(t, uuid.Nil, sess.ID)
	assert.False(t, sess.Record.HasData())
	require.Len(t, sess.Record.Medicines, 1)
	assert.True(t, sess.Record.Medicines[0].IsPlaceholder())
}

func TestStore_GetRoundTrip(t *testing.T) {
	s := newTestStore()
	sess := s.New()

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestStore_GetUnknown(t *testing.T) {
	s := newTestStore()

	_, err := s.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PutReplacesRecord(t *testing.T) {
	s := newTestStore()
	sess := s.New()

	sess.Record.PharmacyOrDoctorName = "CVS"
	s.Put(sess)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "CVS", got.Record.PharmacyOrDoctorName)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore()
	sess := s.New()
	sess.Record.PharmacyOrDoctorName = "CVS"
	sess.Record.Medicines = []model.MedicineEntry{{Name: "Amoxicillin", Description: "none", Quantity: "none", SideEffects: "none"}}
	s.Put(sess)

	got, err := s.Reset(sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Record.HasData())

	_, err = s.Reset(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore()
	sess := s.New()

	s.Delete(sess.ID)

	_, err := s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
