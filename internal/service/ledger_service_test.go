package service

import (
	"context"
	"sync"
	"testing"

	"skilllab_backend/internal/model"
	"skilllab_backend/internal/util"
	"skilllab_backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordInput(score float64) RecordInput {
	return RecordInput{
		LearnerID:       testLearnerID,
		LabNumber:       1,
		Subject:         "maternalandchild",
		FileURL:         "https://bucket.example.com/key.mp4",
		FileType:        model.MediaVideo,
		Transcript:      "hello, I am the nurse",
		Score:           score,
		Pros:            "good greeting",
		Recommendations: "explain positioning",
	}
}

func TestLedgerRecordNumbersAttemptsSequentially(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		attempt, err := ledger.Record(ctx, recordInput(40))
		require.NoError(t, err)
		assert.Equal(t, i, attempt.Attempt)
	}

	// 其他学生从 1 开始
	other := recordInput(70)
	other.LearnerID = otherLearner
	attempt, err := ledger.Record(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, attempt.Attempt)

	history, err := ledger.History(ctx, testLearnerID, 1, "maternalandchild")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, a := range history {
		assert.Equal(t, i+1, a.Attempt)
	}
}

func TestLedgerRecordConcurrentAttemptsAreUnique(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Record(ctx, recordInput(55))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := ledger.History(ctx, testLearnerID, 1, "maternalandchild")
	require.NoError(t, err)
	require.Len(t, history, n)
	for i, a := range history {
		assert.Equal(t, i+1, a.Attempt)
	}
}

func TestLedgerPassThreshold(t *testing.T) {
	tests := []struct {
		name      string
		labNumber int
		subject   string
		score     float64
		want      bool
	}{
		{"below threshold", 1, "maternalandchild", 59.9, false},
		{"equal to threshold", 1, "maternalandchild", 60, true},
		{"above threshold", 1, "maternalandchild", 85, true},
		{"legacy lab threshold 50", 3, "pharmacology", 50, true},
		{"legacy lab below", 3, "pharmacology", 49.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _ := setupLedger(t)
			in := recordInput(tt.score)
			in.LabNumber = tt.labNumber
			in.Subject = tt.subject

			attempt, err := ledger.Record(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, attempt.IsPass)
		})
	}
}

func TestLedgerRecordIgnoresClaimedPass(t *testing.T) {
	ledger, _ := setupLedger(t)
	claimed := true
	in := recordInput(30)
	in.ClaimedPass = &claimed

	attempt, err := ledger.Record(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, attempt.IsPass)
}

func TestLedgerRecordErrors(t *testing.T) {
	ledger, db := setupLedger(t)
	ctx := context.Background()

	in := recordInput(70)
	in.LearnerID = "not-a-uuid"
	_, err := ledger.Record(ctx, in)
	assert.ErrorIs(t, err, util.ErrInvalidLearnerReference)

	in = recordInput(70)
	in.LabNumber = 42
	_, err = ledger.Record(ctx, in)
	assert.ErrorIs(t, err, util.ErrLabNotFound)

	var count int64
	require.NoError(t, db.Model(&model.SubmissionAttempt{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLedgerLookupLabIsCaseInsensitive(t *testing.T) {
	ledger, _ := setupLedger(t)

	lab, err := ledger.LookupLab(context.Background(), 1, " MaternalAndChild ")
	require.NoError(t, err)
	assert.Equal(t, "maternal-lab1", lab.StorageNamespace)
	assert.Equal(t, 1, lab.RubricVersion)
}

func TestLedgerStatus(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	status, err := ledger.Status(ctx, testLearnerID, 1, "maternalandchild")
	require.NoError(t, err)
	assert.False(t, status.EverPassed)
	assert.Zero(t, status.Attempts)
	assert.Nil(t, status.Latest)

	for _, score := range []float64{40, 75, 20} {
		_, err := ledger.Record(ctx, recordInput(score))
		require.NoError(t, err)
	}

	status, err = ledger.Status(ctx, testLearnerID, 1, "maternalandchild")
	require.NoError(t, err)
	assert.True(t, status.EverPassed)
	assert.Equal(t, 3, status.Attempts)
	require.NotNil(t, status.Latest)
	assert.Equal(t, 3, status.Latest.Attempt)
	assert.False(t, status.Latest.IsPass)
}

func TestNextAttemptNumber(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	lab, err := ledger.LookupLab(ctx, 1, "maternalandchild")
	require.NoError(t, err)

	next, err := ledger.NextAttemptNumber(ctx, testLearnerID, lab.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	_, err = ledger.Record(ctx, recordInput(10))
	require.NoError(t, err)

	next, err = ledger.NextAttemptNumber(ctx, testLearnerID, lab.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func TestLedgerRecordRubricVersion(t *testing.T) {
	ledger, db := setupLedger(t)
	ctx := context.Background()

	changed := append([]database.LabSeed(nil), testLabSeeds...)
	changed[0].Rubric = "1. Greets the mother (100 points)"
	require.NoError(t, database.SeedLabs(db, changed))

	attempt, err := ledger.Record(ctx, recordInput(80))
	require.NoError(t, err)
	assert.Equal(t, 2, attempt.RubricVersion)

	// 旧版本有快照
	in := recordInput(80)
	in.RubricVersion = 1
	attempt, err = ledger.Record(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, attempt.RubricVersion)

	// 不存在的版本退回当前版本
	in.RubricVersion = 7
	attempt, err = ledger.Record(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, attempt.RubricVersion)
}
