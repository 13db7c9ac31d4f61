package db

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"TokenBench/internal/bench"
	"TokenBench/internal/models"
	"TokenBench/internal/services"
	"TokenBench/internal/services/servicestest"
	"TokenBench/utils"
)

func openTest(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := Open("sqlite", filepath.Join(t.TempDir(), "tokenbench.db"))
	require.NoError(t, err)
	return conn
}

func newIdentity(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

func runBench(t *testing.T, conn *gorm.DB, ep *servicestest.Endpoint, n int) (*RunRecorder, *bench.Result, error) {
	t.Helper()
	id := newIdentity(t)
	rec, err := NewRunRecorder(conn, &models.Run{Identity: id.PublicKey().String(), NumKeypairs: n}, utils.NopLogger())
	require.NoError(t, err)

	driver := bench.NewDriver(services.NewExecutor(ep, utils.NopLogger()), id, bench.Options{NumKeypairs: n}, utils.NopLogger(), rec)
	res, runErr := driver.Run(context.Background())
	require.NoError(t, rec.Finish(runErr))
	return rec, res, runErr
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}

func TestRecorderCompletedRun(t *testing.T) {
	conn := openTest(t)
	rec, res, err := runBench(t, conn, servicestest.New(), 3)
	require.NoError(t, err)

	run, err := GetRun(conn, rec.RunID())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, res.Mint.String(), run.Mint)
	assert.Equal(t, res.SourceAccount.String(), run.SourceAccount)
	assert.NotNil(t, run.FinishedAt)
	assert.Empty(t, run.Error)

	// mint + 3 openings + funding + 3 transfers
	require.Len(t, run.Samples, 8)
	assert.Equal(t, string(bench.StageMintCreation), run.Samples[0].Stage)
	for i := 0; i < 3; i++ {
		s := run.Samples[1+i]
		assert.Equal(t, string(bench.StageAccountOpening), s.Stage)
		assert.Equal(t, i, s.Position)
		assert.Equal(t, res.Accounts[i].String(), s.Account)
	}

	stats := StageStats(run)
	require.Len(t, stats, 2)
	assert.Equal(t, string(bench.StageAccountOpening), stats[0].Stage)
	assert.Equal(t, 3, stats[1].Count)
	assert.Equal(t, res.Summaries[bench.StageTransfer].Line(bench.StageTransfer), stats[1].Line)
}

func TestRecorderFailedRunDropsPartialStage(t *testing.T) {
	conn := openTest(t)
	ep := servicestest.New()
	ep.FailOn = 3

	rec, _, runErr := runBench(t, conn, ep, 3)
	require.Error(t, runErr)

	run, err := GetRun(conn, rec.RunID())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, string(bench.StageAccountOpening))
	assert.NotEmpty(t, run.Mint)

	// only the mint sample survives; the first opening belonged to the failed stage
	require.Len(t, run.Samples, 1)
	assert.Equal(t, string(bench.StageMintCreation), run.Samples[0].Stage)
	assert.Empty(t, StageStats(run))
}

func TestGetRunNotFound(t *testing.T) {
	_, err := GetRun(openTest(t), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestFinishRunNotFound(t *testing.T) {
	assert.ErrorIs(t, FinishRun(openTest(t), "missing", nil), ErrRunNotFound)
}

func TestFinishRunTruncatesError(t *testing.T) {
	conn := openTest(t)
	run := &models.Run{ID: "r1", StartedAt: time.Now()}
	require.NoError(t, CreateRun(conn, run))

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, FinishRun(conn, "r1", errors.New(string(long))))

	got, err := GetRun(conn, "r1")
	require.NoError(t, err)
	assert.Len(t, got.Error, 1024)
}

func TestFinishRunTruncatesOnRuneBoundary(t *testing.T) {
	conn := openTest(t)
	require.NoError(t, CreateRun(conn, &models.Run{ID: "r2", StartedAt: time.Now()}))

	// 三字节字符，第 1024 字节落在字符中间
	msg := "xx" + strings.Repeat("确认超时", 200)
	require.NoError(t, FinishRun(conn, "r2", errors.New(msg)))

	got, err := GetRun(conn, "r2")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.True(t, utf8.ValidString(got.Error))
	assert.Len(t, got.Error, 1022)
	assert.True(t, strings.HasPrefix(msg, got.Error))
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"a确认", 2, "a"},
		{"a确认", 4, "a确"},
		{"确", 1, ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, truncate(c.in, c.n), "truncate(%q, %d)", c.in, c.n)
	}
}

func TestClose(t *testing.T) {
	conn := openTest(t)
	require.NoError(t, Close(conn))

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping())
}

func TestListRunsNewestFirst(t *testing.T) {
	conn := openTest(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, CreateRun(conn, &models.Run{
			ID:        id,
			Status:    models.RunStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := ListRuns(conn, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}
