package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingableDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return db, mock
}

func TestConnectionManager_ReplicaRotation(t *testing.T) {
	primary, _ := pingableDB(t)
	r0, m0 := pingableDB(t)
	r1, m1 := pingableDB(t)

	logger, _ := test.NewNullLogger()
	cm := newConnectionManager(primary, []*sql.DB{r0, r1}, time.Second, logger)

	assert.Same(t, primary, cm.Replica(), "replicas start out of rotation until pinged")

	m0.ExpectPing()
	m1.ExpectPing()
	cm.checkReplicas(context.Background())

	seen := map[*sql.DB]int{}
	for i := 0; i < 4; i++ {
		seen[cm.Replica()]++
	}
	assert.Equal(t, 2, seen[r0])
	assert.Equal(t, 2, seen[r1])
	assert.Zero(t, seen[primary])
}

func TestConnectionManager_ReplicaRecovers(t *testing.T) {
	primary, _ := pingableDB(t)
	r0, m0 := pingableDB(t)

	logger, hook := test.NewNullLogger()
	cm := newConnectionManager(primary, []*sql.DB{r0}, time.Second, logger)

	m0.ExpectPing()
	cm.checkReplicas(context.Background())
	require.Same(t, r0, cm.Replica())

	m0.ExpectPing().WillReturnError(errors.New("connection refused"))
	cm.checkReplicas(context.Background())
	assert.Same(t, primary, cm.Replica(), "reads fall back to the primary")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	m0.ExpectPing()
	cm.checkReplicas(context.Background())
	assert.Same(t, r0, cm.Replica())
	assert.Equal(t, "Replica in rotation", hook.LastEntry().Message)

	assert.NoError(t, m0.ExpectationsWereMet())
}

func TestConnectionManager_NoReplicas(t *testing.T) {
	primary, _ := pingableDB(t)
	logger, _ := test.NewNullLogger()
	cm := newConnectionManager(primary, nil, time.Second, logger)

	assert.Same(t, primary, cm.Replica())

	// No replicas to ping; must not start a goroutine or block
	cm.StartHealthCheckRoutine(context.Background(), time.Millisecond)
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	t.Run("down replica does not fail the check", func(t *testing.T) {
		primary, pm := pingableDB(t)
		r0, _ := pingableDB(t)
		logger, _ := test.NewNullLogger()
		cm := newConnectionManager(primary, []*sql.DB{r0}, time.Second, logger)

		pm.ExpectPing()
		assert.NoError(t, cm.HealthCheck(context.Background()))
	})

	t.Run("primary down", func(t *testing.T) {
		primary, pm := pingableDB(t)
		logger, _ := test.NewNullLogger()
		cm := newConnectionManager(primary, nil, time.Second, logger)

		pm.ExpectPing().WillReturnError(errors.New("connection refused"))
		err := cm.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary unhealthy")
	})
}

func TestConnectionManager_Close(t *testing.T) {
	primary, pm := pingableDB(t)
	r0, m0 := pingableDB(t)
	logger, _ := test.NewNullLogger()
	cm := newConnectionManager(primary, []*sql.DB{r0}, time.Second, logger)

	pm.ExpectClose()
	m0.ExpectClose().WillReturnError(errors.New("already closed"))

	err := cm.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica-0 close")
	assert.NoError(t, pm.ExpectationsWereMet())
}
