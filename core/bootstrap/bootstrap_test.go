package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/filmbot/core/config"
	coredatabase "github.com/m3rciful/filmbot/core/database"
)

func mockConnect(t *testing.T) (func(coredatabase.Config) (*sqlx.DB, error), sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	return func(coredatabase.Config) (*sqlx.DB, error) {
		return sqlx.NewDb(raw, "postgres"), nil
	}, mock
}

func TestRunOrder(t *testing.T) {
	var steps []string
	connect, _ := mockConnect(t)

	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { steps = append(steps, "logger"); return nil },
		Migrate:    func(coredatabase.Config) error { steps = append(steps, "migrate"); return nil },
		Connect: func(c coredatabase.Config) (*sqlx.DB, error) {
			steps = append(steps, "connect")
			return connect(c)
		},
		Seeders: []Seeder{SeederFunc{Label: "genres", Fn: func(context.Context, *sqlx.DB) error {
			steps = append(steps, "seed")
			return nil
		}}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.DB)
	assert.Equal(t, []string{"logger", "migrate", "connect", "seed"}, steps)
}

func TestRunSeederFailureClosesDB(t *testing.T) {
	connect, mock := mockConnect(t)
	mock.ExpectClose()

	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Connect:    connect,
		Seeders: []Seeder{SeederFunc{Label: "genres", Fn: func(context.Context, *sqlx.DB) error {
			return errors.New("boom")
		}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seeder genres failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.EqualError(t, err, "bootstrap: nil config provided")
}
