package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(apply func(context.Context, *sql.DB, fs.FS, *logrus.Logger) ([]string, error)) {
	logger = logrus.New()
	logger.SetOutput(io.Discard)
	applyMigrations = apply
}

func Test_Handler_AppliesEmbeddedMigrations(t *testing.T) {
	//Arrange
	var seen []string
	setupTest(func(_ context.Context, _ *sql.DB, files fs.FS, _ *logrus.Logger) ([]string, error) {
		entries, err := fs.ReadDir(files, ".")
		require.NoError(t, err)
		for _, e := range entries {
			seen = append(seen, e.Name())
		}
		return []string{"001_init.sql"}, nil
	})

	//Act
	result, err := Handler(context.Background())

	//Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql"}, result.Applied)
	assert.Contains(t, seen, "001_init.sql")
}

func Test_Handler_ReportsPartialProgress(t *testing.T) {
	setupTest(func(context.Context, *sql.DB, fs.FS, *logrus.Logger) ([]string, error) {
		return []string{"001_init.sql"}, errors.New("execute migration 002_x.sql: syntax error")
	})

	result, err := Handler(context.Background())

	assert.Error(t, err)
	assert.Equal(t, []string{"001_init.sql"}, result.Applied)
}
