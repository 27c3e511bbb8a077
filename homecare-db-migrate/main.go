// Package main applies the embedded SQL migrations. It is invoked once per
// deployment, after the stack update and before traffic shifts.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"homecare/lib/clients"
	"homecare/lib/constants"
	"homecare/lib/data"
	"homecare/lib/util"
	"homecare/migrations"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

var (
	logger        *logrus.Logger
	isLocal       bool
	ssmRepository data.SSMRepository
	ssmParams     map[string]string
	sqlDB         *sql.DB

	migrationFiles  fs.FS = migrations.Files
	applyMigrations       = data.ApplyMigrations
)

// MigrationResult is returned to the deployment pipeline.
type MigrationResult struct {
	Applied []string `json:"applied"`
}

func Handler(ctx context.Context) (MigrationResult, error) {
	applied, err := applyMigrations(ctx, sqlDB, migrationFiles, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "Handler",
			"applied":   applied,
			"error":     err.Error(),
		}).Error("Migration failed")
		return MigrationResult{Applied: applied}, err
	}

	logger.WithFields(logrus.Fields{
		"operation": "Handler",
		"applied":   applied,
	}).Info("Migrations complete")
	return MigrationResult{Applied: applied}, nil
}

func main() {
	setup()
	lambda.Start(Handler)
}

func init() {
	isLocal, _ = strconv.ParseBool(os.Getenv("IS_LOCAL"))
	logger = logrus.New()
	util.SetLogLevel(logger, os.Getenv("LOG_LEVEL"))
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: isLocal})
}

func setup() {
	var err error

	ssmRepository = &data.SSMDao{
		SSM:    clients.NewSSMClient(isLocal),
		Logger: logger,
	}
	ssmParams, err = ssmRepository.GetParameters()
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error while getting SSM params from parameter store")
	}

	sqlDB, err = clients.NewPostgresSQLClient(
		ssmParams[constants.DATABASE_RDS_ENDPOINT],
		ssmParams[constants.DATABASE_PORT],
		ssmParams[constants.DATABASE_NAME],
		ssmParams[constants.DATABASE_USERNAME],
		ssmParams[constants.DATABASE_PASSWORD],
		ssmParams[constants.SSL_MODE],
	)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     fmt.Errorf("error creating PostgreSQL client: %w", err).Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}
}
