// Package main implements the Cognito Pre-Token Generation V2.0 trigger.
//
// It looks the signed-in user up by Cognito ID and adds the portal claims the
// API authorizes on (user_id, role) to both the ID and access token. The
// user's role is also set as the single Cognito group.
//
// Lookup failures never block sign-in: the token is issued without portal
// claims and the API answers 401 until the account row exists.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"homecare/lib/clients"
	"homecare/lib/constants"
	"homecare/lib/data"
	"homecare/lib/models"
	"homecare/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger         *logrus.Logger
	isLocal        bool
	ssmRepository  data.SSMRepository
	userRepository data.UserRepository
	ssmParams      map[string]string
	sqlDB          *sql.DB
)

// Supported V2.0 trigger sources.
var validTriggerSources = []string{
	"TokenGeneration_HostedAuth",
	"TokenGeneration_Authentication",
	"TokenGeneration_NewPasswordChallenge",
	"TokenGeneration_AuthenticateDevice",
	"TokenGeneration_RefreshTokens",
}

func Handler(ctx context.Context, event events.CognitoEventUserPoolsPreTokenGenV2_0) (events.CognitoEventUserPoolsPreTokenGenV2_0, error) {
	logger.WithFields(logrus.Fields{
		"trigger_source": event.TriggerSource,
		"user_pool_id":   event.UserPoolID,
		"username":       event.UserName,
		"client_id":      event.CallerContext.ClientID,
		"operation":      "Handler",
	}).Debug("Processing Cognito Pre Token Generation V2.0 event")

	if !slices.Contains(validTriggerSources, event.TriggerSource) {
		logger.WithFields(logrus.Fields{
			"trigger_source": event.TriggerSource,
			"operation":      "Handler",
		}).Warn("Invalid trigger source for V2.0, returning event unchanged")
		return event, nil
	}

	cognitoID := event.Request.UserAttributes["sub"]
	if cognitoID == "" {
		cognitoID = event.UserName
	}
	if cognitoID == "" {
		logger.WithField("operation", "Handler").Error("Username (cognito_id) is empty in event")
		return event, errors.New("username cannot be empty")
	}

	user, err := userRepository.GetUserProfile(ctx, cognitoID)
	if err != nil {
		level := logrus.ErrorLevel
		if errors.Is(err, models.ErrNotFound) {
			level = logrus.WarnLevel
		}
		logger.WithFields(logrus.Fields{
			"cognito_id": cognitoID,
			"operation":  "Handler",
			"error":      err.Error(),
		}).Log(level, "No portal profile for user, proceeding without custom claims")
		return event, nil
	}

	claims := buildClaims(user)
	event.Response.ClaimsAndScopeOverrideDetails = events.ClaimsAndScopeOverrideDetailsV2_0{
		IDTokenGeneration: events.IDTokenGenerationV2_0{
			ClaimsToAddOrOverride: claims,
			ClaimsToSuppress:      []string{},
		},
		AccessTokenGeneration: events.AccessTokenGenerationV2_0{
			ClaimsToAddOrOverride: claims,
			ClaimsToSuppress:      []string{},
			ScopesToAdd:           []string{},
			ScopesToSuppress:      []string{},
		},
		GroupOverrideDetails: events.GroupConfigurationV2_0{
			GroupsToOverride:   []string{string(user.Role)},
			IAMRolesToOverride: []string{},
		},
	}

	logger.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"role":      user.Role,
		"is_active": user.IsActive,
		"operation": "Handler",
	}).Debug("Successfully added custom claims to token")

	return event, nil
}

// buildClaims renders the profile as string claims. Cognito only accepts
// string values for custom claims.
func buildClaims(user *models.User) map[string]interface{} {
	claims := map[string]interface{}{
		"user_id":   strconv.FormatInt(user.ID, 10),
		"email":     user.Email,
		"name":      user.Name,
		"role":      string(user.Role),
		"is_active": strconv.FormatBool(user.IsActive),
	}
	if user.Phone != "" {
		claims["phone"] = user.Phone
	}
	if user.MembershipTier != "" {
		claims["membership_tier"] = user.MembershipTier
	}
	return claims
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	if err := data.RequireParameters(ssmParams,
		constants.DATABASE_RDS_ENDPOINT,
		constants.DATABASE_NAME,
		constants.DATABASE_USERNAME,
		constants.DATABASE_PASSWORD,
	); err != nil {
		return err
	}

	var err error
	sqlDB, err = clients.NewPostgresSQLClient(
		ssmParams[constants.DATABASE_RDS_ENDPOINT],
		ssmParams[constants.DATABASE_PORT],
		ssmParams[constants.DATABASE_NAME],
		ssmParams[constants.DATABASE_USERNAME],
		ssmParams[constants.DATABASE_PASSWORD],
		ssmParams[constants.SSL_MODE],
	)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}
	return nil
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

	if err := setupPostgresSQLClient(ssmParams); err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	userRepository = &data.UserDao{DB: sqlDB, Logger: logger}
	logger.WithField("operation", "setup").Info("Token Customizer Lambda initialization completed successfully")
}
