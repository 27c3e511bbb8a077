package clients

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
)

// IdentityProvider mirrors account state changes made by administrators
// into the user pool.
type IdentityProvider interface {
	DisableUser(ctx context.Context, username string) error
	EnableUser(ctx context.Context, username string) error
	DeleteUser(ctx context.Context, username string) error
}

type CognitoAdminAPI interface {
	AdminDisableUser(ctx context.Context, params *cognitoidentityprovider.AdminDisableUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminDisableUserOutput, error)
	AdminEnableUser(ctx context.Context, params *cognitoidentityprovider.AdminEnableUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminEnableUserOutput, error)
	AdminDeleteUser(ctx context.Context, params *cognitoidentityprovider.AdminDeleteUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminDeleteUserOutput, error)
}

type CognitoClient struct {
	API        CognitoAdminAPI
	UserPoolID string
}

func NewCognitoClient(isLocal bool, userPoolID string) *CognitoClient {
	return &CognitoClient{
		API:        cognitoidentityprovider.NewFromConfig(loadAWSConfig(isLocal)),
		UserPoolID: userPoolID,
	}
}

func (c *CognitoClient) DisableUser(ctx context.Context, username string) error {
	_, err := c.API.AdminDisableUser(ctx, &cognitoidentityprovider.AdminDisableUserInput{
		UserPoolId: aws.String(c.UserPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return fmt.Errorf("failed to disable cognito user: %w", err)
	}
	return nil
}

func (c *CognitoClient) EnableUser(ctx context.Context, username string) error {
	_, err := c.API.AdminEnableUser(ctx, &cognitoidentityprovider.AdminEnableUserInput{
		UserPoolId: aws.String(c.UserPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return fmt.Errorf("failed to enable cognito user: %w", err)
	}
	return nil
}

func (c *CognitoClient) DeleteUser(ctx context.Context, username string) error {
	_, err := c.API.AdminDeleteUser(ctx, &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: aws.String(c.UserPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return fmt.Errorf("failed to delete cognito user: %w", err)
	}
	return nil
}
