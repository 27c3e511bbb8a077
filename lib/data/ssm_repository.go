package data

import (
	"context"
	"fmt"
	"strings"

	"homecare/lib/constants"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/sirupsen/logrus"
)

type SSMRepository interface {
	GetParameters() (map[string]string, error)
}

type SSMClientInterface interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

type SSMDao struct {
	SSM    SSMClientInterface
	Logger *logrus.Logger
}

// GetParameters loads every decrypted parameter under the homecare path,
// keyed by full parameter name.
func (client *SSMDao) GetParameters() (map[string]string, error) {
	params := map[string]string{}
	input := &ssm.GetParametersByPathInput{
		Path:           aws.String(constants.SSM_PATH),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	}

	for {
		output, err := client.SSM.GetParametersByPath(context.TODO(), input)
		if err != nil {
			client.Logger.WithError(err).WithField("path", constants.SSM_PATH).Error("Failed to read SSM parameters")
			return nil, err
		}

		for _, param := range output.Parameters {
			params[aws.ToString(param.Name)] = aws.ToString(param.Value)
		}

		if output.NextToken == nil {
			break
		}
		input.NextToken = output.NextToken
	}
	return params, nil
}

// RequireParameters reports every key that is missing or blank in params.
func RequireParameters(params map[string]string, keys ...string) error {
	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(params[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing SSM parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}
