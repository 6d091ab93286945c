package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Dev            bool          `envconfig:"DEV" default:"false"`
	DataFile       string        `envconfig:"DATA_FILE" default:"data/subscribers.tsv"`
	SnapshotDBPath string        `envconfig:"SNAPSHOT_DB_PATH" default:"data/concert-notifier.db"`
	ScheduleURL    string        `envconfig:"SCHEDULE_URL" default:"https://miyagi-concert.ru/"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	MailingTime    string        `envconfig:"MAILING_TIME" default:"09:00"`
	Timezone       string        `envconfig:"TIMEZONE" default:"Europe/Moscow"`
	AdminChatID    int64         `envconfig:"ADMIN_CHAT_ID" required:"true"`
	TelegramToken  string        `envconfig:"TELEGRAM_TOKEN"`
}

func NewConfig(ctx context.Context) (*Config, error) {
	res := &Config{}

	err := envconfig.Process("", res)
	if err != nil {
		return nil, fmt.Errorf("envconfig process: %w", err)
	}

	if res.Dev {
		return res, nil
	}
	res.TelegramToken, err = getSSMToken(ctx)
	if err != nil {
		return nil, err
	}

	if res.TelegramToken == "" {
		return nil, errors.New("telegram token is required")
	}

	return res, nil
}

func getSSMToken(ctx context.Context) (string, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	ssmClient := ssm.NewFromConfig(cfg)

	param, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String("/concert-notifier/prod/telegram-token"),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get SSM token: %w", err)
	}
	if param.Parameter.Value == nil {
		return "", errors.New("SSM token not found")
	}

	return *param.Parameter.Value, nil
}
