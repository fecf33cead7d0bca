package aws_s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	netUrl "net/url"
	"os"
	"path/filepath"

	"github.com/XSpiritWizardX/product-scraper/config"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BucketClient mirrors finished output files to object storage so the
// scraped tables survive the machine that produced them.
type BucketClient interface {
	UploadOutput(siteURL, filePath string) (string, error)
}

type S3BucketClient struct {
	client *s3.Client
	cfg    *config.Config
}

func NewS3BucketClient(cfg *config.Config) *S3BucketClient {
	slog.Info("connecting to s3...")

	c, err := connect(cfg)
	if err != nil {
		slog.Error("failed to connect to s3.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return &S3BucketClient{
		client: c,
		cfg:    cfg,
	}
}

// UploadOutput copies one local output file to
// <key_prefix>/<site host>/<file name> and returns the object key.
func (bc *S3BucketClient) UploadOutput(siteURL, filePath string) (string, error) {
	u, err := netUrl.Parse(siteURL)
	if err != nil {
		slog.Error("failed to parse url.", slog.String("url", siteURL), slog.String("err", err.Error()))
		return "", err
	}
	body, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	s3Key := fmt.Sprintf("%s/%s/%s", bc.cfg.S3Settings.KeyPrefix, u.Host, filepath.Base(filePath))

	_, err = bc.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: &bc.cfg.S3Settings.BucketName,
		Key:    &s3Key,
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		slog.Error("failed to upload output to s3.", slog.String("err", err.Error()))
		return "", err
	}
	slog.Debug("output mirrored to s3.", slog.String("key", s3Key))

	return s3Key, nil
}

func connect(cfg *config.Config) (*s3.Client, error) {
	s3Config, err := awsCfg.LoadDefaultConfig(context.Background(), awsCfg.WithRegion(cfg.S3Settings.Region))
	if err != nil {
		slog.Error("failed to load s3 config.", slog.String("err", err.Error()))
		return nil, err
	}

	if cfg.Env == "local" {
		s3Config.BaseEndpoint = &cfg.S3Settings.AwsBaseEndpoint // for LocalStack
		s3Config.Credentials = crd.NewStaticCredentialsProvider("test", "test", "")
		// LocalStack does not support `virtual host addressing style` that uses s3 by default.
		// For test purposes use configuration with disabled 'virtual hosted bucket addressing'.
		// Set 'local' Env variable to use this configuration.
		slog.Warn("test configuration for S3")
		return s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		}), nil
	}

	return s3.NewFromConfig(s3Config), nil
}
