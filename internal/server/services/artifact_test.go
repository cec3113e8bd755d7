package services

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestStorageKeyForShare(t *testing.T) {
	key := StorageKeyForShare("abc-123")
	if key != "artifacts/abc-123" {
		t.Fatalf("unexpected key: %q", key)
	}
	// stable: a re-requested link must resolve to the same object
	if key != StorageKeyForShare("abc-123") {
		t.Fatalf("key not stable")
	}
}

func Test_getPresignClient_SuccessAndError(t *testing.T) {
	svc := NewArtifactService(testConfig())

	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		if len(optFns) == 0 {
			t.Fatalf("expected config options")
		}
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		return aws.Config{}, nil
	}

	var capturedBaseEndpoint string
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		if opts.BaseEndpoint == nil {
			t.Fatalf("BaseEndpoint not set")
		}
		capturedBaseEndpoint = *opts.BaseEndpoint
		return &s3.Client{}
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		if c == nil {
			t.Fatalf("nil client passed to presign")
		}
		return &s3.PresignClient{}
	}

	pc, err := svc.getPresignClient()
	if err != nil {
		t.Fatalf("getPresignClient err: %v", err)
	}
	if pc == nil {
		t.Fatalf("nil presign client")
	}
	if capturedBaseEndpoint != testConfig().S3BaseEndpoint {
		t.Fatalf("BaseEndpoint mismatch: %q", capturedBaseEndpoint)
	}

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	if _, err := svc.getPresignClient(); err == nil || err.Error() != "load-fail" {
		t.Fatalf("expected load-fail, got %v", err)
	}
}

func TestPresignedArtifactURL(t *testing.T) {
	svc := NewArtifactService(testConfig())
	stubPresign(t, "https://s3.example/artifacts/x?sig=1", nil)

	url, err := svc.PresignedArtifactURL(context.Background(), "artifacts/x")
	if err != nil {
		t.Fatalf("PresignedArtifactURL err: %v", err)
	}
	if url != "https://s3.example/artifacts/x?sig=1" {
		t.Fatalf("unexpected url: %q", url)
	}

	stubPresign(t, "", errors.New("presign-fail"))
	if _, err := svc.PresignedArtifactURL(context.Background(), "artifacts/x"); err == nil {
		t.Fatalf("expected presign error")
	}
}
